// Package memory holds an in-process account store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gitrueng/user-management-app/internal/domain"
	apperrors "github.com/gitrueng/user-management-app/pkg/errors"
)

// AccountRepository implements repository.AccountRepository with a map
// guarded by a mutex. Stored values are copied on the way in and out.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account // by ID
}

// NewAccountRepository creates an empty in-memory store.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[string]*domain.Account)}
}

func (r *AccountRepository) Create(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnique(a); err != nil {
		return err
	}
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *AccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, apperrors.AccountNotFound(id)
	}
	cp := *a
	return &cp, nil
}

func (r *AccountRepository) GetByUsername(_ context.Context, username string) (*domain.Account, error) {
	return r.find(username, func(a *domain.Account) bool { return a.Username == username })
}

func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	return r.find(email, func(a *domain.Account) bool { return a.Email == email })
}

func (r *AccountRepository) find(key string, match func(*domain.Account) bool) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperrors.AccountNotFound(key)
}

func (r *AccountRepository) List(_ context.Context, offset, limit int) ([]*domain.Account, int, error) {
	r.mu.RLock()
	all := make([]*domain.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		cp := *a
		all = append(all, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []*domain.Account{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *AccountRepository) Update(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[a.ID]; !ok {
		return apperrors.AccountNotFound(a.ID)
	}
	if err := r.checkUnique(a); err != nil {
		return err
	}
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *AccountRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; !ok {
		return apperrors.AccountNotFound(id)
	}
	delete(r.accounts, id)
	return nil
}

// checkUnique mirrors the unique indexes on username and email. The caller
// holds the write lock.
func (r *AccountRepository) checkUnique(a *domain.Account) error {
	for id, other := range r.accounts {
		if id == a.ID {
			continue
		}
		if other.Username == a.Username {
			return apperrors.DuplicateUsername(a.Username)
		}
		if other.Email == a.Email {
			return apperrors.DuplicateEmail(a.Email)
		}
	}
	return nil
}
