package repository

import (
	"context"

	"github.com/gitrueng/user-management-app/internal/domain"
)

// AccountRepository persists accounts. Lookups that find nothing return an
// AccountNotFound error; writes that collide with an existing username or
// email return DuplicateUsername or DuplicateEmail.
type AccountRepository interface {
	// Create inserts a new account.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by its identifier.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// GetByUsername retrieves an account by its normalized username.
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)

	// GetByEmail retrieves an account by its normalized email address.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// List returns one page of accounts ordered by creation time and the
	// total number of accounts.
	List(ctx context.Context, offset, limit int) ([]*domain.Account, int, error)

	// Update overwrites every mutable field of an existing account.
	Update(ctx context.Context, account *domain.Account) error

	// Delete removes an account by its identifier.
	Delete(ctx context.Context, id string) error
}
