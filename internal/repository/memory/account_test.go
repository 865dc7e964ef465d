package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrueng/user-management-app/internal/domain"
	apperrors "github.com/gitrueng/user-management-app/pkg/errors"
)

func account(id, username string, created time.Time) *domain.Account {
	return &domain.Account{
		ID:        id,
		Username:  username,
		Email:     username + "@example.com",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestAccountRepository_CreateAndGet(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()
	a := account("1", "alice", time.Now())

	require.NoError(t, repo.Create(ctx, a))

	byID, err := repo.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byName, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1", byName.ID)

	byEmail, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "1", byEmail.ID)
}

func TestAccountRepository_ReturnsCopies(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()
	a := account("1", "alice", time.Now())
	require.NoError(t, repo.Create(ctx, a))

	a.FirstName = "changed after create"
	got, err := repo.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, got.FirstName)

	got.FirstName = "changed after get"
	again, err := repo.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, again.FirstName)
}

func TestAccountRepository_Duplicates(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, account("1", "alice", time.Now())))

	err := repo.Create(ctx, account("2", "alice", time.Now()))
	assert.Equal(t, apperrors.KindDuplicateUsername, apperrors.KindOf(err))

	other := account("3", "alicia", time.Now())
	other.Email = "alice@example.com"
	err = repo.Create(ctx, other)
	assert.Equal(t, apperrors.KindDuplicateEmail, apperrors.KindOf(err))
}

func TestAccountRepository_NotFound(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "nope")
	assert.Equal(t, apperrors.KindAccountNotFound, apperrors.KindOf(err))
	_, err = repo.GetByUsername(ctx, "nope")
	assert.Equal(t, apperrors.KindAccountNotFound, apperrors.KindOf(err))
	_, err = repo.GetByEmail(ctx, "nope@example.com")
	assert.Equal(t, apperrors.KindAccountNotFound, apperrors.KindOf(err))
	assert.Equal(t, apperrors.KindAccountNotFound, apperrors.KindOf(repo.Delete(ctx, "nope")))
	assert.Equal(t, apperrors.KindAccountNotFound, apperrors.KindOf(repo.Update(ctx, account("nope", "x", time.Now()))))
}

func TestAccountRepository_UpdateKeepsOwnEmail(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()
	a := account("1", "alice", time.Now())
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, account("2", "bob", time.Now())))

	a.FirstName = "Alice"
	require.NoError(t, repo.Update(ctx, a))

	a.Email = "bob@example.com"
	assert.Equal(t, apperrors.KindDuplicateEmail, apperrors.KindOf(repo.Update(ctx, a)))
}

func TestAccountRepository_ListPages(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, account(fmt.Sprint(i), fmt.Sprintf("user%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	page, total, err := repo.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "user2", page[0].Username)
	assert.Equal(t, "user3", page[1].Username)

	tail, _, err := repo.List(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)

	past, _, err := repo.List(ctx, 10, 10)
	require.NoError(t, err)
	assert.NotNil(t, past)
	assert.Empty(t, past)
}

func TestAccountRepository_DeleteRemoves(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, account("1", "alice", time.Now())))
	require.NoError(t, repo.Delete(ctx, "1"))

	_, err := repo.GetByUsername(ctx, "alice")
	assert.Equal(t, apperrors.KindAccountNotFound, apperrors.KindOf(err))
}

func TestAccountRepository_ConcurrentCreateSameUsername(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := account(fmt.Sprint(i), "alice", time.Now())
			a.Email = fmt.Sprintf("alice%d@example.com", i)
			errs[i] = repo.Create(ctx, a)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		} else {
			assert.Equal(t, apperrors.KindDuplicateUsername, apperrors.KindOf(err))
		}
	}
	assert.Equal(t, 1, created)
}
