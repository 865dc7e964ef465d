package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gitrueng/user-management-app/internal/domain"
	"github.com/gitrueng/user-management-app/pkg/database"
	apperrors "github.com/gitrueng/user-management-app/pkg/errors"
)

// Unique index names from migrations/001_create_users.up.sql.
const (
	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"

	uniqueViolation = "23505"
)

const accountColumns = `id, username, email, password_hash, first_name, last_name, phone_number,
	email_verified, locked, disabled, created_at, updated_at`

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db     database.DBTX
	tracer *database.QueryTracer
}

// NewAccountRepository creates a PostgreSQL-backed account repository. A nil
// tracer still records spans but never logs slow queries.
func NewAccountRepository(db database.DBTX, tracer *database.QueryTracer) *AccountRepository {
	return &AccountRepository{db: db, tracer: tracer}
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) (err error) {
	query := `
		INSERT INTO users (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	ctx, end := r.tracer.Start(ctx, "CreateAccount", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		a.ID,
		a.Username,
		a.Email,
		a.PasswordHash,
		a.FirstName,
		a.LastName,
		a.PhoneNumber,
		a.EmailVerified,
		a.Locked,
		a.Disabled,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if dup := duplicateError(err, a); dup != nil {
			return dup
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by its ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getBy(ctx, "GetAccountByID", "id", id)
}

// GetByUsername retrieves an account by its username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.getBy(ctx, "GetAccountByUsername", "username", username)
}

// GetByEmail retrieves an account by its email address.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getBy(ctx, "GetAccountByEmail", "email", email)
}

// column is always one of the literals passed by the GetBy methods.
func (r *AccountRepository) getBy(ctx context.Context, op, column, value string) (a *domain.Account, err error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE ` + column + ` = $1`

	ctx, end := r.tracer.Start(ctx, op, query)
	defer func() { end(err) }()

	a, err = scanAccount(r.db.QueryRow(ctx, query, value))
	if errors.Is(err, pgx.ErrNoRows) {
		notFound := apperrors.AccountNotFound(value)
		notFound.Err = err
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account by %s: %w", column, err)
	}
	return a, nil
}

// List returns a page of accounts, oldest first, and the total count.
func (r *AccountRepository) List(ctx context.Context, offset, limit int) (accounts []*domain.Account, total int, err error) {
	countQuery := `SELECT COUNT(*) FROM users`

	ctx, end := r.tracer.Start(ctx, "ListAccounts", countQuery)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	query := `
		SELECT ` + accountColumns + `
		FROM users
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts = []*domain.Account{}
	for rows.Next() {
		a, scanErr := scanAccount(rows)
		if scanErr != nil {
			err = scanErr
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate account rows: %w", err)
	}
	return accounts, total, nil
}

// Update overwrites the mutable fields of an existing account.
func (r *AccountRepository) Update(ctx context.Context, a *domain.Account) (err error) {
	query := `
		UPDATE users
		SET username = $1, email = $2, password_hash = $3, first_name = $4, last_name = $5,
		    phone_number = $6, email_verified = $7, locked = $8, disabled = $9, updated_at = $10
		WHERE id = $11`

	ctx, end := r.tracer.Start(ctx, "UpdateAccount", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		a.Username,
		a.Email,
		a.PasswordHash,
		a.FirstName,
		a.LastName,
		a.PhoneNumber,
		a.EmailVerified,
		a.Locked,
		a.Disabled,
		a.UpdatedAt,
		a.ID,
	)
	if err != nil {
		if dup := duplicateError(err, a); dup != nil {
			return dup
		}
		return fmt.Errorf("update account: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.AccountNotFound(a.ID)
	}
	return nil
}

// Delete removes an account by its ID.
func (r *AccountRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM users WHERE id = $1`

	ctx, end := r.tracer.Start(ctx, "DeleteAccount", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.AccountNotFound(id)
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.FirstName,
		&a.LastName,
		&a.PhoneNumber,
		&a.EmailVerified,
		&a.Locked,
		&a.Disabled,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// duplicateError maps a unique violation on the username or email index to
// the matching duplicate failure. It returns nil for any other error.
func duplicateError(err error, a *domain.Account) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case usernameConstraint:
		return apperrors.DuplicateUsername(a.Username)
	case emailConstraint:
		return apperrors.DuplicateEmail(a.Email)
	default:
		return nil
	}
}
