package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gitrueng/user-management-app/internal/auth"
	"github.com/gitrueng/user-management-app/internal/domain"
	"github.com/gitrueng/user-management-app/internal/mail"
	"github.com/gitrueng/user-management-app/internal/repository"
	apperrors "github.com/gitrueng/user-management-app/pkg/errors"
	"github.com/gitrueng/user-management-app/pkg/pagination"
)

// EventPublisher announces account changes to other services.
type EventPublisher interface {
	AccountRegistered(ctx context.Context, a *domain.Account) error
	AccountVerified(ctx context.Context, a *domain.Account) error
	AccountUpdated(ctx context.Context, a *domain.Account) error
	PasswordReset(ctx context.Context, a *domain.Account) error
	AccountDeleted(ctx context.Context, a *domain.Account) error
}

// Mailer queues an email for delivery without blocking.
type Mailer interface {
	Enqueue(ctx context.Context, msg *mail.Message) bool
}

// TokenLifetimes sets how long each kind of token stays valid.
type TokenLifetimes struct {
	Session       time.Duration
	VerifyEmail   time.Duration
	ResetPassword time.Duration
}

// AccountService implements login, signup and the account operations
// behind the user API.
type AccountService struct {
	repo      repository.AccountRepository
	hasher    *auth.PasswordHasher
	tokens    *auth.TokenService
	attempts  auth.AttemptTracker
	composer  *mail.Composer
	mailer    Mailer
	events    EventPublisher
	lifetimes TokenLifetimes
	logger    *slog.Logger
	now       func() time.Time
}

var _ auth.Resolver = (*AccountService)(nil)

// NewAccountService creates an account service. events may be nil, in which
// case no domain events are published.
func NewAccountService(
	repo repository.AccountRepository,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenService,
	attempts auth.AttemptTracker,
	composer *mail.Composer,
	mailer Mailer,
	events EventPublisher,
	lifetimes TokenLifetimes,
	logger *slog.Logger,
) *AccountService {
	if attempts == nil {
		attempts = auth.NoopAttemptTracker{}
	}
	return &AccountService{
		repo:      repo,
		hasher:    hasher,
		tokens:    tokens,
		attempts:  attempts,
		composer:  composer,
		mailer:    mailer,
		events:    events,
		lifetimes: lifetimes,
		logger:    logger,
		now:       time.Now,
	}
}

// SignupInput holds the fields of a new account.
type SignupInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
}

// UpdateInput holds the fields a user may change on their own account.
// Blank fields are left as they are.
type UpdateInput struct {
	FirstName   string
	LastName    string
	PhoneNumber string
	Email       string
	Password    string
}

// --- Credential operations ---

// Login checks username and password and issues a session token. No token
// is issued on any failure. An unknown username costs the same bcrypt work
// and yields the same error as a wrong password.
func (s *AccountService) Login(ctx context.Context, username, password string) (auth.Identity, string, *domain.Account, error) {
	username = domain.NormalizeUsername(username)

	locked, err := s.attempts.Locked(ctx, username)
	if err != nil {
		s.logger.WarnContext(ctx, "login attempt tracker unavailable",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
	}
	if locked {
		return auth.Identity{}, "", nil, apperrors.AccountLocked()
	}

	a, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if !apperrors.Is(err, apperrors.KindAccountNotFound) {
			return auth.Identity{}, "", nil, fmt.Errorf("login: %w", err)
		}
		s.hasher.CompareDummy(password)
		s.recordFailure(ctx, username)
		return auth.Identity{}, "", nil, apperrors.BadCredentials()
	}

	ok, err := s.hasher.Compare(a.PasswordHash, password)
	if err != nil {
		return auth.Identity{}, "", nil, fmt.Errorf("login: %w", err)
	}
	if !ok {
		s.recordFailure(ctx, username)
		return auth.Identity{}, "", nil, apperrors.BadCredentials()
	}

	switch {
	case a.Locked:
		return auth.Identity{}, "", nil, apperrors.AccountLocked()
	case a.Disabled:
		return auth.Identity{}, "", nil, apperrors.AccountDisabled()
	case !a.EmailVerified:
		return auth.Identity{}, "", nil, apperrors.EmailNotVerified(a.Email)
	}

	token, err := s.tokens.Issue(a.Username, s.lifetimes.Session)
	if err != nil {
		return auth.Identity{}, "", nil, fmt.Errorf("issue session token: %w", err)
	}

	if err := s.attempts.Reset(ctx, username); err != nil {
		s.logger.WarnContext(ctx, "failed to reset login attempts",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("username", a.Username))
	return auth.IdentityFromAccount(a), token, a, nil
}

func (s *AccountService) recordFailure(ctx context.Context, username string) {
	n, err := s.attempts.RecordFailure(ctx, username)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record login attempt",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.InfoContext(ctx, "login failed",
		slog.String("username", username),
		slog.Int64("failed_attempts", n),
	)
}

// Signup registers a new, unverified account and queues its verification
// email. Username and email are stored lowercase.
func (s *AccountService) Signup(ctx context.Context, input SignupInput) (*domain.Account, error) {
	username := domain.NormalizeUsername(input.Username)
	email := domain.NormalizeEmail(input.Email)

	if err := s.checkAvailable(ctx, username, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a := &domain.Account{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		PhoneNumber:   strings.TrimSpace(input.PhoneNumber),
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.String("account_id", a.ID),
		slog.String("username", a.Username),
	)

	s.sendEmail(ctx, a, auth.PurposeVerifyEmail)
	s.publish(ctx, "account.registered", a, EventPublisher.AccountRegistered)

	return a, nil
}

// checkAvailable rejects a username, then an email, that already belongs to
// an account.
func (s *AccountService) checkAvailable(ctx context.Context, username, email string) error {
	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return apperrors.DuplicateUsername(username)
	} else if !apperrors.Is(err, apperrors.KindAccountNotFound) {
		return fmt.Errorf("check username: %w", err)
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return apperrors.DuplicateEmail(email)
	} else if !apperrors.Is(err, apperrors.KindAccountNotFound) {
		return fmt.Errorf("check email: %w", err)
	}
	return nil
}

// VerifyEmail marks the account named by an email verification token as
// verified. Verifying twice is not an error.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*domain.Account, error) {
	username, err := s.tokens.VerifyFor(auth.PurposeVerifyEmail, token)
	if err != nil {
		return nil, err
	}

	a, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if a.EmailVerified {
		return a, nil
	}

	a.EmailVerified = true
	a.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("verify email: %w", err)
	}

	s.logger.InfoContext(ctx, "email verified", slog.String("username", a.Username))
	s.publish(ctx, "account.verified", a, EventPublisher.AccountVerified)
	return a, nil
}

// RequestPasswordReset queues a reset email when an account has the given
// address. An unknown address is not reported to the caller.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)

	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.Is(err, apperrors.KindAccountNotFound) {
			s.logger.DebugContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("request password reset: %w", err)
	}

	s.sendEmail(ctx, a, auth.PurposeResetPassword)
	return nil
}

// ResetPassword sets a new password for the account named by a password
// reset token and clears its failed login count.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	username, err := s.tokens.VerifyFor(auth.PurposeResetPassword, token)
	if err != nil {
		return err
	}

	a, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	a.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, a); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if err := s.attempts.Reset(ctx, a.Username); err != nil {
		s.logger.WarnContext(ctx, "failed to reset login attempts",
			slog.String("username", a.Username),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset", slog.String("username", a.Username))
	s.publish(ctx, "account.password_reset", a, EventPublisher.PasswordReset)
	return nil
}

// --- Account operations ---

// CurrentAccount returns the account the identity authenticates as.
func (s *AccountService) CurrentAccount(ctx context.Context, id auth.Identity) (*domain.Account, error) {
	return s.repo.GetByUsername(ctx, id.Subject)
}

// Resolve maps a verified token subject to the identity of a live account.
// Tokens outlive the accounts they were issued for, so a vanished account
// is NotAuthenticated and a locked or disabled one is refused.
func (s *AccountService) Resolve(ctx context.Context, subject string) (auth.Identity, error) {
	a, err := s.repo.GetByUsername(ctx, subject)
	switch {
	case apperrors.Is(err, apperrors.KindAccountNotFound):
		return auth.Identity{}, apperrors.NotAuthenticated()
	case err != nil:
		return auth.Identity{}, fmt.Errorf("resolve identity: %w", err)
	case a.Locked:
		return auth.Identity{}, apperrors.AccountLocked()
	case a.Disabled:
		return auth.Identity{}, apperrors.AccountDisabled()
	}
	return auth.IdentityFromAccount(a), nil
}

// UpdateAccount applies the non-blank fields of input to the caller's
// account. Taking an email that belongs to another account fails with
// DuplicateEmail.
func (s *AccountService) UpdateAccount(ctx context.Context, id auth.Identity, input UpdateInput) (*domain.Account, error) {
	a, err := s.repo.GetByUsername(ctx, id.Subject)
	if err != nil {
		return nil, err
	}

	if email := domain.NormalizeEmail(input.Email); email != "" && email != a.Email {
		other, err := s.repo.GetByEmail(ctx, email)
		switch {
		case err == nil && other.ID != a.ID:
			return nil, apperrors.DuplicateEmail(email)
		case err != nil && !apperrors.Is(err, apperrors.KindAccountNotFound):
			return nil, fmt.Errorf("check email: %w", err)
		}
		a.Email = email
	}

	setIfPresent(&a.FirstName, input.FirstName)
	setIfPresent(&a.LastName, input.LastName)
	setIfPresent(&a.PhoneNumber, input.PhoneNumber)

	if strings.TrimSpace(input.Password) != "" {
		hash, err := s.hasher.Hash(input.Password)
		if err != nil {
			return nil, err
		}
		a.PasswordHash = hash
	}

	a.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	s.logger.InfoContext(ctx, "account updated", slog.String("username", a.Username))
	s.publish(ctx, "account.updated", a, EventPublisher.AccountUpdated)
	return a, nil
}

func setIfPresent(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

// ListAccounts returns one page of accounts.
func (s *AccountService) ListAccounts(ctx context.Context, params pagination.Params) (pagination.Result[*domain.Account], error) {
	accounts, total, err := s.repo.List(ctx, params.Offset(), params.PerPage)
	if err != nil {
		return pagination.Result[*domain.Account]{}, fmt.Errorf("list accounts: %w", err)
	}
	return pagination.NewResult(accounts, total, params), nil
}

// FindByUsername looks an account up by username, ignoring case.
func (s *AccountService) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return s.repo.GetByUsername(ctx, domain.NormalizeUsername(username))
}

// DeleteAccount removes the account with the given ID.
func (s *AccountService) DeleteAccount(ctx context.Context, id string) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	s.logger.InfoContext(ctx, "account deleted",
		slog.String("account_id", a.ID),
		slog.String("username", a.Username),
	)
	s.publish(ctx, "account.deleted", a, EventPublisher.AccountDeleted)
	return nil
}

// --- helpers ---

// sendEmail issues a purpose token for a and queues the matching email.
// Failures are logged and never reach the caller.
func (s *AccountService) sendEmail(ctx context.Context, a *domain.Account, purpose auth.Purpose) {
	ttl := s.lifetimes.VerifyEmail
	compose := s.composer.Verification
	if purpose == auth.PurposeResetPassword {
		ttl = s.lifetimes.ResetPassword
		compose = s.composer.PasswordReset
	}

	token, err := s.tokens.IssueFor(purpose, a.Username, ttl)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to issue email token",
			slog.String("purpose", string(purpose)),
			slog.String("username", a.Username),
			slog.String("error", err.Error()),
		)
		return
	}

	msg, err := compose(a, token)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to compose email",
			slog.String("purpose", string(purpose)),
			slog.String("username", a.Username),
			slog.String("error", err.Error()),
		)
		return
	}
	s.mailer.Enqueue(ctx, msg)
}

// publish sends a domain event through the given EventPublisher method.
// Failures are logged, not returned.
func (s *AccountService) publish(ctx context.Context, name string, a *domain.Account, send func(EventPublisher, context.Context, *domain.Account) error) {
	if s.events == nil {
		return
	}
	if err := send(s.events, ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("event", name),
			slog.String("account_id", a.ID),
			slog.String("error", err.Error()),
		)
	}
}
