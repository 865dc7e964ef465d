package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/gitrueng/user-management-app/pkg/errors"
)

// Purpose scopes what a token may be used for. A token issued for one
// purpose never verifies for another.
type Purpose string

const (
	PurposeSession       Purpose = "session"
	PurposeVerifyEmail   Purpose = "verify_email"
	PurposeResetPassword Purpose = "reset_password"
)

var (
	// ErrMissingSecret means the service was built without a signing secret.
	ErrMissingSecret = errors.New("auth: token signing secret is not configured")
	// ErrInvalidTTL means a token was requested with a non-positive lifetime.
	ErrInvalidTTL = errors.New("auth: token ttl must be positive")
)

// Claims are the JWT claims carried by every token the service issues.
type Claims struct {
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenConfig holds the settings shared by issue and verify.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// TokenService issues and verifies HS512-signed JWTs.
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// Option customizes a TokenService.
type Option func(*TokenService)

// WithClock replaces the wall clock used for iat, exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a TokenService. An empty secret is accepted here
// and reported as ErrMissingSecret on first use.
func NewTokenService(cfg TokenConfig, opts ...Option) *TokenService {
	s := &TokenService{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a session token for subject valid for ttl.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	return s.IssueFor(PurposeSession, subject, ttl)
}

// Verify checks a session token and returns its subject.
func (s *TokenService) Verify(token string) (string, error) {
	return s.VerifyFor(PurposeSession, token)
}

// IssueFor signs a token for the given purpose.
func (s *TokenService) IssueFor(purpose Purpose, subject string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}

	now := s.now().UTC()
	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, nil
}

// VerifyFor validates the signature, issuer, audience, expiry and purpose
// of token and returns its subject. An expired token is only reported as
// expired once its signature has been verified; every other failure is a
// decode failure.
func (s *TokenService) VerifyFor(purpose Purpose, token string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	parser := jwt.NewParser(
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(token, &claims, s.keyFunc)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", apperrors.TokenExpired(err)
	case err != nil:
		return "", apperrors.TokenDecode(err)
	}

	if claims.Purpose != purpose {
		return "", apperrors.TokenDecode(fmt.Errorf("token purpose %q, want %q", claims.Purpose, purpose))
	}
	if claims.Subject == "" {
		return "", apperrors.TokenDecode(errors.New("token has no subject"))
	}
	return claims.Subject, nil
}

func (s *TokenService) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return s.secret, nil
}
