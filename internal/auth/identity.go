package auth

import (
	"context"

	"github.com/gitrueng/user-management-app/internal/domain"
)

// Identity is the authenticated principal of one request.
type Identity struct {
	Subject     string
	Authorities map[string]struct{}
}

// HasAuthority reports whether the identity was granted authority a.
func (i Identity) HasAuthority(a string) bool {
	_, ok := i.Authorities[a]
	return ok
}

// IdentityFromAccount maps a stored account to the principal it
// authenticates as. Accounts carry no roles, so authorities stay empty.
func IdentityFromAccount(a *domain.Account) Identity {
	return Identity{Subject: a.Username, Authorities: map[string]struct{}{}}
}

type identityKey struct{}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by NewContext, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Resolver turns a verified token subject into an Identity.
type Resolver interface {
	Resolve(ctx context.Context, subject string) (Identity, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, subject string) (Identity, error)

func (f ResolverFunc) Resolve(ctx context.Context, subject string) (Identity, error) {
	return f(ctx, subject)
}

// SubjectResolver builds the identity from the token alone, without a
// store lookup.
var SubjectResolver Resolver = ResolverFunc(func(_ context.Context, subject string) (Identity, error) {
	return Identity{Subject: subject, Authorities: map[string]struct{}{}}, nil
})
