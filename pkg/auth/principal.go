package auth

import (
	"context"

	"github.com/gofrs/uuid"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Principal is the verified identity carried by a token.
type Principal struct {
	ID    uuid.UUID
	Email string
	Role  Role
}

// Credential is the opaque bearer value a caller presented, kept exactly as
// received so it can be forwarded to downstream services unchanged.
type Credential string

const bearerPrefix = "Bearer "

// BearerCredential builds the header value for a freshly minted token.
func BearerCredential(token string) Credential {
	return Credential(bearerPrefix + token)
}

// Token strips the bearer scheme. ok is false when the scheme is missing.
func (c Credential) Token() (string, bool) {
	s := string(c)
	if len(s) <= len(bearerPrefix) || s[:len(bearerPrefix)] != bearerPrefix {
		return "", false
	}
	return s[len(bearerPrefix):], true
}

type ctxKey int

const (
	principalKey ctxKey = iota
	credentialKey
)

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func WithCredential(ctx context.Context, c Credential) context.Context {
	return context.WithValue(ctx, credentialKey, c)
}

func CredentialFrom(ctx context.Context) (Credential, bool) {
	c, ok := ctx.Value(credentialKey).(Credential)
	return c, ok
}
