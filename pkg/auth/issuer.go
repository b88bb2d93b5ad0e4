package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
)

// TokenTTL is fixed: tokens are never refreshed or revoked server-side.
const TokenTTL = 24 * time.Hour

var ErrInvalidToken = apperr.New(apperr.Unauthorized, "invalid or expired token")

type Claims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verifier is what the Auth Gate needs from an Issuer.
type Verifier interface {
	Verify(token string) (Principal, error)
}

// Issuer mints and verifies HS256 tokens signed with a process-wide secret.
// It holds no mutable state and is safe for concurrent use.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Issuer)

// WithClock replaces time.Now, for tests that need to move across expiry.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

func NewIssuer(secret string, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret must not be empty")
	}

	i := &Issuer{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func (i *Issuer) Mint(p Principal) (Token, error) {
	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(TokenTTL)

	claims := Claims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: failed to sign token: %w", err)
	}

	return Token{Value: signed, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

// Verify checks signature and expiry only. Every failure is the same
// ErrInvalidToken; the cause is wrapped for logging.
func (i *Issuer) Verify(token string) (Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Principal{}, apperr.Wrap(err, ErrInvalidToken.Kind, ErrInvalidToken.Message)
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return Principal{}, apperr.Wrap(err, ErrInvalidToken.Kind, ErrInvalidToken.Message)
	}
	if !claims.Role.Valid() {
		return Principal{}, apperr.Wrap(fmt.Errorf("unknown role %q", claims.Role), ErrInvalidToken.Kind, ErrInvalidToken.Message)
	}

	return Principal{ID: id, Email: claims.Email, Role: claims.Role}, nil
}

func (i *Issuer) keyFunc(*jwt.Token) (any, error) {
	return i.secret, nil
}
