package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
	"github.com/vasiliy-maslov/order-platform/pkg/auth"
)

// bcrypt only hashes the first 72 bytes.
const maxPasswordBytes = 72

var (
	errPasswordRequired = apperr.New(apperr.InvalidInput, "password cannot be empty")
	ErrPasswordTooLong  = apperr.New(apperr.InvalidInput, "password must be at most 72 bytes")
)

// TokenIssuer is satisfied by *auth.Issuer.
type TokenIssuer interface {
	Mint(p auth.Principal) (auth.Token, error)
	Verify(token string) (auth.Principal, error)
}

type Service interface {
	Register(ctx context.Context, input RegisterInput) (*Session, error)
	Authenticate(ctx context.Context, email, password string) (*Session, error)
	Verify(ctx context.Context, token string) (*User, error)
	EnsureAdmin(ctx context.Context, email, password string) error
}

type service struct {
	repo      Repository
	issuer    TokenIssuer
	cost      int
	dummyHash []byte
	now       func() time.Time
}

func NewService(repo Repository, issuer TokenIssuer, bcryptCost int) (Service, error) {
	// Compared against when the email is unknown so both login failures
	// take the same time.
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("service: failed to prepare password hasher: %w", err)
	}

	return &service{
		repo:      repo,
		issuer:    issuer,
		cost:      bcryptCost,
		dummyHash: dummy,
		now:       time.Now,
	}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	u, err := s.create(ctx, input, auth.RoleUser)
	if err != nil {
		return nil, err
	}

	token, err := s.issuer.Mint(u.Principal())
	if err != nil {
		log.Error().Err(err).Stringer("user_id", u.ID).Msg("service: failed to mint token after registration")
		return nil, fmt.Errorf("service: failed to mint token: %w", err)
	}

	log.Info().Stringer("user_id", u.ID).Str("email", u.Email).Msg("service: user registered")
	return &Session{User: u, Token: token}, nil
}

func (s *service) create(ctx context.Context, input RegisterInput, role auth.Role) (*User, error) {
	if input.Password == "" {
		return nil, errPasswordRequired
	}
	if len(input.Password) > maxPasswordBytes {
		return nil, ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, ErrPasswordTooLong
		}
		log.Error().Err(err).Msg("service: failed to generate password hash")
		return nil, fmt.Errorf("service: internal error hashing password: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate user id: %w", err)
	}

	u := &User{
		ID:           id,
		Email:        input.Email,
		Name:         input.Name,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}

	if _, err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailExists) {
			log.Warn().Str("email", input.Email).Msg("service: registration with existing email")
			return nil, ErrEmailExists
		}
		log.Error().Err(err).Msg("service: failed to create user in repository")
		return nil, fmt.Errorf("service: failed to save user: %w", err)
	}

	return u, nil
}

// Authenticate returns ErrInvalidCredentials for both an unknown email and a
// wrong password.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Msg("service: failed to get user by email in repository")
			return nil, fmt.Errorf("service: failed to get user by email: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		log.Warn().Msg("service: login failed")
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		log.Warn().Msg("service: login failed")
		return nil, ErrInvalidCredentials
	}

	token, err := s.issuer.Mint(u.Principal())
	if err != nil {
		log.Error().Err(err).Stringer("user_id", u.ID).Msg("service: failed to mint token on login")
		return nil, fmt.Errorf("service: failed to mint token: %w", err)
	}

	log.Info().Stringer("user_id", u.ID).Msg("service: user logged in")
	return &Session{User: u, Token: token}, nil
}

func (s *service) Verify(ctx context.Context, token string) (*User, error) {
	principal, err := s.issuer.Verify(token)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.GetByID(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn().Stringer("user_id", principal.ID).Msg("service: token subject no longer exists")
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: failed to get user by id '%s': %w", principal.ID, err)
	}

	return u, nil
}

// EnsureAdmin creates the bootstrap admin unless the email is taken already.
func (s *service) EnsureAdmin(ctx context.Context, email, password string) error {
	_, err := s.create(ctx, RegisterInput{Email: email, Password: password, Name: "Administrator"}, auth.RoleAdmin)
	if errors.Is(err, ErrEmailExists) {
		log.Info().Str("email", email).Msg("service: admin account already present")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().Str("email", email).Msg("service: admin account created")
	return nil
}
