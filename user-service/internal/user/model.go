package user

import (
	"time"

	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
	"github.com/vasiliy-maslov/order-platform/pkg/auth"
)

var (
	ErrNotFound           = apperr.New(apperr.NotFound, "user not found")
	ErrEmailExists        = apperr.New(apperr.Conflict, "user already exists")
	ErrInvalidCredentials = apperr.New(apperr.Unauthorized, "invalid credentials")
)

// User is a registered identity. PasswordHash never leaves the service.
type User struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	Role         auth.Role `db:"role"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func (u *User) Principal() auth.Principal {
	return auth.Principal{ID: u.ID, Email: u.Email, Role: u.Role}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Session is what a successful register or login hands back.
type Session struct {
	User  *User
	Token auth.Token
}
