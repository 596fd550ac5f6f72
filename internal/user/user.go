package user

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("user not found")
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Service interface {
	// Register creates an account with a bcrypt-hashed password.
	Register(ctx context.Context, email, password string) (User, error)

	// Authenticate verifies credentials and returns the account.
	// Returns ErrInvalidCredentials for unknown email or wrong password,
	// without distinguishing the two.
	Authenticate(ctx context.Context, email, password string) (User, error)
}
