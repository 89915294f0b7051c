// Package principal manages the accounts tokens are issued to.
package principal

import (
	"context"
	"errors"
	"time"
)

// Account statuses.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Principal is an account that can authenticate and receive tokens.
type Principal struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username,omitempty"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Disabled reports whether the account may no longer authenticate.
func (p *Principal) Disabled() bool { return p.Status == StatusDisabled }

// Store is the account persistence contract.
type Store interface {
	Create(ctx context.Context, p *Principal) error
	Find(ctx context.Context, id string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetStatus(ctx context.Context, id, status string) error
	List(ctx context.Context) ([]*Principal, error)
}

var (
	ErrNotFound       = errors.New("principal: not found")
	ErrDuplicateEmail = errors.New("principal: email already registered")
	ErrUnavailable    = errors.New("principal: store unavailable")
)
