package ports

import (
	"context"
	"errors"

	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
)

// ErrAccountNotFound is returned when no account exists for a username.
var ErrAccountNotFound = errors.New("account not found")

// ErrAccountExists is returned by Create when the username is already taken.
var ErrAccountExists = errors.New("account already exists")

// UserStore is the port interface to the host application's user records.
// The store owns record persistence and the atomicity of its own
// create-if-absent operation; callers must not assume exclusivity across
// concurrent resolutions of the same username.
type UserStore interface {
	// FindByUsername looks up an account by its username join key.
	// Returns ErrAccountNotFound if absent.
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)

	// Create provisions an account with only the username set; profile
	// fields are populated afterwards by reconciliation.
	Create(ctx context.Context, username string) (*domain.Account, error)

	// UpdateProfile replaces the account's profile fields.
	UpdateProfile(ctx context.Context, id int64, fields domain.ProfileFields) error

	// SetRole assigns the account's role.
	SetRole(ctx context.Context, id int64, role string) error

	// GetFlag reads a key/value tag on the account. Missing flags read as
	// "", not an error.
	GetFlag(ctx context.Context, id int64, key string) (string, error)

	// SetFlag writes a key/value tag on the account. Setting a flag to the
	// value it already has is a no-op.
	SetFlag(ctx context.Context, id int64, key, value string) error
}
