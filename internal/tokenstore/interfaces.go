package tokenstore

import (
	"context"
	"errors"

	"github.com/florianilch/claudine-auth/internal/session"
)

// ErrNotFound is returned by Load when no credentials are stored.
var ErrNotFound = errors.New("no stored credentials")

// CredentialStore reads and writes session credentials to persistent storage.
type CredentialStore interface {
	// Load returns the stored credentials. Returns ErrNotFound if nothing is stored.
	Load(ctx context.Context) (*session.Credentials, error)

	// Save replaces the stored credentials.
	Save(ctx context.Context, creds *session.Credentials) error

	// Clear removes the stored credentials. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
