package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/chargegw/internal/domain/model"
)

// ErrEncryptionKeyInvalid is returned when CHARGEGW_SECRET_KEY is set but is
// not a 32-byte hex-encoded AES-256 key.
var ErrEncryptionKeyInvalid = errors.New("encryption key invalid: CHARGEGW_SECRET_KEY must be 64 hex characters")

// TokenStore defines the driven port for persisting the single cached
// vendor credential.
type TokenStore interface {
	// Load returns the stored credential. Returns (nil, nil) when no record
	// exists or the stored data cannot be parsed. I/O failures are reported
	// as *model.StorageError.
	Load(ctx context.Context) (*model.Credential, error)

	// Save replaces any stored credential with cred in one atomic write.
	Save(ctx context.Context, cred model.Credential) error

	// Clear removes the stored credential. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
