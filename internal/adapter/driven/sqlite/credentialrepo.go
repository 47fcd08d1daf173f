package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/ericfisherdev/chargegw/internal/adapter/driven/secretbox"
	"github.com/ericfisherdev/chargegw/internal/domain/model"
	"github.com/ericfisherdev/chargegw/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TokenStore = (*CredentialRepo)(nil)

// credentialRowID is the only row the credentials table accepts.
const credentialRowID = 1

// CredentialRepo is the SQLite implementation of the TokenStore port.
// The record is serialized and sealed as one payload, so replacing it is a
// single-row upsert.
type CredentialRepo struct {
	db     *DB
	sealer *secretbox.Sealer
	logger *slog.Logger
}

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(db *DB, sealer *secretbox.Sealer, logger *slog.Logger) *CredentialRepo {
	return &CredentialRepo{db: db, sealer: sealer, logger: logger}
}

// Load returns the stored credential, or (nil, nil) if none exists or it
// cannot be decoded.
func (r *CredentialRepo) Load(ctx context.Context) (*model.Credential, error) {
	const query = `SELECT payload FROM credentials WHERE id = ?`
	var payload string
	err := r.db.Reader.QueryRowContext(ctx, query, credentialRowID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StorageError{Op: "load", Err: err}
	}

	cred, err := r.sealer.OpenCredential(payload)
	if err != nil {
		r.logger.Warn("ignoring malformed stored credential", "path", r.db.Path(), "error", err)
		return nil, nil
	}
	return cred, nil
}

// Save stores or replaces the credential.
func (r *CredentialRepo) Save(ctx context.Context, cred model.Credential) error {
	payload, err := r.sealer.SealCredential(cred)
	if err != nil {
		return &model.StorageError{Op: "save", Err: err}
	}

	const query = `INSERT OR REPLACE INTO credentials (id, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`
	if _, err := r.db.Writer.ExecContext(ctx, query, credentialRowID, payload); err != nil {
		return &model.StorageError{Op: "save", Err: err}
	}
	return nil
}

// Clear removes the stored credential.
func (r *CredentialRepo) Clear(ctx context.Context) error {
	const query = `DELETE FROM credentials WHERE id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, credentialRowID); err != nil {
		return &model.StorageError{Op: "clear", Err: err}
	}
	return nil
}
