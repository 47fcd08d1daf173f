// Package filestore implements the TokenStore port as a single file on disk.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/chargegw/internal/adapter/driven/secretbox"
	"github.com/ericfisherdev/chargegw/internal/domain/model"
	"github.com/ericfisherdev/chargegw/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TokenStore = (*Store)(nil)

// Store keeps the credential record in one file. Writes go to a temporary
// file in the same directory which is then renamed over the target, so a
// reader never observes a partial record.
type Store struct {
	path   string
	sealer *secretbox.Sealer
	logger *slog.Logger
}

// New creates a Store writing to path. sealer may be a passthrough.
func New(path string, sealer *secretbox.Sealer, logger *slog.Logger) *Store {
	return &Store{path: path, sealer: sealer, logger: logger}
}

// Path returns the file the record is persisted to.
func (s *Store) Path() string { return s.path }

// Load reads the credential file. A missing or malformed file yields (nil, nil).
func (s *Store) Load(_ context.Context) (*model.Credential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StorageError{Op: "load", Err: err}
	}

	cred, err := s.sealer.OpenCredential(string(bytes.TrimSpace(data)))
	if err != nil {
		s.logger.Warn("ignoring malformed token file", "path", s.path, "error", err)
		return nil, nil
	}
	return cred, nil
}

// Save atomically replaces the credential file.
func (s *Store) Save(_ context.Context, cred model.Credential) error {
	payload, err := s.sealer.SealCredential(cred)
	if err != nil {
		return &model.StorageError{Op: "save", Err: err}
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return &model.StorageError{Op: "save", Err: err}
		}
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader([]byte(payload+"\n"))); err != nil {
		return &model.StorageError{Op: "save", Err: err}
	}
	// atomic.WriteFile keeps the mode of an existing file; a fresh file
	// gets the temp file's 0600.
	if err := os.Chmod(s.path, 0o600); err != nil {
		return &model.StorageError{Op: "save", Err: err}
	}
	return nil
}

// Clear deletes the credential file.
func (s *Store) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &model.StorageError{Op: "clear", Err: err}
	}
	return nil
}
