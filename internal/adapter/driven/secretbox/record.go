package secretbox

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ericfisherdev/chargegw/internal/domain/model"
)

// recordVersion is bumped when the persisted layout changes; records with
// any other version are treated as malformed.
const recordVersion = 1

type record struct {
	Version int `json:"version"`
	model.Credential
}

// SealCredential serializes cred and seals it.
func (s *Sealer) SealCredential(cred model.Credential) (string, error) {
	data, err := json.Marshal(record{Version: recordVersion, Credential: cred})
	if err != nil {
		return "", fmt.Errorf("marshal credential: %w", err)
	}
	return s.Seal(data)
}

// OpenCredential reverses SealCredential. Any error means the payload is
// malformed and should be treated as an absent record.
func (s *Sealer) OpenCredential(payload string) (*model.Credential, error) {
	data, err := s.Open(payload)
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("unsupported record version %d", rec.Version)
	}
	if rec.AccessToken == "" || rec.ExpiresAt.IsZero() {
		return nil, errors.New("record missing token or expiry")
	}

	cred := rec.Credential
	return &cred, nil
}
