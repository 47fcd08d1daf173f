package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/chargegw/internal/domain/model"
	"github.com/ericfisherdev/chargegw/internal/domain/port/driven"
)

// TokenSource supplies bearer tokens and accepts notice of rejected ones.
// *SessionManager is the production implementation.
type TokenSource interface {
	ValidToken(ctx context.Context) (string, error)
	Invalidate(ctx context.Context, token string)
}

// ChargerService exposes the gateway's three charger operations for the
// configured charger. Vendor calls are never retried: a rejected token
// invalidates the session and the error is returned, so the next call logs
// in again.
type ChargerService struct {
	tokens    TokenSource
	vendor    driven.VendorClient
	chargerID string
	evseID    string
	logger    *slog.Logger
}

// NewChargerService creates a ChargerService for chargerID/evseID.
func NewChargerService(tokens TokenSource, vendor driven.VendorClient, chargerID, evseID string, logger *slog.Logger) *ChargerService {
	return &ChargerService{
		tokens:    tokens,
		vendor:    vendor,
		chargerID: chargerID,
		evseID:    evseID,
		logger:    logger,
	}
}

// Status returns the charger status document verbatim.
func (s *ChargerService) Status(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.withToken(ctx, func(token string) error {
		var err error
		out, err = s.vendor.ChargerStatus(ctx, token, s.chargerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("charger status: %w", err)
	}
	return out, nil
}

// Start starts a charging session on the configured EVSE.
func (s *ChargerService) Start(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.withToken(ctx, func(token string) error {
		var err error
		out, err = s.vendor.StartSession(ctx, token, s.evseID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	s.logger.Info("charging session started", "evse_id", s.evseID)
	return out, nil
}

// Stop stops the charger's active session. Returns an error matching
// model.ErrNoActiveSession when nothing is charging.
func (s *ChargerService) Stop(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.withToken(ctx, func(token string) error {
		session, err := s.vendor.ActiveSession(ctx, token, s.chargerID)
		if err != nil {
			return err
		}
		out, err = s.vendor.StopSession(ctx, token, session.ID)
		if err == nil {
			s.logger.Info("charging session stopped", "session_id", session.ID, "evse_id", session.EVSEID)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stop session: %w", err)
	}
	return out, nil
}

// withToken runs call with a valid token and invalidates that token if the
// vendor rejects it.
func (s *ChargerService) withToken(ctx context.Context, call func(token string) error) error {
	token, err := s.tokens.ValidToken(ctx)
	if err != nil {
		return err
	}

	err = call(token)
	if errors.Is(err, model.ErrUnauthorized) {
		s.tokens.Invalidate(context.WithoutCancel(ctx), token)
	}
	return err
}
