package driven

import (
	"context"
	"encoding/json"

	"github.com/ericfisherdev/chargegw/internal/domain/model"
)

// VendorClient defines the driven port for the charging vendor's REST API.
// Every call takes the bearer token to present. Responses rejected with 401
// or 403 return an error matching model.ErrUnauthorized; other non-2xx
// responses return *model.VendorError.
type VendorClient interface {
	// ChargerStatus returns the charger/EVSE status payload verbatim.
	ChargerStatus(ctx context.Context, token, chargerID string) (json.RawMessage, error)

	// StartSession starts charging on evseID and returns the vendor acknowledgement.
	StartSession(ctx context.Context, token, evseID string) (json.RawMessage, error)

	// ActiveSession returns the running session on chargerID.
	// Returns model.ErrNoActiveSession when none is running.
	ActiveSession(ctx context.Context, token, chargerID string) (*model.ChargingSession, error)

	// StopSession stops sessionID and returns the vendor confirmation.
	StopSession(ctx context.Context, token, sessionID string) (json.RawMessage, error)
}
