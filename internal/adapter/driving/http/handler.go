package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/chargegw/internal/domain/model"
)

// ChargerOperations is the charger use case served by the gateway.
// *application.ChargerService implements it.
type ChargerOperations interface {
	Status(ctx context.Context) (json.RawMessage, error)
	Start(ctx context.Context) (json.RawMessage, error)
	Stop(ctx context.Context) (json.RawMessage, error)
}

// SessionReporter reports the cached login state without logging in.
// *application.SessionManager implements it.
type SessionReporter interface {
	Status(ctx context.Context) model.SessionStatus
}

// Handler is the HTTP driving adapter that serves the gateway API.
type Handler struct {
	charger  ChargerOperations
	sessions SessionReporter
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(charger ChargerOperations, sessions SessionReporter, logger *slog.Logger) *Handler {
	return &Handler{
		charger:  charger,
		sessions: sessions,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request-id, logging and recovery middleware. gatherer backs /metrics;
// nil leaves the endpoint out.
func NewServeMux(h *Handler, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /charger/{$}", h.ChargerStatus)
	mux.HandleFunc("GET /charger", h.ChargerStatus)
	mux.HandleFunc("POST /charger/start", h.StartCharging)
	mux.HandleFunc("POST /charger/stop", h.StopCharging)
	mux.HandleFunc("GET /health", h.Health)

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// ChargerStatus returns the vendor's charger document verbatim.
func (h *Handler) ChargerStatus(w http.ResponseWriter, r *http.Request) {
	body, err := h.charger.Status(r.Context())
	if err != nil {
		h.fail(w, r, "failed to get charger status", err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

// StartCharging starts a session on the configured EVSE.
func (h *Handler) StartCharging(w http.ResponseWriter, r *http.Request) {
	body, err := h.charger.Start(r.Context())
	if err != nil {
		h.fail(w, r, "failed to start charging", err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

// StopCharging stops the charger's active session, or answers 404 when
// nothing is charging.
func (h *Handler) StopCharging(w http.ResponseWriter, r *http.Request) {
	body, err := h.charger.Stop(r.Context())
	if err != nil {
		h.fail(w, r, "failed to stop charging", err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

// Health reports liveness and whether a valid token is cached.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.sessions.Status(r.Context())

	resp := HealthResponse{
		Status:        "ok",
		Authenticated: status.Authenticated,
	}
	if status.Authenticated {
		resp.ExpiresAt = status.ExpiresAt.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}

// fail maps a use-case error to a status code and writes it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, model.ErrNoActiveSession) {
		writeError(w, http.StatusNotFound, "no active charging session")
		return
	}

	h.logger.Error(msg, "error", err, "request_id", requestIDFrom(r.Context()))

	if errors.Is(err, context.Canceled) {
		// The client is gone; nothing useful can be written.
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
