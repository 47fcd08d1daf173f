// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/chargegw/internal/domain/model"
	"github.com/ericfisherdev/chargegw/internal/domain/port/driven"
	"github.com/ericfisherdev/chargegw/internal/metrics"
)

// Singleflight keys; there is only one account.
const (
	loginFlightKey = "login"
	loadFlightKey  = "load"
)

// SessionManager holds the gateway's authentication state. It is either
// unauthenticated (no usable credential) or authenticated with a credential
// that has not yet expired. Expiry is checked lazily on each call; there is no
// background refresh.
type SessionManager struct {
	store   driven.TokenStore
	auth    driven.Authenticator
	creds   model.LoginCredentials
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	current *model.Credential
	loaded  bool   // the store copy is known, no need to read it again
	gen     uint64 // bumped whenever current is replaced or dropped

	// storeMu is held while the store is cleared. It is taken before mu is
	// released, so a login that observes the cleared state waits for Clear
	// to finish before saving. Never acquire mu while holding storeMu.
	storeMu sync.Mutex

	flights singleflight.Group
}

// NewSessionManager creates a SessionManager that logs in with creds when no
// valid credential is cached.
func NewSessionManager(
	store driven.TokenStore,
	auth driven.Authenticator,
	creds model.LoginCredentials,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SessionManager {
	return &SessionManager{
		store:   store,
		auth:    auth,
		creds:   creds,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// ValidToken returns a bearer token that has not expired, logging in first if
// necessary. Concurrent callers that find no valid token share one login.
// If ctx ends while a login is in flight, ValidToken returns ctx.Err() but the
// login carries on and populates the cache.
func (m *SessionManager) ValidToken(ctx context.Context) (string, error) {
	if cred, source := m.cached(ctx); cred != nil {
		m.metrics.RecordTokenLookup(source)
		return cred.AccessToken, nil
	}
	m.metrics.RecordTokenLookup("miss")

	cred, err := m.login(ctx, false)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// Login forces a fresh login even when a valid credential is cached.
func (m *SessionManager) Login(ctx context.Context) (*model.Credential, error) {
	return m.login(ctx, true)
}

// Invalidate drops the cached credential after the vendor rejected token.
// A token that has already been replaced by a newer login is ignored.
func (m *SessionManager) Invalidate(ctx context.Context, token string) {
	m.mu.Lock()
	if m.current == nil || m.current.AccessToken != token {
		m.mu.Unlock()
		return
	}
	// The store still holds the rejected token; it must not be read back.
	m.current = nil
	m.loaded = true
	m.gen++
	m.storeMu.Lock()
	m.mu.Unlock()
	defer m.storeMu.Unlock()

	m.logger.Warn("vendor rejected access token, next call will log in again")

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("failed to clear rejected token", "error", err)
	}
}

// Logout clears the cached credential in memory and in the store.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.loaded = true
	m.gen++
	m.storeMu.Lock()
	m.mu.Unlock()
	defer m.storeMu.Unlock()

	return m.store.Clear(ctx)
}

// Status reports the cached authentication state without logging in.
func (m *SessionManager) Status(ctx context.Context) model.SessionStatus {
	cred, _ := m.cached(ctx)
	if cred == nil {
		return model.SessionStatus{}
	}
	return model.SessionStatus{
		Authenticated: true,
		ExpiresAt:     cred.ExpiresAt,
		ClientID:      cred.ClientID,
	}
}

// cached returns the in-memory credential if it is valid, consulting the
// store once when memory is empty. The store is read without holding mu; a
// result that raced with a login or invalidation is discarded. The second
// return value names where the credential was found.
func (m *SessionManager) cached(ctx context.Context) (*model.Credential, string) {
	m.mu.Lock()
	now := m.now()
	if m.current.Valid(now) {
		cred := m.current
		m.mu.Unlock()
		return cred, "memory"
	}
	if m.current != nil {
		m.logger.Info("cached token expired", "expired_at", m.current.ExpiresAt)
		m.current = nil
		m.gen++
	}
	if m.loaded {
		m.mu.Unlock()
		return nil, ""
	}
	gen := m.gen
	m.mu.Unlock()

	loadCtx := context.WithoutCancel(ctx)
	v, _, _ := m.flights.Do(loadFlightKey, func() (any, error) {
		cred, err := m.store.Load(loadCtx)
		if err != nil {
			// Unreadable cache is a miss; the next login rewrites it.
			m.logger.Error("failed to read token store", "error", err)
			return (*model.Credential)(nil), nil
		}
		return cred, nil
	})
	cred, _ := v.(*model.Credential)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		if m.current.Valid(now) {
			return m.current, "memory"
		}
		return nil, ""
	}
	m.loaded = true
	if !cred.Valid(now) {
		return nil, ""
	}
	m.current = cred
	m.gen++
	return cred, "store"
}

// login joins the in-flight login or starts one. The shared login runs on a
// context detached from the caller's cancellation; the Authenticator bounds
// it with its own timeout.
func (m *SessionManager) login(ctx context.Context, force bool) (*model.Credential, error) {
	flightCtx := context.WithoutCancel(ctx)

	ch := m.flights.DoChan(loginFlightKey, func() (any, error) {
		if !force {
			// A caller may miss the cache just as the previous flight
			// finishes; re-check so it does not log in a second time.
			m.mu.Lock()
			current := m.current
			m.mu.Unlock()
			if current.Valid(m.now()) {
				return current, nil
			}
		}
		return m.authenticate(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Credential), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *SessionManager) authenticate(ctx context.Context) (*model.Credential, error) {
	// Wait out any invalidation still clearing the store so the new
	// credential is not wiped after it is saved.
	m.storeMu.Lock()
	m.storeMu.Unlock() //nolint:staticcheck // barrier

	start := time.Now()
	cred, err := m.auth.Authenticate(ctx, m.creds)
	elapsed := time.Since(start)

	if err != nil {
		result := "error"
		var authErr *model.AuthenticationError
		if errors.As(err, &authErr) {
			result = string(authErr.Kind)
		}
		m.metrics.RecordLogin(result, elapsed)
		m.logger.Error("vendor login failed", "error", err, "duration", elapsed.Round(time.Millisecond))
		return nil, err
	}

	m.metrics.RecordLogin("success", elapsed)

	m.mu.Lock()
	m.current = cred
	m.loaded = true
	m.gen++
	m.mu.Unlock()

	return cred, nil
}
