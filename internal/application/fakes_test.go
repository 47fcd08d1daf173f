package application_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/chargegw/internal/domain/model"
)

// memTokenStore is an in-memory driven.TokenStore. Setting loadGate or
// clearGate parks Load or Clear until the channel is closed; the matching
// started channel is signalled first.
type memTokenStore struct {
	mu      sync.Mutex
	cred    *model.Credential
	loadErr error
	loads   int
	clears  int

	loadGate     chan struct{}
	loadStarted  chan struct{}
	clearGate    chan struct{}
	clearStarted chan struct{}
}

func park(started, gate chan struct{}) {
	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
}

func (s *memTokenStore) Load(_ context.Context) (*model.Credential, error) {
	s.mu.Lock()
	s.loads++
	loadErr := s.loadErr
	var snapshot *model.Credential
	if s.cred != nil {
		c := *s.cred
		snapshot = &c
	}
	s.mu.Unlock()

	// Parking after the read returns what the store held when Load began.
	park(s.loadStarted, s.loadGate)
	if loadErr != nil {
		return nil, loadErr
	}
	return snapshot, nil
}

func (s *memTokenStore) Save(_ context.Context, cred model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &cred
	return nil
}

func (s *memTokenStore) Clear(_ context.Context) error {
	park(s.clearStarted, s.clearGate)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	s.cred = nil
	return nil
}

func (s *memTokenStore) get() *model.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred
}

// fakeAuthenticator issues numbered tokens and saves them to store, like the
// real Authenticator. When gate is non-nil each login blocks until it is closed.
type fakeAuthenticator struct {
	store    *memTokenStore
	clock    *fakeClock
	lifetime time.Duration
	gate     chan struct{}
	started  chan struct{}
	err      error

	calls atomic.Int32
}

func (a *fakeAuthenticator) Authenticate(ctx context.Context, creds model.LoginCredentials) (*model.Credential, error) {
	n := a.calls.Add(1)
	if a.started != nil {
		select {
		case a.started <- struct{}{}:
		default:
		}
	}
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return nil, model.NewAuthError(model.AuthTimeout, ctx.Err())
		}
	}
	if a.err != nil {
		return nil, a.err
	}

	now := a.clock.Now()
	cred := model.Credential{
		AccessToken: fmt.Sprintf("tok-%d", n),
		TokenType:   "Bearer",
		ExpiresAt:   now.Add(a.lifetime),
		ClientID:    creds.OAuthClientID,
		IssuedAt:    now,
	}
	if err := a.store.Save(ctx, cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeVendor is a driven.VendorClient with scripted responses.
type fakeVendor struct {
	mu         sync.Mutex
	tokens     []string
	statusErr  error
	active     *model.ChargingSession
	activeErr  error
	stoppedIDs []string
	startedOn  []string
}

func (v *fakeVendor) record(token string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens = append(v.tokens, token)
}

func (v *fakeVendor) ChargerStatus(_ context.Context, token, chargerID string) (json.RawMessage, error) {
	v.record(token)
	if v.statusErr != nil {
		return nil, v.statusErr
	}
	return json.RawMessage(fmt.Sprintf(`{"id":%q,"status":"AVAILABLE"}`, chargerID)), nil
}

func (v *fakeVendor) StartSession(_ context.Context, token, evseID string) (json.RawMessage, error) {
	v.record(token)
	v.mu.Lock()
	v.startedOn = append(v.startedOn, evseID)
	v.mu.Unlock()
	return json.RawMessage(`{"status":"STARTING"}`), nil
}

func (v *fakeVendor) ActiveSession(_ context.Context, token, _ string) (*model.ChargingSession, error) {
	v.record(token)
	if v.activeErr != nil {
		return nil, v.activeErr
	}
	return v.active, nil
}

func (v *fakeVendor) StopSession(_ context.Context, token, sessionID string) (json.RawMessage, error) {
	v.record(token)
	v.mu.Lock()
	v.stoppedIDs = append(v.stoppedIDs, sessionID)
	v.mu.Unlock()
	return json.RawMessage(`{"status":"STOPPING"}`), nil
}
