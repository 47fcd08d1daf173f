package vendorauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/chargegw/internal/domain/model"
)

const testRedirect = "http://localhost/oauth/callback"

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

// fakeDriver answers Login with a callback built from the authorize URL.
type fakeDriver struct {
	mu      sync.Mutex
	authURL *url.URL
	respond func(ctx context.Context, state string) (string, error)
}

func (f *fakeDriver) Login(ctx context.Context, authURL, redirectURL string, _ model.LoginCredentials) (*url.URL, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.authURL = u
	f.mu.Unlock()

	raw, err := f.respond(ctx, u.Query().Get("state"))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, errors.New("no callback")
	}
	return url.Parse(redirectURL + raw)
}

// memStore is an in-memory TokenStore.
type memStore struct {
	mu    sync.Mutex
	cred  *model.Credential
	saves int
	err   error
}

func (m *memStore) Load(_ context.Context) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, nil
}

func (m *memStore) Save(_ context.Context, cred model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.cred = &cred
	return nil
}

func (m *memStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	return nil
}

func testCreds() model.LoginCredentials {
	return model.LoginCredentials{
		Email:              "driver@example.com",
		Password:           "hunter2",
		OAuthClientID:      "oauth-client",
		VendorClientID:     "vendor-client",
		VendorClientSecret: "vendor-secret",
	}
}

func newTestAuthenticator(t *testing.T, tokenURL string, driver LoginDriver, store *memStore) *Authenticator {
	t.Helper()
	a := NewAuthenticator(Config{
		AuthorizeURL:    "https://idp.example.com/authorize",
		TokenURL:        tokenURL,
		RedirectURL:     testRedirect,
		Scopes:          []string{"charging"},
		Timeout:         2 * time.Second,
		DefaultLifetime: time.Hour,
	}, driver, store, slog.Default())
	a.now = func() time.Time { return testNow }
	return a
}

// newTokenServer serves a token endpoint that expects the vendor client
// credentials and the code "good-code".
func newTokenServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "vendor-client", r.Form.Get("client_id"))
		assert.Equal(t, "vendor-secret", r.Form.Get("client_secret"))
		assert.Equal(t, testRedirect, r.Form.Get("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAuthenticate_CodeExchange(t *testing.T) {
	server := newTokenServer(t, `{"access_token":"tok-1","token_type":"bearer","expires_in":7200}`)
	driver := &fakeDriver{respond: func(_ context.Context, state string) (string, error) {
		return "?code=good-code&state=" + state, nil
	}}
	store := &memStore{}

	a := newTestAuthenticator(t, server.URL, driver, store)
	cred, err := a.Authenticate(context.Background(), testCreds())

	require.NoError(t, err)
	assert.Equal(t, "tok-1", cred.AccessToken)
	assert.Equal(t, "bearer", cred.TokenType)
	assert.Equal(t, "oauth-client", cred.ClientID)
	assert.Equal(t, testNow, cred.IssuedAt)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), cred.ExpiresAt, time.Minute)

	require.NotNil(t, store.cred)
	assert.Equal(t, *cred, *store.cred)

	q := driver.authURL.Query()
	assert.Equal(t, "oauth-client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, testRedirect, q.Get("redirect_uri"))
	assert.Equal(t, "charging", q.Get("scope"))
	assert.NotEmpty(t, q.Get("state"))
}

func TestAuthenticate_DefaultLifetimeWhenExpiryMissing(t *testing.T) {
	server := newTokenServer(t, `{"access_token":"tok-1","token_type":"Bearer"}`)
	driver := &fakeDriver{respond: func(_ context.Context, state string) (string, error) {
		return "?code=good-code&state=" + state, nil
	}}

	a := newTestAuthenticator(t, server.URL, driver, &memStore{})
	cred, err := a.Authenticate(context.Background(), testCreds())

	require.NoError(t, err)
	assert.Equal(t, testNow.Add(time.Hour), cred.ExpiresAt)
}

func TestAuthenticate_ImplicitFragment(t *testing.T) {
	driver := &fakeDriver{respond: func(_ context.Context, state string) (string, error) {
		return "#access_token=frag-tok&token_type=Bearer&expires_in=600&state=" + state, nil
	}}
	store := &memStore{}

	a := newTestAuthenticator(t, "http://127.0.0.1:1/unused", driver, store)
	cred, err := a.Authenticate(context.Background(), testCreds())

	require.NoError(t, err)
	assert.Equal(t, "frag-tok", cred.AccessToken)
	assert.Equal(t, testNow.Add(10*time.Minute), cred.ExpiresAt)
	assert.Equal(t, 1, store.saves)
}

func TestAuthenticate_Failures(t *testing.T) {
	server := newTokenServer(t, `{"access_token":"tok-1"}`)

	tests := []struct {
		name     string
		respond  func(ctx context.Context, state string) (string, error)
		wantKind model.AuthFailureKind
	}{
		{
			name: "provider denies access",
			respond: func(_ context.Context, state string) (string, error) {
				return "?error=access_denied&state=" + state, nil
			},
			wantKind: model.AuthInvalidCredentials,
		},
		{
			name: "provider server error",
			respond: func(_ context.Context, state string) (string, error) {
				return "?error=server_error&state=" + state, nil
			},
			wantKind: model.AuthUnexpectedResponse,
		},
		{
			name: "state mismatch",
			respond: func(_ context.Context, _ string) (string, error) {
				return "?code=good-code&state=forged", nil
			},
			wantKind: model.AuthUnexpectedResponse,
		},
		{
			name: "no code or token",
			respond: func(_ context.Context, state string) (string, error) {
				return "?state=" + state, nil
			},
			wantKind: model.AuthUnexpectedResponse,
		},
		{
			name: "code rejected at token endpoint",
			respond: func(_ context.Context, state string) (string, error) {
				return "?code=bad-code&state=" + state, nil
			},
			wantKind: model.AuthInvalidCredentials,
		},
		{
			name: "driver reports bad credentials",
			respond: func(_ context.Context, _ string) (string, error) {
				return "", model.NewAuthError(model.AuthInvalidCredentials, errors.New("alert shown"))
			},
			wantKind: model.AuthInvalidCredentials,
		},
		{
			name: "browser failure",
			respond: func(_ context.Context, _ string) (string, error) {
				return "", errors.New("chrome exited")
			},
			wantKind: model.AuthNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			a := newTestAuthenticator(t, server.URL, &fakeDriver{respond: tt.respond}, store)

			cred, err := a.Authenticate(context.Background(), testCreds())

			assert.Nil(t, cred)
			var authErr *model.AuthenticationError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.wantKind, authErr.Kind)
			assert.Zero(t, store.saves, "store must be untouched on failure")
		})
	}
}

func TestAuthenticate_FormNeverAppearsTimesOut(t *testing.T) {
	driver := &fakeDriver{respond: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	store := &memStore{}

	a := newTestAuthenticator(t, "http://127.0.0.1:1/unused", driver, store)
	a.cfg.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := a.Authenticate(context.Background(), testCreds())

	var authErr *model.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, model.AuthTimeout, authErr.Kind)
	assert.Less(t, time.Since(start), time.Second)
	assert.Nil(t, store.cred)
}

func TestAuthenticate_SaveFailure(t *testing.T) {
	driver := &fakeDriver{respond: func(_ context.Context, state string) (string, error) {
		return "#access_token=frag-tok&state=" + state, nil
	}}
	store := &memStore{err: &model.StorageError{Op: "save", Err: errors.New("read-only file system")}}

	a := newTestAuthenticator(t, "http://127.0.0.1:1/unused", driver, store)
	_, err := a.Authenticate(context.Background(), testCreds())

	var storageErr *model.StorageError
	assert.ErrorAs(t, err, &storageErr)
}

func TestRedact(t *testing.T) {
	u, err := url.Parse("http://localhost/cb?code=secret#access_token=secret")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/cb", redact(u))
}
