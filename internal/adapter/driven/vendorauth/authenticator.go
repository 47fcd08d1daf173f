// Package vendorauth implements the Authenticator port: an OAuth2
// authorization-code login against the vendor's hosted identity provider,
// with the login form filled in by a scripted browser.
package vendorauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/ericfisherdev/chargegw/internal/domain/model"
	"github.com/ericfisherdev/chargegw/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Authenticator = (*Authenticator)(nil)

// LoginDriver fills in the identity provider's login form and reports the
// URL the provider finally redirects to. Implementations must release every
// resource they acquire before returning and must return promptly once ctx
// is done.
type LoginDriver interface {
	Login(ctx context.Context, authURL, redirectURL string, creds model.LoginCredentials) (*url.URL, error)
}

// Config holds the identity provider endpoints and login limits.
type Config struct {
	AuthorizeURL string
	TokenURL     string
	RedirectURL  string
	Scopes       []string

	// Timeout bounds a whole login attempt, browser and token exchange included.
	Timeout time.Duration

	// DefaultLifetime is used when the provider does not declare an expiry.
	DefaultLifetime time.Duration

	// HTTPClient is used for the token exchange. nil means a client with a
	// 30 second timeout.
	HTTPClient *http.Client
}

// Authenticator implements driven.Authenticator.
type Authenticator struct {
	cfg    Config
	driver LoginDriver
	store  driven.TokenStore
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator that persists successful logins to store.
func NewAuthenticator(cfg Config, driver LoginDriver, store driven.TokenStore, logger *slog.Logger) *Authenticator {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Authenticator{
		cfg:    cfg,
		driver: driver,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Authenticate performs the full browser login and token exchange, then
// saves the resulting credential. The token store is written only on success.
func (a *Authenticator) Authenticate(ctx context.Context, creds model.LoginCredentials) (*model.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	state := uuid.NewString()
	authURL := a.oauthConfig(creds.OAuthClientID, "").AuthCodeURL(state)

	a.logger.Info("starting vendor login", "client_id", creds.OAuthClientID, "timeout", a.cfg.Timeout)

	callback, err := a.driver.Login(ctx, authURL, a.cfg.RedirectURL, creds)
	if err != nil {
		return nil, classify(ctx, err)
	}

	cred, err := a.credentialFromCallback(ctx, callback, state, creds)
	if err != nil {
		return nil, classify(ctx, err)
	}

	if err := a.store.Save(ctx, *cred); err != nil {
		return nil, fmt.Errorf("saving credential: %w", err)
	}

	a.logger.Info("vendor login succeeded", "client_id", cred.ClientID, "expires_at", cred.ExpiresAt)
	return cred, nil
}

// credentialFromCallback extracts a token from the redirect: either an
// authorization code to exchange, or an implicit-grant token in the fragment.
func (a *Authenticator) credentialFromCallback(ctx context.Context, callback *url.URL, state string, creds model.LoginCredentials) (*model.Credential, error) {
	params := callback.Query()
	if fragment, err := url.ParseQuery(callback.Fragment); err == nil && fragment.Get("access_token") != "" {
		params = fragment
	}

	if code := params.Get("error"); code != "" {
		kind := model.AuthUnexpectedResponse
		switch code {
		case "access_denied", "invalid_grant", "unauthorized", "unauthorized_client", "login_required":
			kind = model.AuthInvalidCredentials
		}
		return nil, model.NewAuthError(kind, fmt.Errorf("identity provider returned %s: %s", code, params.Get("error_description")))
	}

	if got := params.Get("state"); got != state {
		return nil, model.NewAuthError(model.AuthUnexpectedResponse, fmt.Errorf("callback state mismatch (got %q)", got))
	}

	now := a.now().UTC()

	if token := params.Get("access_token"); token != "" {
		lifetime := a.cfg.DefaultLifetime
		if secs, err := strconv.Atoi(params.Get("expires_in")); err == nil && secs > 0 {
			lifetime = time.Duration(secs) * time.Second
		}
		return &model.Credential{
			AccessToken: token,
			TokenType:   tokenType(params.Get("token_type")),
			ExpiresAt:   now.Add(lifetime),
			ClientID:    creds.OAuthClientID,
			IssuedAt:    now,
		}, nil
	}

	code := params.Get("code")
	if code == "" {
		return nil, model.NewAuthError(model.AuthUnexpectedResponse, fmt.Errorf("callback %s carries neither code nor token", redact(callback)))
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, a.cfg.HTTPClient)
	tok, err := a.oauthConfig(creds.VendorClientID, creds.VendorClientSecret).Exchange(exchangeCtx, code)
	if err != nil {
		return nil, exchangeError(err)
	}

	expiresAt := tok.Expiry.UTC()
	if tok.Expiry.IsZero() {
		expiresAt = now.Add(a.cfg.DefaultLifetime)
	}

	return &model.Credential{
		AccessToken: tok.AccessToken,
		TokenType:   tokenType(tok.TokenType),
		ExpiresAt:   expiresAt,
		ClientID:    creds.OAuthClientID,
		IssuedAt:    now,
	}, nil
}

func (a *Authenticator) oauthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  a.cfg.RedirectURL,
		Scopes:       a.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.cfg.AuthorizeURL,
			TokenURL:  a.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// exchangeError maps a token endpoint failure onto an AuthenticationError.
func exchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch {
		case retrieveErr.ErrorCode == "invalid_grant",
			retrieveErr.ErrorCode == "invalid_client",
			retrieveErr.ErrorCode == "unauthorized_client",
			retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusUnauthorized:
			return model.NewAuthError(model.AuthInvalidCredentials, err)
		}
		return model.NewAuthError(model.AuthUnexpectedResponse, err)
	}
	return err
}

// classify turns driver and exchange failures into AuthenticationErrors.
// A passed deadline always wins so callers can tell a hung login apart.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return model.NewAuthError(model.AuthTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var authErr *model.AuthenticationError
	if errors.As(err, &authErr) {
		return err
	}
	return model.NewAuthError(model.AuthNetwork, err)
}

func tokenType(t string) string {
	if t == "" {
		return "Bearer"
	}
	return t
}

// redact strips query and fragment so codes and tokens stay out of errors.
func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.Fragment = ""
	return strings.TrimSuffix(c.String(), "?")
}
