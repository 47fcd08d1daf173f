package vendorauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ericfisherdev/chargegw/internal/domain/model"
)

// Selectors are CSS selector lists locating the identity provider's login
// form. Each may list alternatives separated by commas.
type Selectors struct {
	Username string
	Password string
	Submit   string
	Error    string
}

// DefaultSelectors match the common hosted login page layouts.
var DefaultSelectors = Selectors{
	Username: `input[name="username"], input[name="email"], input[type="email"]`,
	Password: `input[type="password"]`,
	Submit:   `button[type="submit"], input[type="submit"]`,
	Error:    `[role="alert"], .alert-error, .error-message`,
}

// errorPollInterval is how often the page is checked for a login error
// while waiting for the redirect.
const errorPollInterval = 250 * time.Millisecond

// ChromeDriver is a LoginDriver backed by a headless Chrome instance
// controlled over the DevTools protocol.
type ChromeDriver struct {
	execPath  string
	headless  bool
	selectors Selectors
	logger    *slog.Logger
}

// NewChromeDriver creates a ChromeDriver. execPath may be empty to let
// chromedp locate a browser.
func NewChromeDriver(execPath string, headless bool, selectors Selectors, logger *slog.Logger) *ChromeDriver {
	return &ChromeDriver{
		execPath:  execPath,
		headless:  headless,
		selectors: selectors,
		logger:    logger,
	}
}

// Login starts a fresh browser, submits creds into the login form at
// authURL and waits until the browser requests a URL under redirectURL.
// The browser process is torn down on every return path.
func (d *ChromeDriver) Login(ctx context.Context, authURL, redirectURL string, creds model.LoginCredentials) (*url.URL, error) {
	redirect, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URL: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.headless),
		chromedp.Flag("incognito", true),
	)
	if d.execPath != "" {
		opts = append(opts, chromedp.ExecPath(d.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			d.logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
	)
	defer cancelBrowser()

	callbacks := make(chan string, 1)
	chromedp.ListenTarget(browserCtx, func(ev any) {
		e, ok := ev.(*network.EventRequestWillBeSent)
		if !ok || !isRedirect(e.Request.URL, redirect) {
			return
		}
		select {
		case callbacks <- e.Request.URL + e.Request.URLFragment:
		default:
		}
	})

	err = chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(authURL),
		chromedp.WaitVisible(d.selectors.Username, chromedp.ByQuery),
		chromedp.SendKeys(d.selectors.Username, creds.Email, chromedp.ByQuery),
		chromedp.WaitVisible(d.selectors.Password, chromedp.ByQuery),
		chromedp.SendKeys(d.selectors.Password, creds.Password, chromedp.ByQuery),
		chromedp.Click(d.selectors.Submit, chromedp.ByQuery),
	)
	if err != nil {
		// The provider may redirect before the form steps finish.
		select {
		case cb := <-callbacks:
			return parseCallback(cb)
		default:
		}
		return nil, fmt.Errorf("filling login form: %w", err)
	}

	d.logger.Debug("login form submitted, waiting for redirect")

	errorCheck := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return !!el && el.offsetParent !== null && el.textContent.trim() !== "";
	})()`, jsString(d.selectors.Error))

	ticker := time.NewTicker(errorPollInterval)
	defer ticker.Stop()

	for {
		select {
		case cb := <-callbacks:
			return parseCallback(cb)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var rejected bool
			if err := chromedp.Run(browserCtx, chromedp.Evaluate(errorCheck, &rejected)); err != nil {
				// Evaluation fails while the page is navigating; try again next tick.
				continue
			}
			if rejected {
				return nil, model.NewAuthError(model.AuthInvalidCredentials, errors.New("identity provider rejected the login form"))
			}
		}
	}
}

// isRedirect reports whether raw targets redirect: same scheme and host and
// the same path, ignoring a trailing slash. Query and fragment may differ.
func isRedirect(raw string, redirect *url.URL) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, redirect.Scheme) &&
		strings.EqualFold(u.Host, redirect.Host) &&
		strings.TrimSuffix(u.EscapedPath(), "/") == strings.TrimSuffix(redirect.EscapedPath(), "/")
}

func parseCallback(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, model.NewAuthError(model.AuthUnexpectedResponse, fmt.Errorf("parsing callback URL: %w", err))
	}
	return u, nil
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
