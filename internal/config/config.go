// Package config loads application configuration from environment variables,
// optionally layered over a YAML file.
package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every key when reading the environment.
const envPrefix = "CHARGEGW_"

// Token store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

const (
	minLoginTimeout = 5 * time.Second
	maxLoginTimeout = 5 * time.Minute
)

// Config holds the gateway configuration.
type Config struct {
	AccountEmail       string
	AccountPassword    string
	OAuthClientID      string
	VendorClientID     string
	VendorClientSecret string
	VendorBaseURL      string
	ChargerID          string
	EVSEID             string

	AuthorizeURL  string
	TokenURL      string
	RedirectURL   string
	OAuthScopes   []string
	LoginTimeout  time.Duration
	TokenLifetime time.Duration

	TokenStore    string
	TokenPath     string
	RedisAddr     string
	RedisPassword string
	SecretKey     string

	ListenAddr      string
	BrowserPath     string
	BrowserHeadless bool

	LogLevel  string
	LogFormat string
}

// ConfigError lists every missing or invalid setting found by Load.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, "; "))
	}
	return "config: " + strings.Join(parts, "; ")
}

// HasSecretKey reports whether persisted tokens should be encrypted.
func (c *Config) HasSecretKey() bool {
	return c.SecretKey != ""
}

// Load reads configuration and returns a validated Config. Values come from
// CHARGEGW_* environment variables; when CHARGEGW_CONFIG_FILE names a YAML
// file its keys (lower-case, without the prefix) fill in anything the
// environment leaves unset. All problems are reported together as a
// *ConfigError.
func Load() (*Config, error) {
	src, err := newSource(os.Getenv(envPrefix + "CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AccountEmail:       src.required("ACCOUNT_EMAIL"),
		AccountPassword:    src.required("ACCOUNT_PASSWORD"),
		OAuthClientID:      src.required("OAUTH_CLIENT_ID"),
		VendorClientID:     src.required("VENDOR_CLIENT_ID"),
		VendorClientSecret: src.required("VENDOR_CLIENT_SECRET"),
		VendorBaseURL:      strings.TrimRight(src.required("VENDOR_BASE_URL"), "/"),
		ChargerID:          src.required("CHARGER_ID"),

		RedirectURL:   src.str("REDIRECT_URL", "http://localhost/oauth/callback"),
		OAuthScopes:   splitList(src.str("OAUTH_SCOPES", "")),
		LoginTimeout:  src.duration("LOGIN_TIMEOUT", 45*time.Second),
		TokenLifetime: src.duration("TOKEN_LIFETIME", time.Hour),

		TokenStore:    strings.ToLower(src.str("TOKEN_STORE", StoreFile)),
		RedisAddr:     src.str("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: src.str("REDIS_PASSWORD", ""),
		SecretKey:     src.str("SECRET_KEY", ""),

		ListenAddr:      src.str("LISTEN_ADDR", "127.0.0.1:8080"),
		BrowserPath:     src.str("BROWSER_PATH", ""),
		BrowserHeadless: src.boolean("BROWSER_HEADLESS", true),

		LogLevel:  strings.ToLower(src.str("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(src.str("LOG_FORMAT", "json")),
	}

	cfg.EVSEID = src.str("EVSE_ID", cfg.ChargerID)
	cfg.AuthorizeURL = src.str("AUTHORIZE_URL", cfg.VendorBaseURL+"/oauth/authorize")
	cfg.TokenURL = src.str("TOKEN_URL", cfg.VendorBaseURL+"/oauth/token")

	switch cfg.TokenStore {
	case StoreSQLite:
		cfg.TokenPath = src.str("TOKEN_PATH", "chargegw.db")
	default:
		cfg.TokenPath = src.str("TOKEN_PATH", "chargegw-token.json")
	}

	cfg.validate(src)

	if len(src.missing) > 0 || len(src.invalid) > 0 {
		return nil, &ConfigError{Missing: src.missing, Invalid: src.invalid}
	}
	return cfg, nil
}

func (c *Config) validate(src *source) {
	if c.VendorBaseURL != "" {
		src.checkURL("VENDOR_BASE_URL", c.VendorBaseURL)
		src.checkURL("AUTHORIZE_URL", c.AuthorizeURL)
		src.checkURL("TOKEN_URL", c.TokenURL)
	}
	src.checkURL("REDIRECT_URL", c.RedirectURL)

	if c.LoginTimeout < minLoginTimeout || c.LoginTimeout > maxLoginTimeout {
		src.invalidf("LOGIN_TIMEOUT must be between %s and %s, got %s", minLoginTimeout, maxLoginTimeout, c.LoginTimeout)
	}
	if c.TokenLifetime <= 0 {
		src.invalidf("TOKEN_LIFETIME must be positive, got %s", c.TokenLifetime)
	}

	switch c.TokenStore {
	case StoreFile, StoreSQLite, StoreRedis:
	default:
		src.invalidf("TOKEN_STORE must be one of file, sqlite, redis, got %q", c.TokenStore)
	}

	if c.SecretKey != "" {
		if key, err := hex.DecodeString(c.SecretKey); err != nil || len(key) != 32 {
			src.invalidf("SECRET_KEY must be 64 hex characters")
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		src.invalidf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		src.invalidf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
}

// source resolves keys from the environment first, then the config file.
type source struct {
	file    map[string]string
	missing []string
	invalid []string
}

func newSource(path string) (*source, error) {
	s := &source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	for k, v := range raw {
		s.file[strings.ToLower(k)] = scalar(v)
	}
	return s, nil
}

func (s *source) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v, true
	}
	v, ok := s.file[strings.ToLower(key)]
	return v, ok
}

func (s *source) str(key, def string) string {
	if v, ok := s.lookup(key); ok && v != "" {
		return v
	}
	return def
}

func (s *source) required(key string) string {
	v, ok := s.lookup(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		s.missing = append(s.missing, envPrefix+key)
		return ""
	}
	return v
}

func (s *source) duration(key string, def time.Duration) time.Duration {
	v, ok := s.lookup(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		s.invalidf("%s has invalid duration %q", key, v)
		return def
	}
	return d
}

func (s *source) boolean(key string, def bool) bool {
	v, ok := s.lookup(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		s.invalidf("%s has invalid boolean %q", key, v)
		return def
	}
	return b
}

func (s *source) checkURL(key, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		s.invalidf("%s must be an absolute URL, got %q", key, raw)
	}
}

func (s *source) invalidf(format string, args ...any) {
	s.invalid = append(s.invalid, envPrefix+fmt.Sprintf(format, args...))
}

// scalar flattens a YAML value to its string form; lists become
// comma-separated.
func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, scalar(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

func splitList(v string) []string {
	out := []string{}
	for _, item := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
