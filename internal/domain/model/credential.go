package model

import "time"

// Credential is the single cached vendor login. A new successful login
// replaces it whole; it is never updated field by field.
type Credential struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ClientID    string    `json:"client_id"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Valid reports whether the credential can still be presented at now.
// A credential whose expiry equals now is already expired.
func (c *Credential) Valid(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return now.Before(c.ExpiresAt)
}

// LoginCredentials are the configured account and client secrets used to
// drive the vendor's hosted OAuth2 login.
type LoginCredentials struct {
	Email              string
	Password           string
	OAuthClientID      string
	VendorClientID     string
	VendorClientSecret string
}
