package webauth

import (
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Config holds everything the auth components need. It is constructed once
// at startup and passed explicitly into each component - there is no global
// configuration state.
type Config struct {
	// Environment is "development" or "production". Cookie flags relax in
	// development (no Secure, SameSite=Lax) so local frontends can talk to
	// the module over plain http.
	Environment string

	// AccessTokenSecret and RefreshTokenSecret sign the two token classes.
	// They must differ so a refresh token can never pass as an access token.
	AccessTokenSecret  string
	RefreshTokenSecret string

	// EncryptionKey is 32 bytes, hex encoded (64 chars), used for the
	// AES-256-CBC encryption of refresh tokens at rest.
	EncryptionKey string

	// Token lifetimes. Access is minutes-scale, refresh weeks-scale.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// OneTimeStateTTL bounds OAuth states and OTP codes.
	OneTimeStateTTL time.Duration

	// ResetTokenTTL bounds password reset tokens.
	ResetTokenTTL time.Duration

	// Google OAuth settings for the web redirect and mobile flows.
	Google GoogleConfig

	// BaseURL of the deployment, used when building emailed links.
	BaseURL string

	// EmailFrom and EmailAppName appear in outbound mail.
	EmailFrom    string
	EmailAppName string
}

// GoogleConfig configures the Google OAuth flows.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Browser flows respond with redirects, not JSON. SuccessRedirectURL
	// receives authenticated users; ErrorRedirectURL receives every failure
	// with the reason in the "reason" query param.
	SuccessRedirectURL string
	ErrorRedirectURL   string

	// UserInfoURL is overridable for tests; defaults to Google's endpoint.
	UserInfoURL string

	// Endpoint overrides the OAuth2 auth and token URLs. Zero value means
	// Google's real endpoint; tests point it at an httptest server.
	Endpoint oauth2.Endpoint
}

// EnsureDefaults fills unset fields from the environment or reasonable
// fallbacks and returns the config for chaining.
func (c *Config) EnsureDefaults() *Config {
	if c.Environment == "" {
		c.Environment = strings.TrimSpace(os.Getenv("ENV"))
		if c.Environment == "" {
			c.Environment = "development"
		}
	}
	if c.AccessTokenSecret == "" {
		c.AccessTokenSecret = strings.TrimSpace(os.Getenv("ACCESS_TOKEN_SECRET"))
	}
	if c.RefreshTokenSecret == "" {
		c.RefreshTokenSecret = strings.TrimSpace(os.Getenv("REFRESH_TOKEN_SECRET"))
	}
	if c.EncryptionKey == "" {
		c.EncryptionKey = strings.TrimSpace(os.Getenv("WEBAUTH_ENCRYPTION_KEY"))
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = 15 * time.Minute
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.OneTimeStateTTL <= 0 {
		c.OneTimeStateTTL = 10 * time.Minute
	}
	if c.ResetTokenTTL <= 0 {
		c.ResetTokenTTL = time.Hour
	}
	if c.Google.ClientID == "" {
		c.Google.ClientID = os.Getenv("OAUTH2_GOOGLE_CLIENT_ID")
	}
	if c.Google.ClientSecret == "" {
		c.Google.ClientSecret = os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET")
	}
	if c.Google.RedirectURL == "" {
		c.Google.RedirectURL = os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL")
	}
	if c.Google.UserInfoURL == "" {
		c.Google.UserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"
	}
	if c.BaseURL == "" {
		c.BaseURL = os.Getenv("WEBAUTH_BASE_URL")
	}
	if c.EmailAppName == "" {
		c.EmailAppName = "WebAuth"
	}
	return c
}

// IsProduction reports whether cookie flags should be strict.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
