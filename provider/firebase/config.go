package firebase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	firebasesdk "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

const (
	defaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	defaultSecureTokenURL     = "https://securetoken.googleapis.com/v1"
	defaultJWKSURL            = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	defaultIssuerPrefix       = "https://securetoken.google.com/"
	defaultTimeout            = 10 * time.Second
)

// Config holds the Firebase project settings.
type Config struct {
	ProjectID string
	// WebAPIKey authorizes calls to the public REST endpoints.
	WebAPIKey string
	// CredentialsFile is a service account JSON file. When empty the
	// application default credentials are used.
	CredentialsFile string

	IdentityToolkitURL string
	SecureTokenURL     string
	JWKSURL            string
	Issuer             string

	HTTPClient *http.Client
	Timeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdentityToolkitURL == "" {
		c.IdentityToolkitURL = defaultIdentityToolkitURL
	}
	if c.SecureTokenURL == "" {
		c.SecureTokenURL = defaultSecureTokenURL
	}
	if c.JWKSURL == "" {
		c.JWKSURL = defaultJWKSURL
	}
	if c.Issuer == "" && c.ProjectID != "" {
		c.Issuer = defaultIssuerPrefix + c.ProjectID
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	c.IdentityToolkitURL = strings.TrimSuffix(c.IdentityToolkitURL, "/")
	c.SecureTokenURL = strings.TrimSuffix(c.SecureTokenURL, "/")
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return fmt.Errorf("firebase: project id is required")
	}
	if strings.TrimSpace(c.WebAPIKey) == "" {
		return fmt.Errorf("firebase: web api key is required")
	}
	return nil
}

// NewApp initializes the Admin SDK app for cfg.
func NewApp(ctx context.Context, cfg Config) (*firebasesdk.App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebasesdk.NewApp(ctx, &firebasesdk.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: failed to initialize app: %w", err)
	}
	return app, nil
}
