package firebase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	gateway "github.com/goliatone/go-auth-gateway"
	goerrors "github.com/goliatone/go-errors"
)

// accessTokenClaims are the claims Firebase puts in ID tokens.
type accessTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	UserID        string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenValidator verifies Firebase ID tokens against the published JWKS.
type TokenValidator struct {
	keyFunc  jwt.Keyfunc
	issuer   string
	audience string
	now      func() time.Time
	jwks     *keyfunc.JWKS
}

// NewTokenValidator fetches the JWKS for cfg and keeps it refreshed in the
// background until Close is called.
func NewTokenValidator(ctx context.Context, cfg Config, logger gateway.Logger) (*TokenValidator, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firebase: project id is required")
	}
	cfg = cfg.withDefaults()

	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		Ctx:    ctx,
		Client: cfg.HTTPClient,
		RefreshErrorHandler: func(err error) {
			if logger != nil {
				logger.Error("failed to refresh firebase JWKS: %v", err)
			}
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    cfg.Timeout,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("firebase: failed to get JWKS: %w", err)
	}

	v := NewTokenValidatorWithKeyfunc(cfg, jwks.Keyfunc)
	v.jwks = jwks
	return v, nil
}

// NewTokenValidatorWithKeyfunc builds a validator around a caller supplied
// key lookup.
func NewTokenValidatorWithKeyfunc(cfg Config, keyFunc jwt.Keyfunc) *TokenValidator {
	cfg = cfg.withDefaults()
	return &TokenValidator{
		keyFunc:  keyFunc,
		issuer:   cfg.Issuer,
		audience: cfg.ProjectID,
		now:      time.Now,
	}
}

func (v *TokenValidator) WithClock(now func() time.Time) *TokenValidator {
	if now != nil {
		v.now = now
	}
	return v
}

// Verify checks signature, issuer, audience and expiry, and returns the
// account claims.
func (v *TokenValidator) Verify(_ context.Context, tokenString string) (*gateway.AccessClaims, error) {
	claims := &accessTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, gateway.WithCause(gateway.ErrTokenExpired, err)
		}
		return nil, gateway.WithCause(gateway.ErrAccessTokenInvalid, err)
	}

	uid := claims.Subject
	if uid == "" || len(uid) > 128 {
		return nil, gateway.WithCause(gateway.ErrAccessTokenInvalid,
			goerrors.New("token subject is empty or too long", goerrors.CategoryAuth))
	}

	out := &gateway.AccessClaims{
		UID:           uid,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Close stops the background JWKS refresh.
func (v *TokenValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}
