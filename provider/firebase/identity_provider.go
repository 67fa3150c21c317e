package firebase

import (
	"context"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	gateway "github.com/goliatone/go-auth-gateway"
	goerrors "github.com/goliatone/go-errors"
)

// AdminClient is the part of *auth.Client the provider uses.
type AdminClient interface {
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
	CustomToken(ctx context.Context, uid string) (string, error)
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// AccessTokenVerifier turns an ID token into verified claims.
type AccessTokenVerifier interface {
	Verify(ctx context.Context, token string) (*gateway.AccessClaims, error)
}

// SessionGrants are the REST grants that mint session tokens.
type SessionGrants interface {
	SignInWithPassword(ctx context.Context, email, password string) (*gateway.SessionTokenPair, string, error)
	SignInWithCustomToken(ctx context.Context, customToken string) (*gateway.SessionTokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*gateway.SessionTokenPair, error)
}

// IdentityProvider implements gateway.IdentityProvider backed by Firebase.
type IdentityProvider struct {
	admin    AdminClient
	grants   SessionGrants
	verifier AccessTokenVerifier
}

// NewIdentityProvider wires the provider. When verifier is nil, tokens are
// verified through the Admin SDK.
func NewIdentityProvider(admin AdminClient, grants SessionGrants, verifier AccessTokenVerifier) *IdentityProvider {
	if verifier == nil {
		verifier = AdminVerifier{Admin: admin}
	}
	return &IdentityProvider{
		admin:    admin,
		grants:   grants,
		verifier: verifier,
	}
}

func (p *IdentityProvider) CreateUser(ctx context.Context, email, password string) (*gateway.UserAccount, error) {
	params := (&auth.UserToCreate{}).
		Email(email).
		Password(password).
		EmailVerified(false)

	record, err := p.admin.CreateUser(ctx, params)
	if err != nil {
		return nil, mapCreateUserError(err)
	}
	return toUserAccount(record), nil
}

func (p *IdentityProvider) GetUserByEmail(ctx context.Context, email string) (*gateway.UserAccount, error) {
	record, err := p.admin.GetUserByEmail(ctx, email)
	if err != nil {
		if isUserNotFound(err) {
			return nil, gateway.WithCause(gateway.ErrUserNotFound, err)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to look up user")
	}
	return toUserAccount(record), nil
}

func (p *IdentityProvider) MarkEmailVerified(ctx context.Context, uid string) error {
	_, err := p.admin.UpdateUser(ctx, uid, (&auth.UserToUpdate{}).EmailVerified(true))
	if err != nil {
		return mapUpdateUserError(err, "failed to mark email verified")
	}
	return nil
}

func (p *IdentityProvider) UpdatePassword(ctx context.Context, uid, password string) error {
	_, err := p.admin.UpdateUser(ctx, uid, (&auth.UserToUpdate{}).Password(password))
	if err != nil {
		if isWeakPassword(err) {
			return gateway.WithCause(gateway.ErrWeakPassword, err)
		}
		return mapUpdateUserError(err, "failed to update password")
	}
	return nil
}

func (p *IdentityProvider) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if err := p.admin.RevokeRefreshTokens(ctx, uid); err != nil {
		return mapUpdateUserError(err, "failed to revoke refresh tokens")
	}
	return nil
}

func (p *IdentityProvider) VerifyAccessToken(ctx context.Context, accessToken string) (*gateway.AccessClaims, error) {
	return p.verifier.Verify(ctx, accessToken)
}

func (p *IdentityProvider) ExchangeCustomToken(ctx context.Context, uid string) (*gateway.SessionTokenPair, error) {
	customToken, err := p.admin.CustomToken(ctx, uid)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to mint custom token")
	}
	return p.grants.SignInWithCustomToken(ctx, customToken)
}

func (p *IdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (*gateway.SessionTokenPair, string, error) {
	return p.grants.SignInWithPassword(ctx, email, password)
}

func (p *IdentityProvider) RefreshSession(ctx context.Context, refreshToken string) (*gateway.SessionTokenPair, error) {
	return p.grants.Refresh(ctx, refreshToken)
}

// AdminVerifier verifies ID tokens with the Admin SDK.
type AdminVerifier struct {
	Admin AdminClient
}

func (v AdminVerifier) Verify(ctx context.Context, token string) (*gateway.AccessClaims, error) {
	decoded, err := v.Admin.VerifyIDToken(ctx, token)
	if err != nil {
		switch {
		case auth.IsIDTokenExpired(err):
			return nil, gateway.WithCause(gateway.ErrTokenExpired, err)
		case auth.IsUserDisabled(err):
			return nil, gateway.WithCause(gateway.ErrAccountDisabled, err)
		case auth.IsIDTokenInvalid(err):
			return nil, gateway.WithCause(gateway.ErrAccessTokenInvalid, err)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to verify access token")
	}

	claims := &gateway.AccessClaims{UID: decoded.UID}
	if decoded.Expires > 0 {
		claims.ExpiresAt = time.Unix(decoded.Expires, 0)
	}
	if email, ok := decoded.Claims["email"].(string); ok {
		claims.Email = email
	}
	if verified, ok := decoded.Claims["email_verified"].(bool); ok {
		claims.EmailVerified = verified
	}
	return claims, nil
}

func toUserAccount(record *auth.UserRecord) *gateway.UserAccount {
	account := &gateway.UserAccount{
		EmailVerified: record.EmailVerified,
		Disabled:      record.Disabled,
	}
	if record.UserInfo != nil {
		account.UID = record.UID
		account.Email = record.Email
	}
	return account
}

func mapCreateUserError(err error) error {
	switch {
	case auth.IsEmailAlreadyExists(err) || messageHas(err, "EMAIL_EXISTS", "email already exists"):
		return gateway.WithCause(gateway.ErrEmailAlreadyExists, err)
	case messageHas(err, "INVALID_EMAIL", "malformed email"):
		return gateway.WithCause(gateway.ErrInvalidEmail, err)
	case isWeakPassword(err):
		return gateway.WithCause(gateway.ErrWeakPassword, err)
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to create user")
}

func mapUpdateUserError(err error, msg string) error {
	if isUserNotFound(err) {
		return gateway.WithCause(gateway.ErrUserNotFound, err)
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, msg)
}

func isUserNotFound(err error) bool {
	return auth.IsUserNotFound(err) || auth.IsEmailNotFound(err) ||
		messageHas(err, "USER_NOT_FOUND", "no user exists")
}

func isWeakPassword(err error) bool {
	return messageHas(err, "WEAK_PASSWORD", "password must be")
}

// messageHas matches the Admin SDK's local validation errors, which carry
// no error code.
func messageHas(err error, needles ...string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, n := range needles {
		if strings.Contains(msg, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

var _ gateway.IdentityProvider = (*IdentityProvider)(nil)
