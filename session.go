package gateway

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// ActionTokenIssuer issues action tokens and mails their links.
type ActionTokenIssuer interface {
	Issue(ctx context.Context, actionType ActionType, email, ownerID string) (*IssuedActionToken, error)
}

// ActionTokenVerifier verifies and consumes action tokens.
type ActionTokenVerifier interface {
	Verify(ctx context.Context, actionType ActionType, token string) (*VerifiedAction, error)
}

// Session is the outcome of a password sign in. Tokens is the client
// facing view: its RefreshToken is only set when it was requested.
// RefreshToken always holds the provider refresh token for cookie delivery.
type Session struct {
	UID          string
	Tokens       *SessionTokenPair
	RefreshToken string
}

// SessionManager orchestrates session flows against the identity provider.
// It never maps provider errors to client facing errors.
type SessionManager struct {
	provider IdentityProvider
	issuer   ActionTokenIssuer
	logger   Logger
}

func NewSessionManager(provider IdentityProvider, issuer ActionTokenIssuer) *SessionManager {
	return &SessionManager{
		provider: provider,
		issuer:   issuer,
		logger:   defLogger{},
	}
}

func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	m.logger = normalizeLogger(logger)
	return m
}

// Register creates an unverified account, signs it in through a custom
// token exchange and issues the email verification token. A failed
// verification email does not fail the registration, the user can ask for
// a new link.
func (m *SessionManager) Register(ctx context.Context, email, password string) (*SessionTokenPair, string, error) {
	account, err := m.provider.CreateUser(ctx, email, password)
	if err != nil {
		if IsEmailAlreadyExists(err) || IsInvalidEmail(err) || IsWeakPassword(err) {
			return nil, "", err
		}
		return nil, "", WithCause(ErrRegistrationFailed, err)
	}

	pair, err := m.provider.ExchangeCustomToken(ctx, account.UID)
	if err != nil {
		return nil, account.UID, WithCause(ErrRegistrationFailed, err).
			WithMetadata(map[string]any{"uid": account.UID, "stage": "custom_token_exchange"})
	}

	if m.issuer != nil {
		if _, err := m.issuer.Issue(ctx, ActionVerifyEmail, email, account.UID); err != nil {
			m.logger.Error("failed to issue verification token for %s: %v", email, err)
		}
	}

	return pair, account.UID, nil
}

// Authenticate signs in with a password. Wrong credentials yield a nil
// session and a nil error. Disabled accounts and transport failures are
// returned as errors.
func (m *SessionManager) Authenticate(ctx context.Context, email, password string, wantRefreshToken bool) (*Session, error) {
	pair, uid, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		if IsInvalidCredentials(err) || IsUserNotFound(err) {
			m.logger.Debug("sign in rejected for %s: %v", email, err)
			return nil, nil
		}
		return nil, err
	}

	if pair == nil {
		return nil, goerrors.New("identity provider returned no session", goerrors.CategoryExternal)
	}

	session := &Session{
		UID:          uid,
		Tokens:       pair.WithoutRefresh(),
		RefreshToken: pair.RefreshToken,
	}
	if wantRefreshToken {
		session.Tokens.RefreshToken = pair.RefreshToken
	}

	return session, nil
}

// Refresh trades a refresh token for a new pair. Any rejection yields nil,
// nil so callers cannot tell expired from revoked or malformed. A disabled
// account is the only failure surfaced as an error.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*SessionTokenPair, error) {
	if refreshToken == "" {
		return nil, nil
	}

	pair, err := m.provider.RefreshSession(ctx, refreshToken)
	if err != nil {
		if IsAccountDisabled(err) {
			return nil, err
		}
		m.logger.Debug("refresh rejected: %v", err)
		return nil, nil
	}

	return pair, nil
}

// RevokeAll revokes every refresh token of the access token subject and
// returns the subject id.
func (m *SessionManager) RevokeAll(ctx context.Context, accessToken string) (string, error) {
	claims, err := m.provider.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		return "", err
	}

	if claims.UID == "" {
		return "", ErrAccessTokenInvalid.Clone().WithMetadata(map[string]any{"reason": "missing subject"})
	}

	if err := m.provider.RevokeRefreshTokens(ctx, claims.UID); err != nil {
		return claims.UID, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to revoke refresh tokens")
	}

	return claims.UID, nil
}

// Verify reports whether the provider accepts the access token.
func (m *SessionManager) Verify(ctx context.Context, accessToken string) bool {
	_, err := m.provider.VerifyAccessToken(ctx, accessToken)
	return err == nil
}

// Claims returns the verified claims of an access token.
func (m *SessionManager) Claims(ctx context.Context, accessToken string) (*AccessClaims, error) {
	return m.provider.VerifyAccessToken(ctx, accessToken)
}
