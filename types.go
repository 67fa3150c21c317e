package gateway

import (
	"context"
	"fmt"
	"time"
)

// DefaultCommandTimeout bounds every outbound call made by a command.
const DefaultCommandTimeout = 10 * time.Second

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// ActionType identifies an out-of-band account action.
type ActionType string

const (
	ActionVerifyEmail   ActionType = "verify-email"
	ActionResetPassword ActionType = "reset-password"
)

// TTL returns how long tokens for the action stay valid.
func (a ActionType) TTL() time.Duration {
	switch a {
	case ActionVerifyEmail:
		return 24 * time.Hour
	case ActionResetPassword:
		return time.Hour
	}
	return 0
}

// Path is the front end route that consumes the action link.
func (a ActionType) Path() string {
	return "/" + string(a)
}

func (a ActionType) Valid() bool {
	return a == ActionVerifyEmail || a == ActionResetPassword
}

// SessionTokenPair is produced by the identity provider.
type SessionTokenPair struct {
	AccessToken  string `json:"idToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// WithoutRefresh returns a copy that only carries the access token.
func (p *SessionTokenPair) WithoutRefresh() *SessionTokenPair {
	if p == nil {
		return nil
	}
	return &SessionTokenPair{AccessToken: p.AccessToken}
}

// ActionKeyRecord holds the signing key for a single pending action.
type ActionKeyRecord struct {
	ID         string
	ActionType ActionType
	Email      string
	SigningKey string
	OwnerID    string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the record outlived its action ttl. Records
// written without ExpiresAt fall back to CreatedAt plus the action ttl.
func (r *ActionKeyRecord) Expired(now time.Time) bool {
	if r == nil {
		return false
	}
	if !r.ExpiresAt.IsZero() {
		return now.After(r.ExpiresAt)
	}
	if r.CreatedAt.IsZero() || r.ActionType.TTL() == 0 {
		return false
	}
	return !isWithin(r.CreatedAt, r.ActionType.TTL(), now)
}

// UserAccount is the subset of provider account state we care about.
type UserAccount struct {
	UID           string
	Email         string
	EmailVerified bool
	Disabled      bool
}

// AccessClaims are the verified claims of a provider access token.
type AccessClaims struct {
	UID           string
	Email         string
	EmailVerified bool
	ExpiresAt     time.Time
}

// IdentityProvider is the external service of record for accounts and
// session tokens.
type IdentityProvider interface {
	CreateUser(ctx context.Context, email, password string) (*UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*UserAccount, error)
	MarkEmailVerified(ctx context.Context, uid string) error
	UpdatePassword(ctx context.Context, uid, password string) error
	RevokeRefreshTokens(ctx context.Context, uid string) error
	VerifyAccessToken(ctx context.Context, accessToken string) (*AccessClaims, error)
	// ExchangeCustomToken mints a custom token for uid and trades it for a
	// session.
	ExchangeCustomToken(ctx context.Context, uid string) (*SessionTokenPair, error)
	// SignInWithPassword returns the session and the uid of the account.
	SignInWithPassword(ctx context.Context, email, password string) (*SessionTokenPair, string, error)
	RefreshSession(ctx context.Context, refreshToken string) (*SessionTokenPair, error)
}

// ActionKeyStore persists one signing key per action type and email.
// Get must return an error matching IsKeyNotFound when no record exists.
type ActionKeyStore interface {
	Put(ctx context.Context, record *ActionKeyRecord) error
	Get(ctx context.Context, actionType ActionType, email string) (*ActionKeyRecord, error)
	Delete(ctx context.Context, actionType ActionType, email string) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// EmailDispatcher delivers action links.
type EmailDispatcher interface {
	SendVerificationEmail(ctx context.Context, email, link string) error
	SendPasswordResetEmail(ctx context.Context, email, link string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] GATEWAY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] GATEWAY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] GATEWAY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] GATEWAY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
