package gateway_test

import (
	"context"
	"sync"

	gateway "github.com/goliatone/go-auth-gateway"
	"github.com/stretchr/testify/mock"
)

// MockIdentityProvider implements gateway.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) CreateUser(ctx context.Context, email, password string) (*gateway.UserAccount, error) {
	args := m.Called(ctx, email, password)
	account, _ := args.Get(0).(*gateway.UserAccount)
	return account, args.Error(1)
}

func (m *MockIdentityProvider) GetUserByEmail(ctx context.Context, email string) (*gateway.UserAccount, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*gateway.UserAccount)
	return account, args.Error(1)
}

func (m *MockIdentityProvider) MarkEmailVerified(ctx context.Context, uid string) error {
	return m.Called(ctx, uid).Error(0)
}

func (m *MockIdentityProvider) UpdatePassword(ctx context.Context, uid, password string) error {
	return m.Called(ctx, uid, password).Error(0)
}

func (m *MockIdentityProvider) RevokeRefreshTokens(ctx context.Context, uid string) error {
	return m.Called(ctx, uid).Error(0)
}

func (m *MockIdentityProvider) VerifyAccessToken(ctx context.Context, accessToken string) (*gateway.AccessClaims, error) {
	args := m.Called(ctx, accessToken)
	claims, _ := args.Get(0).(*gateway.AccessClaims)
	return claims, args.Error(1)
}

func (m *MockIdentityProvider) ExchangeCustomToken(ctx context.Context, uid string) (*gateway.SessionTokenPair, error) {
	args := m.Called(ctx, uid)
	pair, _ := args.Get(0).(*gateway.SessionTokenPair)
	return pair, args.Error(1)
}

func (m *MockIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (*gateway.SessionTokenPair, string, error) {
	args := m.Called(ctx, email, password)
	pair, _ := args.Get(0).(*gateway.SessionTokenPair)
	return pair, args.String(1), args.Error(2)
}

func (m *MockIdentityProvider) RefreshSession(ctx context.Context, refreshToken string) (*gateway.SessionTokenPair, error) {
	args := m.Called(ctx, refreshToken)
	pair, _ := args.Get(0).(*gateway.SessionTokenPair)
	return pair, args.Error(1)
}

// MockActionTokenIssuer implements gateway.ActionTokenIssuer
type MockActionTokenIssuer struct {
	mock.Mock
}

func (m *MockActionTokenIssuer) Issue(ctx context.Context, actionType gateway.ActionType, email, ownerID string) (*gateway.IssuedActionToken, error) {
	args := m.Called(ctx, actionType, email, ownerID)
	issued, _ := args.Get(0).(*gateway.IssuedActionToken)
	return issued, args.Error(1)
}

// MockActionTokenVerifier implements gateway.ActionTokenVerifier
type MockActionTokenVerifier struct {
	mock.Mock
}

func (m *MockActionTokenVerifier) Verify(ctx context.Context, actionType gateway.ActionType, token string) (*gateway.VerifiedAction, error) {
	args := m.Called(ctx, actionType, token)
	action, _ := args.Get(0).(*gateway.VerifiedAction)
	return action, args.Error(1)
}

// MockActivitySink implements gateway.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event gateway.ActivityEvent) error {
	return m.Called(ctx, event).Error(0)
}

// MockAuthOperations implements gateway.AuthOperations
type MockAuthOperations struct {
	mock.Mock
}

func (m *MockAuthOperations) Health() gateway.HealthStatus {
	return m.Called().Get(0).(gateway.HealthStatus)
}

func (m *MockAuthOperations) Register(ctx context.Context, req gateway.RegisterRequest) (*gateway.SessionTokenPair, error) {
	args := m.Called(ctx, req)
	pair, _ := args.Get(0).(*gateway.SessionTokenPair)
	return pair, args.Error(1)
}

func (m *MockAuthOperations) Login(ctx context.Context, req gateway.LoginRequest) (*gateway.Session, error) {
	args := m.Called(ctx, req)
	session, _ := args.Get(0).(*gateway.Session)
	return session, args.Error(1)
}

func (m *MockAuthOperations) ForgotPassword(ctx context.Context, req gateway.ForgotPasswordRequest) (*gateway.MessageResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*gateway.MessageResponse)
	return resp, args.Error(1)
}

func (m *MockAuthOperations) ResendVerification(ctx context.Context, accessToken string) (*gateway.MessageResponse, error) {
	args := m.Called(ctx, accessToken)
	resp, _ := args.Get(0).(*gateway.MessageResponse)
	return resp, args.Error(1)
}

func (m *MockAuthOperations) VerifyEmail(ctx context.Context, req gateway.VerifyEmailRequest) (*gateway.VerifyEmailResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*gateway.VerifyEmailResponse)
	return resp, args.Error(1)
}

func (m *MockAuthOperations) ResetPassword(ctx context.Context, req gateway.ResetPasswordRequest) (*gateway.SuccessResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*gateway.SuccessResponse)
	return resp, args.Error(1)
}

func (m *MockAuthOperations) RefreshToken(ctx context.Context, refreshToken string) (*gateway.Session, error) {
	args := m.Called(ctx, refreshToken)
	session, _ := args.Get(0).(*gateway.Session)
	return session, args.Error(1)
}

func (m *MockAuthOperations) Logout(ctx context.Context, accessToken string) *gateway.SuccessResponse {
	resp, _ := m.Called(ctx, accessToken).Get(0).(*gateway.SuccessResponse)
	return resp
}

func (m *MockAuthOperations) VerifyAccessToken(ctx context.Context, req gateway.VerifyAccessTokenRequest) (*gateway.VerifyAccessTokenResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*gateway.VerifyAccessTokenResponse)
	return resp, args.Error(1)
}

type sentEmail struct {
	Kind  string
	Email string
	Link  string
}

// captureDispatcher records every email instead of sending it.
type captureDispatcher struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (d *captureDispatcher) SendVerificationEmail(_ context.Context, email, link string) error {
	return d.record("verify", email, link)
}

func (d *captureDispatcher) SendPasswordResetEmail(_ context.Context, email, link string) error {
	return d.record("reset", email, link)
}

func (d *captureDispatcher) record(kind, email, link string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sentEmail{Kind: kind, Email: email, Link: link})
	return nil
}

func (d *captureDispatcher) last() sentEmail {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		return sentEmail{}
	}
	return d.sent[len(d.sent)-1]
}

func (d *captureDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

var (
	_ gateway.IdentityProvider    = (*MockIdentityProvider)(nil)
	_ gateway.ActionTokenIssuer   = (*MockActionTokenIssuer)(nil)
	_ gateway.ActionTokenVerifier = (*MockActionTokenVerifier)(nil)
	_ gateway.ActivitySink        = (*MockActivitySink)(nil)
	_ gateway.AuthOperations      = (*MockAuthOperations)(nil)
	_ gateway.EmailDispatcher     = (*captureDispatcher)(nil)
)
