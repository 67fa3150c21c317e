package gateway

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	MsgInternal                = "Internal server error"
	MsgEmailInUse              = "Email already in use"
	MsgInvalidEmailFormat      = "Invalid email format"
	MsgPasswordTooWeak         = "Password is too weak"
	MsgInvalidRegistration     = "Invalid registration data"
	MsgInvalidCredentials      = "Invalid credentials"
	MsgAccountDisabled         = "Account has been disabled"
	MsgInvalidLogin            = "Invalid login attempt"
	MsgInvalidRefreshToken     = "Invalid or expired refresh token"
	MsgForgotPassword          = "If your email is registered, you will receive a password reset link."
	MsgResendVerification      = "If your email is registered and not verified, a verification email will be sent."
	MsgMissingAccessToken      = "Missing or invalid access token"
	MsgAccessTokenWithoutEmail = "Access token has no email address"
	MsgEmailAlreadyVerified    = "Email is already verified"
	MsgEmailVerified           = "Email verified successfully"
	MsgVerifyEmailFailed       = "Failed to verify email. Please try again or request a new verification link."
	MsgPasswordReset           = "Password has been reset successfully"
	MsgInvalidResetToken       = "Invalid or expired reset token"
	MsgLoggedOut               = "Logged out successfully"
)

// Service is the auth facade consumed by the HTTP layer. Every error it
// returns carries an HTTP status in Code and a client safe Message.
type Service struct {
	sessions *SessionManager
	register *RegisterUserHandler
	forgot   *InitializePasswordResetHandler
	reset    *FinalizePasswordResetHandler
	resend   *AccountVerificationRequestHandler
	verify   *VerifyEmailHandler
	activity ActivitySink
	logger   Logger
	timeout  time.Duration
	started  time.Time
	now      func() time.Time
}

// NewService wires the facade around an identity provider and an action
// token service.
func NewService(provider IdentityProvider, actions *ActionTokenService) *Service {
	sessions := NewSessionManager(provider, actions)
	return &Service{
		sessions: sessions,
		register: NewRegisterUserHandler(sessions),
		forgot:   NewInitializePasswordResetHandler(provider, actions),
		reset:    NewFinalizePasswordResetHandler(provider, actions),
		resend:   NewAccountVerificationRequestHandler(provider, actions),
		verify:   NewVerifyEmailHandler(provider, actions),
		activity: noopActivitySink{},
		logger:   defLogger{},
		timeout:  DefaultCommandTimeout,
		started:  time.Now(),
		now:      time.Now,
	}
}

func (s *Service) WithLogger(logger Logger) *Service {
	s.logger = normalizeLogger(logger)
	s.sessions.WithLogger(s.logger)
	s.register.WithLogger(s.logger)
	s.forgot.WithLogger(s.logger)
	s.reset.WithLogger(s.logger)
	s.resend.WithLogger(s.logger)
	s.verify.WithLogger(s.logger)
	return s
}

func (s *Service) WithActivitySink(sink ActivitySink) *Service {
	s.activity = normalizeActivitySink(sink)
	s.register.WithActivitySink(s.activity)
	s.forgot.WithActivitySink(s.activity)
	s.reset.WithActivitySink(s.activity)
	s.resend.WithActivitySink(s.activity)
	s.verify.WithActivitySink(s.activity)
	return s
}

// WithTimeout bounds every upstream call made while serving one operation.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d <= 0 {
		return s
	}
	s.timeout = d
	s.register.WithTimeout(d)
	s.forgot.WithTimeout(d)
	s.reset.WithTimeout(d)
	s.resend.WithTimeout(d)
	s.verify.WithTimeout(d)
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Health reports liveness. It never touches upstream services.
func (s *Service) Health() HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Uptime:    time.Since(s.started).Seconds(),
		Timestamp: s.now().UnixMilli(),
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*SessionTokenPair, error) {
	if err := req.Validate(); err != nil {
		return nil, InvalidInputError(err.Error(), err)
	}

	var tokens *SessionTokenPair
	err := s.register.Execute(ctx, RegisterUserMessage{
		Email:    req.Email,
		Password: req.Password,
		OnResponse: func(resp *RegisterUserResponse) {
			tokens = resp.Tokens
		},
	})
	if err != nil {
		s.logError("registration failed", err)
		return nil, mapRegisterError(err)
	}

	return tokens, nil
}

func mapRegisterError(err error) *goerrors.Error {
	switch {
	case IsEmailAlreadyExists(err):
		return ConflictError(MsgEmailInUse, err)
	case hasFieldErrors(err):
		return InvalidInputError(richMessage(err), err)
	case IsInvalidEmail(err):
		return InvalidInputError(MsgInvalidEmailFormat, err)
	case IsWeakPassword(err):
		return InvalidInputError(MsgPasswordTooWeak, err)
	}
	return InvalidInputError(MsgInvalidRegistration, err)
}

// Login signs a user in. The returned Session always carries the refresh
// token for cookie delivery; the body view only carries it on request.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, InvalidInputError(err.Error(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.sessions.Authenticate(ctx, req.Email, req.Password, req.ReturnRefreshToken)
	if err != nil {
		s.logError("login failed", err)
		s.recordLoginFailure(ctx, req.Email, err)
		if IsAccountDisabled(err) {
			return nil, ForbiddenError(MsgAccountDisabled, err)
		}
		return nil, InvalidInputError(MsgInvalidLogin, err)
	}

	if session == nil {
		s.recordLoginFailure(ctx, req.Email, nil)
		return nil, UnauthorizedError(MsgInvalidCredentials, nil)
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    session.UID,
		Email:     req.Email,
		Metadata:  map[string]any{"refresh_in_body": req.ReturnRefreshToken},
	})

	return session, nil
}

func (s *Service) recordLoginFailure(ctx context.Context, email string, err error) {
	meta := map[string]any{"reason": "invalid_credentials"}
	if err != nil {
		meta["reason"] = err.Error()
	}
	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Email:     email,
		Metadata:  meta,
	})
}

// ForgotPassword always answers with the same message, whether or not the
// email belongs to an account.
func (s *Service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) (*MessageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, InvalidInputError(err.Error(), err)
	}

	email := strings.TrimSpace(req.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, InvalidInputError(MsgInvalidEmailFormat, err)
	}

	if err := s.forgot.Execute(ctx, InitializePasswordResetMessage{Email: email}); err != nil {
		s.logError("password reset request failed", err)
	}

	return &MessageResponse{Message: MsgForgotPassword}, nil
}

// ResendVerification issues a new verification link for the owner of the
// access token.
func (s *Service) ResendVerification(ctx context.Context, accessToken string) (*MessageResponse, error) {
	if accessToken == "" {
		return nil, InvalidInputError(MsgMissingAccessToken, nil)
	}

	claimsCtx, cancel := context.WithTimeout(ctx, s.timeout)
	claims, err := s.sessions.Claims(claimsCtx, accessToken)
	cancel()
	if err != nil {
		s.logError("resend verification with invalid token", err)
		return nil, InvalidInputError(MsgMissingAccessToken, err)
	}

	if claims.Email == "" {
		return nil, InvalidInputError(MsgAccessTokenWithoutEmail, nil)
	}

	err = s.resend.Execute(ctx, AccountVerificationRequestMessage{Email: claims.Email})
	if err != nil {
		if IsEmailAlreadyVerified(err) {
			return nil, InvalidInputError(MsgEmailAlreadyVerified, err)
		}
		s.logError("verification resend failed", err)
	}

	return &MessageResponse{Message: MsgResendVerification}, nil
}

// VerifyEmail consumes a verification token. Every failure collapses to a
// single message; the cause is only logged.
func (s *Service) VerifyEmail(ctx context.Context, req VerifyEmailRequest) (*VerifyEmailResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, InvalidInputError(err.Error(), err)
	}

	var result *VerifyEmailResult
	err := s.verify.Execute(ctx, VerifyEmailMessage{
		Token: req.Token,
		OnResponse: func(resp *VerifyEmailResult) {
			result = resp
		},
	})
	if err != nil {
		s.logError("email verification failed", err)
		return nil, InvalidInputError(MsgVerifyEmailFailed, err)
	}

	resp := &VerifyEmailResponse{Verified: true, Message: MsgEmailVerified}
	if result != nil && result.Tokens != nil {
		resp.IDToken = result.Tokens.AccessToken
	}
	return resp, nil
}

func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*SuccessResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, InvalidInputError(err.Error(), err)
	}

	err := s.reset.Execute(ctx, FinalizePasswordResetMessage{
		Token:    req.Token,
		Password: req.Password,
	})
	if err != nil {
		s.logError("password reset failed", err)
		switch {
		case hasFieldErrors(err):
			return nil, InvalidInputError(richMessage(err), err)
		case IsActionTokenError(err):
			return nil, InvalidInputError(MsgInvalidResetToken, err)
		case IsWeakPassword(err):
			return nil, InvalidInputError(MsgPasswordTooWeak, err)
		}
		return nil, InternalError(err)
	}

	return &SuccessResponse{Success: true, Message: MsgPasswordReset}, nil
}

// RefreshToken trades a refresh token for a new session. Tokens only
// carries the access token; RefreshToken holds the rotated refresh token.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, UnauthorizedError(MsgInvalidRefreshToken, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pair, err := s.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		s.logError("token refresh failed", err)
		if IsAccountDisabled(err) {
			return nil, ForbiddenError(MsgAccountDisabled, err)
		}
		return nil, UnauthorizedError(MsgInvalidRefreshToken, err)
	}

	if pair == nil {
		return nil, UnauthorizedError(MsgInvalidRefreshToken, nil)
	}

	session := &Session{
		Tokens:       pair.WithoutRefresh(),
		RefreshToken: pair.RefreshToken,
	}

	if claims, err := s.sessions.Claims(ctx, pair.AccessToken); err == nil {
		session.UID = claims.UID
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventTokenRefreshed,
		UserID:    session.UID,
	})

	return session, nil
}

// Logout revokes every refresh token of the caller when the access token is
// valid. It never fails.
func (s *Service) Logout(ctx context.Context, accessToken string) *SuccessResponse {
	if accessToken != "" {
		revokeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		uid, err := s.sessions.RevokeAll(revokeCtx, accessToken)
		cancel()
		if err != nil {
			s.logError("logout revocation skipped", err)
		} else {
			emitActivity(ctx, s.activity, s.logger, ActivityEvent{
				EventType: ActivityEventLogout,
				UserID:    uid,
			})
		}
	}

	return &SuccessResponse{Success: true, Message: MsgLoggedOut}
}

// VerifyAccessToken reports whether the provider accepts the token. Upstream
// failures that are not about the token itself are returned as internal
// errors.
func (s *Service) VerifyAccessToken(ctx context.Context, req VerifyAccessTokenRequest) (*VerifyAccessTokenResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, InvalidInputError(err.Error(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.sessions.Claims(ctx, req.AccessToken)
	if err == nil {
		return &VerifyAccessTokenResponse{Valid: true}, nil
	}

	if goerrors.HasCategory(err, goerrors.CategoryAuth) || goerrors.HasCategory(err, goerrors.CategoryBadInput) {
		return &VerifyAccessTokenResponse{Valid: false}, nil
	}

	s.logError("access token verification failed", err)
	return nil, InternalError(err)
}

// errorLogger is implemented by loggers that attach structured error fields.
type errorLogger interface {
	ErrorErr(msg string, err error)
}

func (s *Service) logError(msg string, err error) {
	if el, ok := s.logger.(errorLogger); ok {
		el.ErrorErr(msg, err)
		return
	}
	s.logger.Error("%s: %v", msg, err)
}

func hasFieldErrors(err error) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && len(rich.ValidationErrors) > 0
}

func richMessage(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Message
	}
	return err.Error()
}
