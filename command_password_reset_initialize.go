package gateway

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// InitializePasswordResetMessage asks for a password reset link.
type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset.init" }

type InitializePasswordResetResponse struct {
	// Dispatched is false when no account exists for the email.
	Dispatched bool
	ExpiresAt  time.Time
}

type InitializePasswordResetHandler struct {
	provider IdentityProvider
	issuer   ActionTokenIssuer
	activity ActivitySink
	logger   Logger
	timeout  time.Duration
}

func NewInitializePasswordResetHandler(provider IdentityProvider, issuer ActionTokenIssuer) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		provider: provider,
		issuer:   issuer,
		activity: noopActivitySink{},
		logger:   defLogger{},
		timeout:  DefaultCommandTimeout,
	}
}

func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *InitializePasswordResetHandler) WithTimeout(d time.Duration) *InitializePasswordResetHandler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	account, err := h.provider.GetUserByEmail(ctx, event.Email)
	if err != nil {
		// unknown accounts are part of the expected flow
		if IsUserNotFound(err) {
			h.logger.Info("password reset requested for unknown email %s", event.Email)
			respond(event.OnResponse, resp)
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to retrieve user for password reset")
	}

	issued, err := h.issuer.Issue(ctx, ActionResetPassword, event.Email, account.UID)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	resp.Dispatched = true
	resp.ExpiresAt = issued.ExpiresAt

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		UserID:    account.UID,
		Email:     event.Email,
		Metadata:  map[string]any{"expires_at": issued.ExpiresAt},
	})

	respond(event.OnResponse, resp)

	return nil
}

func respond[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}
