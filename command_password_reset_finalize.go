package gateway

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token" doc:"Password reset token"`
	Password string `json:"password" example:"some_Secret_w0rd!" doc:"New password"`
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset.finalize" }

type FinalizePasswordResetHandler struct {
	provider IdentityProvider
	verifier ActionTokenVerifier
	activity ActivitySink
	logger   Logger
	timeout  time.Duration
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(provider IdentityProvider, verifier ActionTokenVerifier) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		provider: provider,
		verifier: verifier,
		activity: noopActivitySink{},
		logger:   defLogger{},
		timeout:  DefaultCommandTimeout,
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *FinalizePasswordResetHandler) WithTimeout(d time.Duration) *FinalizePasswordResetHandler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	// checked before the token is consumed
	if err := ValidatePassword(event.Password).Err(); err != nil {
		return err
	}

	action, err := h.verifier.Verify(ctx, ActionResetPassword, event.Token)
	if err != nil {
		return err
	}

	if err := h.provider.UpdatePassword(ctx, action.OwnerID, event.Password); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to update password").
			WithMetadata(map[string]any{"uid": action.OwnerID})
	}

	if err := h.provider.RevokeRefreshTokens(ctx, action.OwnerID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to revoke sessions after password reset").
			WithMetadata(map[string]any{"uid": action.OwnerID})
	}

	h.recordActivity(ctx, action)

	return nil
}

func (h *FinalizePasswordResetHandler) recordActivity(ctx context.Context, action *VerifiedAction) {
	if action == nil {
		return
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		UserID:    action.OwnerID,
		Email:     action.Email,
		Metadata:  map[string]any{"sessions_revoked": true},
	})
}
