package gateway

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// VerifyEmailMessage carries an email verification token.
type VerifyEmailMessage struct {
	Token      string `json:"token" doc:"Email verification token"`
	OnResponse func(resp *VerifyEmailResult)
}

func (m VerifyEmailMessage) Type() string { return "user.verification.finalize" }

type VerifyEmailResult struct {
	UID    string
	Email  string
	Tokens *SessionTokenPair
}

// VerifyEmailHandler consumes a verification token, flags the account as
// verified, drops existing sessions and signs the user back in.
type VerifyEmailHandler struct {
	provider IdentityProvider
	verifier ActionTokenVerifier
	activity ActivitySink
	logger   Logger
	timeout  time.Duration
}

func NewVerifyEmailHandler(provider IdentityProvider, verifier ActionTokenVerifier) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		provider: provider,
		verifier: verifier,
		activity: noopActivitySink{},
		logger:   defLogger{},
		timeout:  DefaultCommandTimeout,
	}
}

func (h *VerifyEmailHandler) WithActivitySink(sink ActivitySink) *VerifyEmailHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *VerifyEmailHandler) WithTimeout(d time.Duration) *VerifyEmailHandler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	action, err := h.verifier.Verify(ctx, ActionVerifyEmail, event.Token)
	if err != nil {
		return err
	}

	meta := map[string]any{"uid": action.OwnerID}

	if err := h.provider.MarkEmailVerified(ctx, action.OwnerID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to mark email as verified").WithMetadata(meta)
	}

	if err := h.provider.RevokeRefreshTokens(ctx, action.OwnerID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to revoke sessions after verification").WithMetadata(meta)
	}

	pair, err := h.provider.ExchangeCustomToken(ctx, action.OwnerID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to issue session after verification").WithMetadata(meta)
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventEmailVerified,
		UserID:    action.OwnerID,
		Email:     action.Email,
	})

	respond(event.OnResponse, &VerifyEmailResult{
		UID:    action.OwnerID,
		Email:  action.Email,
		Tokens: pair.WithoutRefresh(),
	})

	return nil
}
