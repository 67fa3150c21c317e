package gateway

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AccountVerificationRequestMessage asks for a new verification link.
type AccountVerificationRequestMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *AccountVerificationRequestResponse)
}

func (m AccountVerificationRequestMessage) Type() string { return "user.verification.request" }

type AccountVerificationRequestResponse struct {
	Found     bool
	Issued    bool
	ExpiresAt time.Time
}

type AccountVerificationRequestHandler struct {
	provider IdentityProvider
	issuer   ActionTokenIssuer
	activity ActivitySink
	logger   Logger
	timeout  time.Duration
}

func NewAccountVerificationRequestHandler(provider IdentityProvider, issuer ActionTokenIssuer) *AccountVerificationRequestHandler {
	return &AccountVerificationRequestHandler{
		provider: provider,
		issuer:   issuer,
		activity: noopActivitySink{},
		logger:   defLogger{},
		timeout:  DefaultCommandTimeout,
	}
}

func (h *AccountVerificationRequestHandler) WithActivitySink(sink ActivitySink) *AccountVerificationRequestHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *AccountVerificationRequestHandler) WithLogger(logger Logger) *AccountVerificationRequestHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *AccountVerificationRequestHandler) WithTimeout(d time.Duration) *AccountVerificationRequestHandler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

func (h *AccountVerificationRequestHandler) Execute(ctx context.Context, event AccountVerificationRequestMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountVerificationRequestHandler) execute(ctx context.Context, event AccountVerificationRequestMessage) error {
	resp := &AccountVerificationRequestResponse{}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	account, err := h.provider.GetUserByEmail(ctx, event.Email)
	if err != nil {
		if IsUserNotFound(err) {
			h.logger.Info("verification requested for unknown email %s", event.Email)
			respond(event.OnResponse, resp)
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to retrieve user for verification")
	}

	resp.Found = true

	if account.EmailVerified {
		return ErrEmailAlreadyVerified.Clone().WithMetadata(map[string]any{"uid": account.UID})
	}

	issued, err := h.issuer.Issue(ctx, ActionVerifyEmail, event.Email, account.UID)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue verification token")
	}

	resp.Issued = true
	resp.ExpiresAt = issued.ExpiresAt

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventVerificationRequested,
		UserID:    account.UID,
		Email:     event.Email,
	})

	respond(event.OnResponse, resp)

	return nil
}
