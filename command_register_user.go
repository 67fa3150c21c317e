package gateway

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type RegisterUserMessage struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	UID    string
	Tokens *SessionTokenPair
}

type RegisterUserHandler struct {
	sessions *SessionManager
	activity ActivitySink
	logger   Logger
	timeout  time.Duration
}

func NewRegisterUserHandler(sessions *SessionManager) *RegisterUserHandler {
	return &RegisterUserHandler{
		sessions: sessions,
		activity: noopActivitySink{},
		logger:   defLogger{},
		timeout:  DefaultCommandTimeout,
	}
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *RegisterUserHandler) WithTimeout(d time.Duration) *RegisterUserHandler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	email := strings.TrimSpace(event.Email)

	if err := ValidateEmail(email); err != nil {
		return err
	}

	if err := ValidatePassword(event.Password).Err(); err != nil {
		return err
	}

	pair, uid, err := h.sessions.Register(ctx, email, event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration failed")
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventRegisterSuccess,
		UserID:    uid,
		Email:     email,
	})

	respond(event.OnResponse, &RegisterUserResponse{
		UID:    uid,
		Tokens: pair.WithoutRefresh(),
	})

	return nil
}
