package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityEventType names an auth flow step worth auditing.
type ActivityEventType string

const (
	ActivityEventRegisterSuccess       ActivityEventType = "auth.register.success"
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventLogout                ActivityEventType = "auth.logout"
	ActivityEventTokenRefreshed        ActivityEventType = "auth.token.refreshed"
	ActivityEventVerificationRequested ActivityEventType = "auth.email.verification.requested"
	ActivityEventEmailVerified         ActivityEventType = "auth.email.verified"
	ActivityEventPasswordResetRequest  ActivityEventType = "auth.password.reset.requested"
	ActivityEventPasswordResetSuccess  ActivityEventType = "auth.password.reset"
)

// ActivityEvent describes one completed step. UserID is empty when the
// account is unknown, for example a failed login.
type ActivityEvent struct {
	ID         string
	EventType  ActivityEventType
	UserID     string
	Email      string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink receives activity events. Implementations must be safe for
// concurrent use.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// emitActivity fills defaults and records the event. Sink failures are
// logged and never propagate to the caller.
func emitActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if sink == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := sink.Record(ctx, event); err != nil && logger != nil {
		logger.Warn("failed to record activity %s: %v", event.EventType, err)
	}
}
