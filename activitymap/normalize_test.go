package activitymap_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	gateway "github.com/goliatone/go-auth-gateway"
	"github.com/goliatone/go-auth-gateway/activitymap"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := gateway.ActivityEvent{
		ID:         "evt-1",
		EventType:  gateway.ActivityEventLoginSuccess,
		UserID:     "user-100",
		Email:      "jane@example.com",
		Metadata:   map[string]any{"ip": "10.0.0.7"},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, "user-100", out.ActorID)
	assert.Equal(t, string(gateway.ActivityEventLoginSuccess), out.Verb)
	assert.Equal(t, activitymap.OutcomeSuccess, out.Outcome)
	assert.Equal(t, activitymap.ObjectSession, out.ObjectType)
	assert.Equal(t, "user-100", out.ObjectID)
	assert.Equal(t, "auth-gateway", out.Channel)
	assert.True(t, out.OccurredAt.Equal(ts))

	assert.Equal(t, "10.0.0.7", out.Metadata["ip"])
	assert.Equal(t, "j***@example.com", out.Metadata[activitymap.MetadataKeyEmail])
	assert.Equal(t, "evt-1", out.Metadata[activitymap.MetadataKeyEventID])

	assert.Len(t, event.Metadata, 1, "source metadata must not change")
}

func TestNormalizeOptions(t *testing.T) {
	t.Parallel()

	event := gateway.ActivityEvent{
		EventType: gateway.ActivityEventPasswordResetSuccess,
		UserID:    "user-200",
		Email:     "jane@example.com",
		Metadata:  map[string]any{"reset_id": "reset-1"},
	}

	out := activitymap.Normalize(event,
		activitymap.WithChannel(" security "),
		activitymap.WithObjectType("password"),
		activitymap.WithEmailMasking(false),
		activitymap.WithObjectIDResolver(func(e gateway.ActivityEvent) string {
			id, _ := e.Metadata["reset_id"].(string)
			return id
		}),
	)

	assert.Equal(t, "security", out.Channel)
	assert.Equal(t, "password", out.ObjectType)
	assert.Equal(t, "reset-1", out.ObjectID)
	assert.Equal(t, "jane@example.com", out.Metadata[activitymap.MetadataKeyEmail])
	assert.False(t, out.OccurredAt.IsZero())
}

func TestNormalizeKeepsExplicitEmailMetadata(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(gateway.ActivityEvent{
		EventType: gateway.ActivityEventVerificationRequested,
		Email:     "jane@example.com",
		Metadata:  map[string]any{activitymap.MetadataKeyEmail: "redacted"},
	})

	assert.Equal(t, "redacted", out.Metadata[activitymap.MetadataKeyEmail])
}

func TestNormalizeEmptyMetadataIsNil(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(gateway.ActivityEvent{EventType: gateway.ActivityEventLogout})
	assert.Nil(t, out.Metadata)
}

func TestNormalizeActor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  gateway.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "account id",
			event:  gateway.ActivityEvent{UserID: "user-2"},
			expect: "user-2",
		},
		{
			name:   "anonymous when the account is unknown",
			event:  gateway.ActivityEvent{Email: "who@example.com"},
			expect: "anonymous",
		},
		{
			name:   "configured anonymous actor",
			event:  gateway.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithAnonymousActor("sweeper")},
			expect: "sweeper",
		},
		{
			name:   "blank anonymous actor is ignored",
			event:  gateway.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithAnonymousActor("  ")},
			expect: "anonymous",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expect, activitymap.Normalize(tc.event, tc.opts...).ActorID)
		})
	}
}

func TestObjectTypeAndOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		eventType  gateway.ActivityEventType
		objectType string
		outcome    string
	}{
		{gateway.ActivityEventRegisterSuccess, activitymap.ObjectAccount, activitymap.OutcomeSuccess},
		{gateway.ActivityEventLoginFailure, activitymap.ObjectSession, activitymap.OutcomeFailure},
		{gateway.ActivityEventTokenRefreshed, activitymap.ObjectSession, activitymap.OutcomeSuccess},
		{gateway.ActivityEventEmailVerified, activitymap.ObjectEmail, activitymap.OutcomeSuccess},
		{gateway.ActivityEventPasswordResetRequest, activitymap.ObjectCredential, activitymap.OutcomeSuccess},
		{gateway.ActivityEventType("auth.unknown"), activitymap.ObjectAccount, activitymap.OutcomeSuccess},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.objectType, activitymap.ObjectTypeFor(tc.eventType), tc.eventType)
		assert.Equal(t, tc.outcome, activitymap.OutcomeFor(tc.eventType), tc.eventType)
	}
}

func TestMaskEmail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "j***@example.com", activitymap.MaskEmail("jane@example.com"))
	assert.Equal(t, "é***@example.com", activitymap.MaskEmail("élodie@example.com"))
	assert.Equal(t, "***", activitymap.MaskEmail("@example.com"))
	assert.Equal(t, "***", activitymap.MaskEmail("not-an-email"))
}

func TestLogSinkWritesNormalizedRecord(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	sink := activitymap.LogSink(logger, activitymap.WithChannel("audit"))

	err := sink.Record(context.Background(), gateway.ActivityEvent{
		EventType: gateway.ActivityEventLoginFailure,
		Email:     "jane@example.com",
	})
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record), buf.String())

	assert.Equal(t, "activity", record["msg"])
	assert.Equal(t, "info", record["level"])
	assert.Equal(t, string(gateway.ActivityEventLoginFailure), record["verb"])
	assert.Equal(t, activitymap.OutcomeFailure, record["outcome"])
	assert.Equal(t, "anonymous", record["actor_id"])
	assert.Equal(t, "audit", record["channel"])
	assert.Equal(t, map[string]any{"email": "j***@example.com"}, record["metadata"])
}
