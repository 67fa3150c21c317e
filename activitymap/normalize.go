// Package activitymap turns gateway activity events into flat audit records.
package activitymap

import (
	"strings"
	"time"
	"unicode/utf8"

	gateway "github.com/goliatone/go-auth-gateway"
)

// Metadata keys added by Normalize.
const (
	MetadataKeyEmail   = "email"
	MetadataKeyEventID = "event_id"
)

// Object types derived from the event family.
const (
	ObjectAccount    = "account"
	ObjectSession    = "session"
	ObjectEmail      = "email"
	ObjectCredential = "credential"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

const (
	defaultChannel        = "auth-gateway"
	defaultAnonymousActor = "anonymous"
)

var objectTypes = map[gateway.ActivityEventType]string{
	gateway.ActivityEventRegisterSuccess:       ObjectAccount,
	gateway.ActivityEventLoginSuccess:          ObjectSession,
	gateway.ActivityEventLoginFailure:          ObjectSession,
	gateway.ActivityEventLogout:                ObjectSession,
	gateway.ActivityEventTokenRefreshed:        ObjectSession,
	gateway.ActivityEventVerificationRequested: ObjectEmail,
	gateway.ActivityEventEmailVerified:         ObjectEmail,
	gateway.ActivityEventPasswordResetRequest:  ObjectCredential,
	gateway.ActivityEventPasswordResetSuccess:  ObjectCredential,
}

// Normalized is the record shape handed to audit sinks.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	Outcome    string         `json:"outcome"`
	ObjectType string         `json:"object_type"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*settings)

type settings struct {
	channel        string
	objectType     string
	anonymousActor string
	objectID       func(gateway.ActivityEvent) string
	maskEmail      bool
}

// WithChannel sets the channel stamped on every record.
func WithChannel(channel string) Option {
	return func(s *settings) {
		s.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType replaces the object type derived from the event type.
func WithObjectType(objectType string) Option {
	return func(s *settings) {
		s.objectType = strings.TrimSpace(objectType)
	}
}

func WithObjectIDResolver(resolver func(gateway.ActivityEvent) string) Option {
	return func(s *settings) {
		s.objectID = resolver
	}
}

// WithAnonymousActor sets the actor used for events without an account id,
// such as failed logins or requests for unknown emails.
func WithAnonymousActor(actorID string) Option {
	return func(s *settings) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			s.anonymousActor = actorID
		}
	}
}

// WithEmailMasking toggles masking of the email copied into metadata.
// Masking is on by default.
func WithEmailMasking(enabled bool) Option {
	return func(s *settings) {
		s.maskEmail = enabled
	}
}

// Normalize flattens event into a Normalized record. The event metadata is
// copied, never modified.
func Normalize(event gateway.ActivityEvent, opts ...Option) Normalized {
	s := settings{
		channel:        defaultChannel,
		anonymousActor: defaultAnonymousActor,
		maskEmail:      true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	actorID := strings.TrimSpace(event.UserID)
	if actorID == "" {
		actorID = s.anonymousActor
	}

	objectType := s.objectType
	if objectType == "" {
		objectType = ObjectTypeFor(event.EventType)
	}

	objectID := strings.TrimSpace(event.UserID)
	if s.objectID != nil {
		objectID = strings.TrimSpace(s.objectID(event))
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		Outcome:    OutcomeFor(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    s.channel,
		Metadata:   s.metadata(event),
		OccurredAt: occurredAt,
	}
}

// ObjectTypeFor returns the object an event type acts on. Unknown types map
// to ObjectAccount.
func ObjectTypeFor(eventType gateway.ActivityEventType) string {
	if objectType, ok := objectTypes[eventType]; ok {
		return objectType
	}
	return ObjectAccount
}

func OutcomeFor(eventType gateway.ActivityEventType) string {
	if strings.HasSuffix(string(eventType), ".failure") {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	first, _ := utf8.DecodeRuneInString(email)
	return string(first) + "***" + email[at:]
}

func (s settings) metadata(event gateway.ActivityEvent) map[string]any {
	out := make(map[string]any, len(event.Metadata)+2)
	for k, v := range event.Metadata {
		out[k] = v
	}

	if email := strings.TrimSpace(event.Email); email != "" {
		if _, exists := out[MetadataKeyEmail]; !exists {
			if s.maskEmail {
				email = MaskEmail(email)
			}
			out[MetadataKeyEmail] = email
		}
	}

	if event.ID != "" {
		out[MetadataKeyEventID] = event.ID
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
