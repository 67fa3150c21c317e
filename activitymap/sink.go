package activitymap

import (
	"context"

	gateway "github.com/goliatone/go-auth-gateway"
	"github.com/sirupsen/logrus"
)

// LogSink returns an ActivitySink that writes every normalized event as one
// structured log entry at info level.
func LogSink(logger logrus.FieldLogger, opts ...Option) gateway.ActivitySink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return gateway.ActivitySinkFunc(func(ctx context.Context, event gateway.ActivityEvent) error {
		n := Normalize(event, opts...)
		logger.WithFields(logrus.Fields{
			"actor_id":    n.ActorID,
			"verb":        n.Verb,
			"outcome":     n.Outcome,
			"object_type": n.ObjectType,
			"object_id":   n.ObjectID,
			"channel":     n.Channel,
			"metadata":    n.Metadata,
			"occurred_at": n.OccurredAt,
		}).Info("activity")
		return nil
	})
}
