package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
)

// LogPublisher writes every outbox event to the log. It is the fallback when
// no webhook is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.log.Info("outbox publish",
		zap.String("topic", topic),
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("aggregate", event.AggregateType+"/"+event.AggregateID),
		zap.Int64("version", event.AggregateVersion),
		zap.String("actor", event.Actor))
	return nil
}
