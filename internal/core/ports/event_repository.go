package ports

import (
	"context"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
)

// EventStore persists events. Every mutation also records an audit row and an
// outbox row in the same transaction.
type EventStore interface {
	CreateWithEvents(ctx context.Context, ev domain.Event, meta domain.MutationMetadata) (domain.Event, error)
	UpdateWithEvents(ctx context.Context, ev domain.Event, meta domain.MutationMetadata) (domain.Event, error)
	DeleteWithEvents(ctx context.Context, id string, meta domain.MutationMetadata) (bool, error)
	Get(ctx context.Context, id string) (domain.Event, error)
	List(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error)
}
