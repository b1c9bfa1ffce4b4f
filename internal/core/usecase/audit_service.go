package usecase

import (
	"context"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
	"github.com/atvirokodosprendimai/eventsapi/internal/core/ports"
)

type AuditService struct {
	repo ports.AuditTrailRepository
}

func NewAuditService(repo ports.AuditTrailRepository) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEvent, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.List(ctx, filter)
}

// EventHistory returns the audit trail of one event, newest first. Deleted
// events keep their history; ids that never existed are ErrNotFound.
func (s *AuditService) EventHistory(ctx context.Context, id, caller string) ([]domain.AuditTrailEvent, error) {
	if caller == "" {
		return nil, ErrUnauthorized
	}
	if !domain.ValidEventID(id) {
		return nil, domain.ErrNotFound
	}
	events, err := s.List(ctx, domain.AuditFilter{
		AggregateType: domain.AggregateEvents,
		AggregateID:   id,
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, domain.ErrNotFound
	}
	return events, nil
}
