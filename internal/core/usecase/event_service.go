package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
	"github.com/atvirokodosprendimai/eventsapi/internal/core/ports"
)

const attachmentRemoveTimeout = 10 * time.Second

type EventService struct {
	store ports.EventStore
	files ports.AttachmentStore
	log   *zap.Logger

	// pending tracks detached attachment removals so Close can drain them.
	pending sync.WaitGroup
}

func NewEventService(store ports.EventStore, files ports.AttachmentStore, log *zap.Logger) *EventService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventService{store: store, files: files, log: log}
}

func (s *EventService) List(ctx context.Context, filter domain.EventFilter, caller string) ([]domain.Event, error) {
	if caller == "" {
		return nil, ErrUnauthorized
	}
	return s.store.List(ctx, filter.Normalize())
}

func (s *EventService) Get(ctx context.Context, id, caller string) (domain.Event, error) {
	if caller == "" {
		return domain.Event{}, ErrUnauthorized
	}
	if !domain.ValidEventID(id) {
		return domain.Event{}, domain.ErrNotFound
	}
	return s.store.Get(ctx, id)
}

func (s *EventService) Create(ctx context.Context, fields domain.EventFields, attachment *domain.Attachment, meta domain.MutationMetadata) (domain.Event, error) {
	if meta.Actor == "" {
		return domain.Event{}, ErrUnauthorized
	}
	if err := validateFields(createEventSchema, fields); err != nil {
		return domain.Event{}, err
	}
	date, err := domain.ParseEventDate(fields.Date)
	if err != nil {
		return domain.Event{}, err
	}
	if attachment != nil {
		if err := attachment.Validate(); err != nil {
			return domain.Event{}, err
		}
	}

	ev := domain.Event{
		Title:       fields.Title,
		Type:        fields.Type,
		Description: fields.Description,
		Date:        date,
		Location:    fields.Location,
		CreatedBy:   meta.Actor,
	}

	if attachment != nil {
		path, err := s.files.Save(ctx, *attachment)
		if err != nil {
			return domain.Event{}, fmt.Errorf("save attachment: %w", err)
		}
		ev.ImageURL = path
	}

	created, err := s.store.CreateWithEvents(ctx, ev, meta)
	if err != nil {
		s.discardAttachment(ev.ImageURL, "create failed")
		return domain.Event{}, err
	}
	return created, nil
}

// Update overwrites every non-empty field and keeps the rest. An empty value
// cannot clear a field.
func (s *EventService) Update(ctx context.Context, id string, fields domain.EventFields, attachment *domain.Attachment, meta domain.MutationMetadata) (domain.Event, error) {
	existing, err := s.ownedEvent(ctx, id, meta.Actor)
	if err != nil {
		return domain.Event{}, err
	}
	if err := validateFields(updateEventSchema, fields); err != nil {
		return domain.Event{}, err
	}

	next := existing
	if fields.Date != "" {
		date, err := domain.ParseEventDate(fields.Date)
		if err != nil {
			return domain.Event{}, err
		}
		next.Date = date
	}
	if fields.Title != "" {
		next.Title = fields.Title
	}
	if fields.Type != "" {
		next.Type = fields.Type
	}
	if fields.Description != "" {
		next.Description = fields.Description
	}
	if fields.Location != "" {
		next.Location = fields.Location
	}

	if attachment != nil {
		if err := attachment.Validate(); err != nil {
			return domain.Event{}, err
		}
		path, err := s.files.Save(ctx, *attachment)
		if err != nil {
			return domain.Event{}, fmt.Errorf("save attachment: %w", err)
		}
		next.ImageURL = path
	}

	updated, err := s.store.UpdateWithEvents(ctx, next, meta)
	if err != nil {
		if next.ImageURL != existing.ImageURL {
			s.discardAttachment(next.ImageURL, "update failed")
		}
		return domain.Event{}, err
	}
	if existing.ImageURL != "" && existing.ImageURL != updated.ImageURL {
		s.discardAttachment(existing.ImageURL, "replaced")
	}
	return updated, nil
}

func (s *EventService) Delete(ctx context.Context, id string, meta domain.MutationMetadata) error {
	existing, err := s.ownedEvent(ctx, id, meta.Actor)
	if err != nil {
		return err
	}

	deleted, err := s.store.DeleteWithEvents(ctx, id, meta)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.discardAttachment(existing.ImageURL, "event deleted")
	return nil
}

// Close waits for in-flight attachment removals.
func (s *EventService) Close() error {
	s.pending.Wait()
	return nil
}

func (s *EventService) ownedEvent(ctx context.Context, id, caller string) (domain.Event, error) {
	if caller == "" {
		return domain.Event{}, ErrUnauthorized
	}
	if !domain.ValidEventID(id) {
		return domain.Event{}, domain.ErrNotFound
	}
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	if !existing.OwnedBy(caller) {
		return domain.Event{}, domain.ErrForbidden
	}
	return existing, nil
}

// discardAttachment removes relPath in the background. Failures are only logged.
func (s *EventService) discardAttachment(relPath, reason string) {
	if relPath == "" {
		return
	}
	s.pending.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), attachmentRemoveTimeout)
		defer cancel()
		if err := s.files.Remove(ctx, relPath); err != nil {
			s.log.Warn("remove attachment",
				zap.String("path", relPath),
				zap.String("reason", reason),
				zap.Error(err))
			return
		}
		s.log.Debug("attachment removed", zap.String("path", relPath), zap.String("reason", reason))
	})
}
