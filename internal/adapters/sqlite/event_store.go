package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/eventsapi/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
	"github.com/atvirokodosprendimai/eventsapi/internal/core/ports"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type eventModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	Title       string    `gorm:"column:title;not null"`
	Type        string    `gorm:"column:type;not null"`
	TitleFold   string    `gorm:"column:title_fold;not null"`
	TypeFold    string    `gorm:"column:type_fold;not null"`
	Description string    `gorm:"column:description;not null"`
	Date        time.Time `gorm:"column:date;not null"`
	Location    string    `gorm:"column:location;not null"`
	ImageURL    *string   `gorm:"column:image_url"`
	CreatedBy   string    `gorm:"column:created_by;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (eventModel) TableName() string {
	return "events"
}

type auditEventModel struct {
	ID                int64     `gorm:"column:id;primaryKey;autoIncrement"`
	EventID           string    `gorm:"column:event_id;not null"`
	SchemaVersion     int       `gorm:"column:schema_version;not null"`
	AggregateType     string    `gorm:"column:aggregate_type;not null"`
	AggregateID       string    `gorm:"column:aggregate_id;not null"`
	AggregateVersion  int64     `gorm:"column:aggregate_version;not null"`
	Action            string    `gorm:"column:action;not null"`
	Actor             string    `gorm:"column:actor;not null"`
	Source            string    `gorm:"column:source;not null"`
	RequestID         string    `gorm:"column:request_id;not null"`
	CorrelationID     string    `gorm:"column:correlation_id;not null"`
	BeforeJSON        string    `gorm:"column:before_json"`
	AfterJSON         string    `gorm:"column:after_json"`
	ChangedFieldsJSON string    `gorm:"column:changed_fields_json"`
	OccurredAt        time.Time `gorm:"column:occurred_at;not null"`
}

func (auditEventModel) TableName() string {
	return "audit_events"
}

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string {
	return "outbox_events"
}

// eventSnapshot is the JSON shape written to audit rows and outbox payloads.
type eventSnapshot struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	ImageURL    *string   `json:"imageUrl"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type EventStore struct {
	db *gormsqlite.DB
}

func NewEventStore(db *gormsqlite.DB) *EventStore {
	return &EventStore{db: db}
}

var _ ports.EventStore = (*EventStore)(nil)

func (s *EventStore) CreateWithEvents(ctx context.Context, ev domain.Event, meta domain.MutationMetadata) (domain.Event, error) {
	meta = meta.Normalize()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	now := meta.OccurredAt.UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now

	var result domain.Event
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		model := toEventModel(ev)
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		var after eventModel
		if err := tx.Where("id = ?", ev.ID).First(&after).Error; err != nil {
			return fmt.Errorf("load created event: %w", err)
		}
		if err := recordMutation(tx.DB, domain.ActionEventCreated, ev.ID, meta, nil, &after); err != nil {
			return err
		}
		result = toEventDomain(after)
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return result, nil
}

// UpdateWithEvents overwrites the mutable columns. created_by and created_at
// are never written.
func (s *EventStore) UpdateWithEvents(ctx context.Context, ev domain.Event, meta domain.MutationMetadata) (domain.Event, error) {
	meta = meta.Normalize()

	var result domain.Event
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var before eventModel
		if err := tx.Where("id = ?", ev.ID).First(&before).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("load event before update: %w", err)
		}

		model := toEventModel(ev)
		if err := tx.Model(&eventModel{}).Where("id = ?", ev.ID).Updates(map[string]any{
			"title":       model.Title,
			"type":        model.Type,
			"title_fold":  model.TitleFold,
			"type_fold":   model.TypeFold,
			"description": model.Description,
			"date":        model.Date,
			"location":    model.Location,
			"image_url":   model.ImageURL,
			"updated_at":  meta.OccurredAt.UTC(),
		}).Error; err != nil {
			return fmt.Errorf("update event: %w", err)
		}

		var after eventModel
		if err := tx.Where("id = ?", ev.ID).First(&after).Error; err != nil {
			return fmt.Errorf("load updated event: %w", err)
		}
		if err := recordMutation(tx.DB, domain.ActionEventUpdated, ev.ID, meta, &before, &after); err != nil {
			return err
		}
		result = toEventDomain(after)
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return result, nil
}

func (s *EventStore) DeleteWithEvents(ctx context.Context, id string, meta domain.MutationMetadata) (bool, error) {
	meta = meta.Normalize()
	deleted := false

	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var before eventModel
		if err := tx.Where("id = ?", id).First(&before).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("load event before delete: %w", err)
		}

		if err := tx.Where("id = ?", id).Delete(&eventModel{}).Error; err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		deleted = true
		return recordMutation(tx.DB, domain.ActionEventDeleted, id, meta, &before, nil)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (s *EventStore) Get(ctx context.Context, id string) (domain.Event, error) {
	var model eventModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Event{}, domain.ErrNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return toEventDomain(model), nil
}

// List matches search against title and type, case-insensitively, and orders
// by date ascending. Folding happens in Go since SQLite's lower() is ASCII-only.
func (s *EventStore) List(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	var models []eventModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&eventModel{})
		if filter.Search != "" {
			term := foldSearch(filter.Search)
			query = query.Where("instr(title_fold, ?) > 0 OR instr(type_fold, ?) > 0", term, term)
		}
		return query.Order("date ASC").Order("created_at ASC").Order("id ASC").Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	result := make([]domain.Event, 0, len(models))
	for _, model := range models {
		result = append(result, toEventDomain(model))
	}
	return result, nil
}

func toEventModel(ev domain.Event) eventModel {
	model := eventModel{
		ID:          ev.ID,
		Title:       ev.Title,
		Type:        ev.Type,
		TitleFold:   foldSearch(ev.Title),
		TypeFold:    foldSearch(ev.Type),
		Description: ev.Description,
		Date:        ev.Date.UTC(),
		Location:    ev.Location,
		CreatedBy:   ev.CreatedBy,
		CreatedAt:   ev.CreatedAt.UTC(),
		UpdatedAt:   ev.UpdatedAt.UTC(),
	}
	if ev.ImageURL != "" {
		url := ev.ImageURL
		model.ImageURL = &url
	}
	return model
}

func foldSearch(s string) string {
	return strings.ToLower(s)
}

func toEventDomain(model eventModel) domain.Event {
	ev := domain.Event{
		ID:          model.ID,
		Title:       model.Title,
		Type:        model.Type,
		Description: model.Description,
		Date:        model.Date.UTC(),
		Location:    model.Location,
		CreatedBy:   model.CreatedBy,
		CreatedAt:   model.CreatedAt.UTC(),
		UpdatedAt:   model.UpdatedAt.UTC(),
	}
	if model.ImageURL != nil {
		ev.ImageURL = *model.ImageURL
	}
	return ev
}

func snapshot(model *eventModel) string {
	if model == nil {
		return ""
	}
	return string(mustJSON(eventSnapshot{
		ID:          model.ID,
		Title:       model.Title,
		Type:        model.Type,
		Description: model.Description,
		Date:        model.Date.UTC(),
		Location:    model.Location,
		ImageURL:    model.ImageURL,
		CreatedBy:   model.CreatedBy,
		CreatedAt:   model.CreatedAt.UTC(),
		UpdatedAt:   model.UpdatedAt.UTC(),
	}))
}

func changedFields(before, after *eventModel) []string {
	if before == nil || after == nil {
		return []string{}
	}
	changed := make([]string, 0, 6)
	if before.Title != after.Title {
		changed = append(changed, "title")
	}
	if before.Type != after.Type {
		changed = append(changed, "type")
	}
	if before.Description != after.Description {
		changed = append(changed, "description")
	}
	if !before.Date.Equal(after.Date) {
		changed = append(changed, "date")
	}
	if before.Location != after.Location {
		changed = append(changed, "location")
	}
	if (before.ImageURL == nil) != (after.ImageURL == nil) ||
		(before.ImageURL != nil && *before.ImageURL != *after.ImageURL) {
		changed = append(changed, "imageUrl")
	}
	return changed
}

func nextAggregateVersion(tx *gorm.DB, aggregateType, id string) (int64, error) {
	var maxVersion int64
	err := tx.Model(&auditEventModel{}).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, id).
		Select("COALESCE(MAX(aggregate_version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, fmt.Errorf("query aggregate version: %w", err)
	}
	return maxVersion + 1, nil
}

// recordMutation writes the audit row and the outbox row for one change.
func recordMutation(tx *gorm.DB, action, id string, meta domain.MutationMetadata, before, after *eventModel) error {
	version, err := nextAggregateVersion(tx, domain.AggregateEvents, id)
	if err != nil {
		return err
	}

	beforeJSON := snapshot(before)
	afterJSON := snapshot(after)
	payload := map[string]any{"event_id": id}
	if after != nil {
		payload["event"] = json.RawMessage(afterJSON)
	}

	envelope := domain.EventEnvelope{
		EventID:          uuid.NewString(),
		EventType:        action,
		SchemaVersion:    domain.CurrentEventSchemaVersion,
		AggregateType:    domain.AggregateEvents,
		AggregateID:      id,
		AggregateVersion: version,
		OccurredAt:       meta.OccurredAt.UTC(),
		CorrelationID:    meta.CorrelationID,
		Actor:            meta.Actor,
		Source:           meta.Source,
		Payload:          mustJSON(payload),
	}

	audit := auditEventModel{
		EventID:           envelope.EventID,
		SchemaVersion:     envelope.SchemaVersion,
		AggregateType:     envelope.AggregateType,
		AggregateID:       id,
		AggregateVersion:  version,
		Action:            action,
		Actor:             meta.Actor,
		Source:            meta.Source,
		RequestID:         meta.RequestID,
		CorrelationID:     meta.CorrelationID,
		BeforeJSON:        beforeJSON,
		AfterJSON:         afterJSON,
		ChangedFieldsJSON: string(mustJSON(map[string]any{"changed": changedFields(before, after)})),
		OccurredAt:        envelope.OccurredAt,
	}
	if err := tx.Create(&audit).Error; err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	outbox := outboxEventModel{
		EventID:       envelope.EventID,
		Topic:         "events." + action,
		PayloadJSON:   string(body),
		Status:        domain.OutboxStatusPending,
		NextAttemptAt: envelope.OccurredAt,
		CreatedAt:     envelope.OccurredAt,
	}
	if err := tx.Create(&outbox).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
