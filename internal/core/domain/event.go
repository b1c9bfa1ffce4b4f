package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID          string
	Title       string
	Type        string
	Description string
	Date        time.Time
	Location    string
	// ImageURL is the relative attachment path, empty when the event has no image.
	ImageURL  string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Event) OwnedBy(caller string) bool {
	return caller != "" && e.CreatedBy == caller
}

// EventFields carries the raw form values of a create or update request. An
// empty value means the field was not provided.
type EventFields struct {
	Title       string
	Type        string
	Description string
	Date        string
	Location    string
}

func (f EventFields) Map() map[string]any {
	m := make(map[string]any, 5)
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("title", f.Title)
	put("type", f.Type)
	put("description", f.Description)
	put("date", f.Date)
	put("location", f.Location)
	return m
}

type EventFilter struct {
	Search string
}

func (f EventFilter) Normalize() EventFilter {
	f.Search = strings.TrimSpace(f.Search)
	return f
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseEventDate accepts RFC 3339 timestamps and plain calendar dates. Values
// without a zone are read as UTC.
func ParseEventDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, NewValidationError("date must be an RFC 3339 timestamp or YYYY-MM-DD")
}

func ValidEventID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
