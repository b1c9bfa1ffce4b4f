package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseEventDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2024-03-01", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2024-03-01T18:30", want: time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC)},
		{in: "2024-03-01T18:30:00+02:00", want: time.Date(2024, 3, 1, 16, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseEventDate(tt.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("parse %q: got %v want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseEventDate("01/03/2024"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEventFieldsMapSkipsEmpty(t *testing.T) {
	m := EventFields{Title: "a", Location: ""}.Map()
	if len(m) != 1 || m["title"] != "a" {
		t.Fatalf("unexpected map: %v", m)
	}
}

func TestEventOwnedBy(t *testing.T) {
	ev := Event{CreatedBy: "u1"}
	if !ev.OwnedBy("u1") || ev.OwnedBy("u2") || ev.OwnedBy("") {
		t.Fatal("unexpected ownership result")
	}
	if (Event{}).OwnedBy("") {
		t.Fatal("empty caller must never own an event")
	}
}

func TestAttachmentValidate(t *testing.T) {
	ok := Attachment{Filename: "a.JPG", ContentType: "image/jpeg", Size: 10}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid attachment, got %v", err)
	}
	bad := []Attachment{
		{Filename: "a.exe", ContentType: "image/png", Size: 10},
		{Filename: "a.png", ContentType: "text/html", Size: 10},
		{Filename: "a.png", ContentType: "image/png", Size: MaxAttachmentSize + 1},
	}
	for _, a := range bad {
		if err := a.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", a, err)
		}
	}
}
