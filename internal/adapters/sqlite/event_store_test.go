package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/eventsapi/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
	"github.com/atvirokodosprendimai/eventsapi/migrations"
)

func openTestDB(t *testing.T) (*gormsqlite.DB, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := gormsqlite.Open(filepath.Join(t.TempDir(), "events.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	wdb, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("writer sql db: %v", err)
	}
	if err := migrations.Up(ctx, wdb, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db, wdb
}

func testMeta(actor string) domain.MutationMetadata {
	return domain.MutationMetadata{
		Actor:     actor,
		Source:    "test",
		RequestID: "req-1",
	}
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	date, err := domain.ParseEventDate(value)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return date
}

func TestMigrationsAreIdempotent(t *testing.T) {
	_, wdb := openTestDB(t)
	if err := migrations.Up(context.Background(), wdb, nil); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestEventStoreCreateGetAndAudit(t *testing.T) {
	ctx := context.Background()
	db, wdb := openTestDB(t)
	store := NewEventStore(db)

	created, err := store.CreateWithEvents(ctx, domain.Event{
		Title:       "Tech Fest",
		Type:        "conference",
		Description: "Annual",
		Date:        mustDate(t, "2025-06-01"),
		ImageURL:    "/uploads/1-000000001.png",
		CreatedBy:   "u1",
	}, testMeta("u1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || !domain.ValidEventID(created.ID) {
		t.Fatalf("expected generated uuid, got %q", created.ID)
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("expected matching timestamps, got %v / %v", created.CreatedAt, created.UpdatedAt)
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Tech Fest" || got.CreatedBy != "u1" || got.ImageURL != "/uploads/1-000000001.png" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if !got.Date.Equal(mustDate(t, "2025-06-01")) {
		t.Fatalf("unexpected date: %v", got.Date)
	}

	assertTableCount(t, ctx, wdb, "audit_events", 1)
	assertTableCount(t, ctx, wdb, "outbox_events", 1)

	var topic, payload string
	if err := wdb.QueryRowContext(ctx, "SELECT topic, payload_json FROM outbox_events").Scan(&topic, &payload); err != nil {
		t.Fatalf("read outbox: %v", err)
	}
	if topic != "events.event.created" {
		t.Fatalf("unexpected topic: %s", topic)
	}
	var envelope domain.EventEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.AggregateID != created.ID || envelope.AggregateVersion != 1 || envelope.Actor != "u1" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestEventStoreGetMissing(t *testing.T) {
	db, _ := openTestDB(t)
	store := NewEventStore(db)

	_, err := store.Get(context.Background(), "0b0f2f7e-9f1c-4d7b-a1d3-2d3c4a5b6c7d")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEventStoreListOrdersByDateAndSearches(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewEventStore(db)

	seed := []domain.Event{
		{Title: "Jazz Night", Type: "concert", Description: "d", Date: mustDate(t, "2025-08-01")},
		{Title: "Tech Fest", Type: "conference", Description: "d", Date: mustDate(t, "2025-06-01")},
		{Title: "Go Meetup", Type: "TECH talk", Description: "d", Date: mustDate(t, "2025-07-01")},
	}
	for _, ev := range seed {
		ev.CreatedBy = "u1"
		if _, err := store.CreateWithEvents(ctx, ev, testMeta("u1")); err != nil {
			t.Fatalf("seed %s: %v", ev.Title, err)
		}
	}

	all, err := store.List(ctx, domain.EventFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if titles(all) != "Tech Fest,Go Meetup,Jazz Night" {
		t.Fatalf("unexpected order: %s", titles(all))
	}

	matched, err := store.List(ctx, domain.EventFilter{Search: "tech"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if titles(matched) != "Tech Fest,Go Meetup" {
		t.Fatalf("unexpected search result: %s", titles(matched))
	}

	none, err := store.List(ctx, domain.EventFilter{Search: "opera"})
	if err != nil {
		t.Fatalf("search none: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no matches, got %d", len(none))
	}

	if _, err := store.CreateWithEvents(ctx, domain.Event{
		Title: "CAFÉ Meetup", Type: "Social", Description: "d",
		Date: mustDate(t, "2025-09-01"), CreatedBy: "u1",
	}, testMeta("u1")); err != nil {
		t.Fatalf("seed non-ascii: %v", err)
	}
	folded, err := store.List(ctx, domain.EventFilter{Search: "café"})
	if err != nil {
		t.Fatalf("search non-ascii: %v", err)
	}
	if titles(folded) != "CAFÉ Meetup" {
		t.Fatalf("unexpected non-ascii search result: %s", titles(folded))
	}
}

func TestEventStoreUpdateKeepsOwnerAndRecordsChanges(t *testing.T) {
	ctx := context.Background()
	db, wdb := openTestDB(t)
	store := NewEventStore(db)
	audit := NewAuditTrailRepository(db)

	created, err := store.CreateWithEvents(ctx, domain.Event{
		Title: "Tech Fest", Type: "conference", Description: "Annual",
		Date: mustDate(t, "2025-06-01"), CreatedBy: "u1",
	}, testMeta("u1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	next := created
	next.Title = "Tech Fest 2025"
	next.CreatedBy = "someone-else"
	updated, err := store.UpdateWithEvents(ctx, next, testMeta("u1"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Tech Fest 2025" || updated.CreatedBy != "u1" {
		t.Fatalf("unexpected updated event: %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", created.CreatedAt, updated.CreatedAt)
	}

	history, err := audit.List(ctx, domain.AuditFilter{AggregateType: domain.AggregateEvents, AggregateID: created.ID})
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(history))
	}
	latest := history[0]
	if latest.Action != domain.ActionEventUpdated || latest.AggregateVersion != 2 {
		t.Fatalf("unexpected latest audit row: %+v", latest)
	}
	if !strings.Contains(string(latest.ChangedJSON), `"title"`) {
		t.Fatalf("expected title in changed fields, got %s", latest.ChangedJSON)
	}
	assertTableCount(t, ctx, wdb, "outbox_events", 2)
}

func TestEventStoreUpdateMissing(t *testing.T) {
	db, _ := openTestDB(t)
	store := NewEventStore(db)

	_, err := store.UpdateWithEvents(context.Background(), domain.Event{
		ID: "0b0f2f7e-9f1c-4d7b-a1d3-2d3c4a5b6c7d", Title: "x", Type: "y", Description: "z",
	}, testMeta("u1"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEventStoreDeleteKeepsHistory(t *testing.T) {
	ctx := context.Background()
	db, wdb := openTestDB(t)
	store := NewEventStore(db)

	created, err := store.CreateWithEvents(ctx, domain.Event{
		Title: "Tech Fest", Type: "conference", Description: "Annual",
		Date: mustDate(t, "2025-06-01"), CreatedBy: "u1",
	}, testMeta("u1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	deleted, err := store.DeleteWithEvents(ctx, created.ID, testMeta("u1"))
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	if _, err := store.Get(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	again, err := store.DeleteWithEvents(ctx, created.ID, testMeta("u1"))
	if err != nil || again {
		t.Fatalf("second delete: deleted=%v err=%v", again, err)
	}

	assertTableCount(t, ctx, wdb, "events", 0)
	assertTableCount(t, ctx, wdb, "audit_events", 2)
	assertTableCount(t, ctx, wdb, "outbox_events", 2)
}

func TestEventStoreOutboxFailureRollsBackCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	db, wdb := openTestDB(t)
	store := NewEventStore(db)

	seeded, err := store.CreateWithEvents(ctx, domain.Event{
		Title: "Seed", Type: "meetup", Description: "d",
		Date: mustDate(t, "2025-06-01"), CreatedBy: "u1",
	}, testMeta("u1"))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := wdb.ExecContext(ctx, `
		CREATE TRIGGER trg_fail_outbox_insert
		BEFORE INSERT ON outbox_events
		BEGIN
			SELECT RAISE(ABORT, 'forced outbox failure');
		END;
	`); err != nil {
		t.Fatalf("create failure trigger: %v", err)
	}

	t.Run("create rollback", func(t *testing.T) {
		_, err := store.CreateWithEvents(ctx, domain.Event{
			Title: "Lost", Type: "meetup", Description: "d",
			Date: mustDate(t, "2025-06-02"), CreatedBy: "u1",
		}, testMeta("u1"))
		if err == nil || !strings.Contains(err.Error(), "forced outbox failure") {
			t.Fatalf("expected forced outbox failure, got: %v", err)
		}
		assertTableCount(t, ctx, wdb, "events", 1)
		assertTableCount(t, ctx, wdb, "audit_events", 1)
		assertTableCount(t, ctx, wdb, "outbox_events", 1)
	})

	t.Run("delete rollback", func(t *testing.T) {
		deleted, err := store.DeleteWithEvents(ctx, seeded.ID, testMeta("u1"))
		if err == nil || !strings.Contains(err.Error(), "forced outbox failure") {
			t.Fatalf("expected forced outbox failure, got: %v", err)
		}
		if deleted {
			t.Fatalf("expected deleted=false on rollback")
		}
		assertTableCount(t, ctx, wdb, "events", 1)
		assertTableCount(t, ctx, wdb, "audit_events", 1)
	})
}

func TestOutboxRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewEventStore(db)
	outbox := NewOutboxRepository(db)

	for _, title := range []string{"A", "B"} {
		if _, err := store.CreateWithEvents(ctx, domain.Event{
			Title: title, Type: "t", Description: "d",
			Date: mustDate(t, "2025-06-01"), CreatedBy: "u1",
		}, testMeta("u1")); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}

	pending, err := outbox.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending rows, got %d", len(pending))
	}

	if err := outbox.MarkDispatched(ctx, pending[0].ID); err != nil {
		t.Fatalf("mark dispatched: %v", err)
	}
	if err := outbox.MarkDead(ctx, pending[1].ID, 5, "boom"); err != nil {
		t.Fatalf("mark dead: %v", err)
	}

	rest, err := outbox.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("fetch after: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no pending rows, got %d", len(rest))
	}
}

func TestOutboxRepositoryMarkFailedDefersRetry(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewEventStore(db)
	outbox := NewOutboxRepository(db)

	if _, err := store.CreateWithEvents(ctx, domain.Event{
		Title: "A", Type: "t", Description: "d",
		Date: mustDate(t, "2025-06-01"), CreatedBy: "u1",
	}, testMeta("u1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	pending, err := outbox.FetchPending(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("fetch: rows=%d err=%v", len(pending), err)
	}

	later := time.Now().UTC().Add(time.Hour).Format(time.RFC3339Nano)
	if err := outbox.MarkFailed(ctx, pending[0].ID, 1, later, "timeout"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	rest, err := outbox.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("fetch after: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected retry to be deferred, got %d rows", len(rest))
	}

	if err := outbox.MarkFailed(ctx, pending[0].ID, 2, "not-a-time", "x"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func titles(events []domain.Event) string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Title)
	}
	return strings.Join(out, ",")
}

func assertTableCount(t *testing.T, ctx context.Context, wdb *sql.DB, table string, want int) {
	t.Helper()
	var got int
	row := wdb.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table)
	if err := row.Scan(&got); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	if got != want {
		t.Fatalf("unexpected %s count: got %d want %d", table, got, want)
	}
}
