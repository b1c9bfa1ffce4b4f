package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
)

func TestUserRepositoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	users := NewUserRepository(db)

	created, err := users.Create(ctx, domain.User{Name: "Ada", Email: "ada@example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}

	byEmail, err := users.FindByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if byEmail.ID != created.ID || byEmail.PasswordHash != "h" {
		t.Fatalf("unexpected user: %+v", byEmail)
	}

	byID, err := users.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.Email != "ada@example.com" {
		t.Fatalf("unexpected user: %+v", byID)
	}

	if _, err := users.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserRepositoryCreateDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	users := NewUserRepository(db)

	if _, err := users.Create(ctx, domain.User{Name: "Ada", Email: "ada@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := users.Create(ctx, domain.User{Name: "Other", Email: "ada@example.com"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUserRepositoryUpsertKeepsID(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	users := NewUserRepository(db)

	first, err := users.Upsert(ctx, domain.User{Name: "ops", Email: "ops@bootstrap.local"})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := users.Upsert(ctx, domain.User{Name: "ops-renamed", Email: "ops@bootstrap.local"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected stable id, got %s then %s", first.ID, second.ID)
	}
	if second.Name != "ops-renamed" {
		t.Fatalf("expected renamed user, got %q", second.Name)
	}
}

func TestAPIKeyRepositoryUpsertAndFind(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	users := NewUserRepository(db)
	keys := NewAPIKeyRepository(db)

	user, err := users.Create(ctx, domain.User{Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	key := domain.APIKey{TokenHash: "abc", UserID: user.ID, Name: "login", Active: true, CreatedAt: time.Now().UTC()}
	if err := keys.Upsert(ctx, key); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	key.Active = false
	if err := keys.Upsert(ctx, key); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := keys.FindByTokenHash(ctx, "abc")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.UserID != user.ID || got.Active {
		t.Fatalf("unexpected key: %+v", got)
	}

	if _, err := keys.FindByTokenHash(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
