package ports

import (
	"context"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
)

type APIKeyRepository interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error)
	Upsert(ctx context.Context, key domain.APIKey) error
}

type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	// Upsert is keyed on email and keeps the existing id.
	Upsert(ctx context.Context, user domain.User) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	FindByID(ctx context.Context, id string) (domain.User, error)
}
