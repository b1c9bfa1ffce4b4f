package ports

import (
	"context"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
)

type AttachmentStore interface {
	// Save writes the file and returns the relative path to record on the event.
	Save(ctx context.Context, a domain.Attachment) (string, error)
	Remove(ctx context.Context, relPath string) error
}
