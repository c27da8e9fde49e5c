package template

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Store persists templates and their immutable version history. The
// management surface is the only writer; the render path reads only.
type Store interface {
	// Create inserts a new template at version 1 and records the first
	// snapshot. Returns ErrConflict when the (slug, channel) pair exists.
	Create(ctx context.Context, t *Template) error

	// Update bumps the version, persists the change and records a
	// snapshot of the new state.
	Update(ctx context.Context, t *Template) error

	// Archive marks the template archived; it stops resolving by slug.
	Archive(ctx context.Context, id uuid.UUID) error

	// GetBySlug returns the non-archived template for (slug, channel),
	// or ErrNotFound.
	GetBySlug(ctx context.Context, slug string, channel notification.Channel) (*Template, error)

	// GetByID returns the template regardless of status, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)

	// GetVersion returns an historical snapshot, or ErrVersionNotFound.
	GetVersion(ctx context.Context, templateID uuid.UUID, number int) (*Version, error)

	// List returns all templates for a channel, any status.
	List(ctx context.Context, channel notification.Channel) ([]*Template, error)
}
