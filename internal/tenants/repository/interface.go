package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Business represents a tenant: a business connected to a messaging channel.
type Business struct {
	ID               uuid.UUID `db:"id"`
	Name             string    `db:"name"`
	Channel          string    `db:"channel"`
	ChannelIdentity  string    `db:"channel_identity"`
	ArchiveAfterDays int       `db:"archive_after_days"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// CreateParams contains parameters for creating a business.
type CreateParams struct {
	Name             string
	Channel          string
	ChannelIdentity  string
	ArchiveAfterDays int
}

// UpdateParams contains parameters for updating a business.
type UpdateParams struct {
	ID               uuid.UUID
	Name             *string
	ArchiveAfterDays *int
}

// BusinessReader provides read operations for businesses.
type BusinessReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (Business, error)
	List(ctx context.Context) ([]Business, error)
	// ResolveByChannelIdentity finds the business owning a channel identity.
	// Exactly one business can own an identity per channel.
	ResolveByChannelIdentity(ctx context.Context, channel, identity string) (Business, error)
}

// BusinessWriter provides write operations for businesses.
type BusinessWriter interface {
	Create(ctx context.Context, params CreateParams) (Business, error)
	Update(ctx context.Context, params UpdateParams) (Business, error)
	SetChannelIdentity(ctx context.Context, id uuid.UUID, channel, identity string) (Business, error)
}

// Repository combines all business repository operations.
type Repository interface {
	BusinessReader
	BusinessWriter
}
