package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inbox_crm_backend/internal/leads/domain"
)

// Lead represents a sales opportunity tied to one conversation.
type Lead struct {
	ID               uuid.UUID     `db:"id"`
	TenantID         uuid.UUID     `db:"tenant_id"`
	ConversationID   uuid.UUID     `db:"conversation_id"`
	Status           domain.Status `db:"status"`
	Source           string        `db:"source"`
	Note             string        `db:"note"`
	SupersededBy     *uuid.UUID    `db:"superseded_by"`
	ConvertedOrderID *uuid.UUID    `db:"converted_order_id"`
	ClosedAt         *time.Time    `db:"closed_at"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

// CreateParams contains parameters for opening a new lead.
type CreateParams struct {
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	Source         string
	Note           string
	// NoSupersede leaves an existing open lead untouched; the insert then
	// fails with a conflict instead of closing it.
	NoSupersede bool
}

// CreateResult reports the new lead and, when supersession happened, the
// lead that was closed to make room for it.
type CreateResult struct {
	Lead       Lead
	Superseded *Lead
}

// ListParams filters the lead list.
type ListParams struct {
	TenantID       uuid.UUID
	ConversationID *uuid.UUID
	Status         *domain.Status
	Limit          int
	Offset         int
}

// LeadReader provides read operations for leads.
type LeadReader interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (Lead, error)
	List(ctx context.Context, params ListParams) ([]Lead, int, error)
}

// LeadWriter provides write operations for leads.
type LeadWriter interface {
	// CreateWithSupersede opens a new NEW lead, closing any currently open
	// lead on the conversation in the same transaction. A concurrent create
	// losing the race surfaces as a conflict, as does any open lead when
	// NoSupersede is set.
	CreateWithSupersede(ctx context.Context, params CreateParams) (CreateResult, error)
	// Close moves a NEW lead to LOST or CLOSED with a guarded update.
	// Conversion is not a close target; it happens inside order creation.
	Close(ctx context.Context, tenantID, id uuid.UUID, target domain.Status, note string) (Lead, error)
}

// Repository combines all lead repository operations.
type Repository interface {
	LeadReader
	LeadWriter
}
