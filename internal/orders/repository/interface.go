package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inbox_crm_backend/internal/orders/domain"
)

// Order represents a fulfillment order, optionally linked to the lead and
// conversation it originated from.
type Order struct {
	ID                uuid.UUID                `db:"id"`
	TenantID          uuid.UUID                `db:"tenant_id"`
	ConversationID    *uuid.UUID               `db:"conversation_id"`
	LeadID            *uuid.UUID               `db:"lead_id"`
	IdempotencyKey    *string                  `db:"idempotency_key"`
	ExternalRef       string                   `db:"external_ref"`
	PaymentMethod     string                   `db:"payment_method"`
	CustomerName      string                   `db:"customer_name"`
	CustomerRef       string                   `db:"customer_ref"`
	ShippingAddress   string                   `db:"shipping_address"`
	FulfillmentStatus domain.FulfillmentStatus `db:"fulfillment_status"`
	PaymentStatus     domain.PaymentStatus     `db:"payment_status"`
	TotalCents        int64                    `db:"total_cents"`
	Currency          string                   `db:"currency"`
	AssignedUserID    *uuid.UUID               `db:"assigned_user_id"`
	AnonymizedAt      *time.Time               `db:"anonymized_at"`
	PaidAt            *time.Time               `db:"paid_at"`
	CreatedAt         time.Time                `db:"created_at"`
	UpdatedAt         time.Time                `db:"updated_at"`
}

// OrderItem is one stored order line.
type OrderItem struct {
	ID             uuid.UUID `db:"id"`
	OrderID        uuid.UUID `db:"order_id"`
	Description    string    `db:"description"`
	Quantity       int       `db:"quantity"`
	UnitPriceCents int64     `db:"unit_price_cents"`
	CreatedAt      time.Time `db:"created_at"`
}

// TimelineEvent is one append-only order history entry.
type TimelineEvent struct {
	ID          uuid.UUID  `db:"id"`
	OrderID     uuid.UUID  `db:"order_id"`
	EventType   string     `db:"event_type"`
	Track       string     `db:"track"`
	OldStatus   string     `db:"old_status"`
	NewStatus   string     `db:"new_status"`
	ActorUserID *uuid.UUID `db:"actor_user_id"`
	Description string     `db:"description"`
	CreatedAt   time.Time  `db:"created_at"`
}

// Timeline event types.
const (
	EventCreated            = "created"
	EventFulfillmentChanged = "fulfillment_changed"
	EventPaymentChanged     = "payment_changed"
	EventItemsUpdated       = "items_updated"
	EventShippingUpdated    = "shipping_updated"
	EventAssigned           = "assigned"
)

// DescriptionDeliveredUnpaid marks the fulfillment entry of a delivery that
// happened while payment was still outstanding.
const DescriptionDeliveredUnpaid = "delivered while payment is still outstanding"

// Timeline tracks.
const (
	TrackFulfillment = "fulfillment"
	TrackPayment     = "payment"
)

// CreateParams contains parameters for creating an order.
type CreateParams struct {
	TenantID        uuid.UUID
	ConversationID  *uuid.UUID
	LeadID          *uuid.UUID
	IdempotencyKey  *string
	ExternalRef     string
	PaymentMethod   string
	CustomerName    string
	CustomerRef     string
	ShippingAddress string
	Items           []domain.Item
	// TotalCents, when set, overrides the total computed from Items.
	TotalCents  *int64
	Currency    string
	ActorUserID *uuid.UUID
}

// CreateResult reports the created (or replayed) order. Replayed is true when
// the idempotency key matched an existing order; nothing was written then.
type CreateResult struct {
	Order    Order
	Items    []OrderItem
	Replayed bool
}

// TransitionResult reports a status transition with the status it left.
type TransitionResult struct {
	Order     Order
	OldStatus string
	// DeliveredUnpaid is set when this transition brought the order to
	// DELIVERED while its payment is still UNPAID.
	DeliveredUnpaid bool
}

// ListParams filters the order list.
type ListParams struct {
	TenantID          uuid.UUID
	ConversationID    *uuid.UUID
	FulfillmentStatus *domain.FulfillmentStatus
	PaymentStatus     *domain.PaymentStatus
	Limit             int
	Offset            int
}

// OrderReader provides read operations for orders.
type OrderReader interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (Order, []OrderItem, error)
	List(ctx context.Context, params ListParams) ([]Order, int, error)
	ListTimeline(ctx context.Context, tenantID, orderID uuid.UUID) ([]TimelineEvent, error)
}

// OrderWriter provides write operations for orders.
type OrderWriter interface {
	// Create inserts an order with its items and initial timeline event. When
	// LeadID is set the lead is converted in the same transaction; an already
	// converted or terminal lead aborts the whole creation. A matching
	// idempotency key returns the existing order untouched.
	Create(ctx context.Context, params CreateParams) (CreateResult, error)
	// TransitionFulfillment moves the fulfillment track one step and appends
	// a timeline event, all in one transaction.
	TransitionFulfillment(ctx context.Context, tenantID, id uuid.UUID, target domain.FulfillmentStatus, actorUserID *uuid.UUID) (TransitionResult, error)
	// TransitionPayment sets the payment track and appends a timeline event.
	// PAID stamps the payment time.
	TransitionPayment(ctx context.Context, tenantID, id uuid.UUID, target domain.PaymentStatus, actorUserID *uuid.UUID) (TransitionResult, error)
	// ReplaceItems swaps the order lines and recomputes the total. Terminal
	// fulfillment states reject the edit.
	ReplaceItems(ctx context.Context, tenantID, id uuid.UUID, items []domain.Item, actorUserID *uuid.UUID) (Order, []OrderItem, error)
	// UpdateShipping changes the shipping address. Terminal fulfillment
	// states reject the edit.
	UpdateShipping(ctx context.Context, tenantID, id uuid.UUID, address string, actorUserID *uuid.UUID) (Order, error)
	// Assign sets or clears the assigned user and records it on the timeline.
	Assign(ctx context.Context, tenantID, id uuid.UUID, assigneeID *uuid.UUID, actorUserID *uuid.UUID, description string) (Order, error)
}

// Repository combines all order repository operations.
type Repository interface {
	OrderReader
	OrderWriter
}
