package transport

import (
	"github.com/google/uuid"
)

// OrderItemRequest is one order line as submitted through the API.
type OrderItemRequest struct {
	Description    string `json:"description" validate:"required,max=512"`
	Quantity       int    `json:"quantity" validate:"required,min=1"`
	UnitPriceCents int64  `json:"unitPriceCents" validate:"min=0"`
}

// CreateOrderRequest creates an order, optionally converting a lead. The
// idempotency key lets channel integrations retry safely. An explicit
// TotalCents overrides the total computed from the items.
type CreateOrderRequest struct {
	ConversationID  *uuid.UUID         `json:"conversationId,omitempty"`
	LeadID          *uuid.UUID         `json:"leadId,omitempty"`
	IdempotencyKey  *string            `json:"idempotencyKey,omitempty" validate:"omitempty,min=8,max=128"`
	ExternalRef     string             `json:"externalRef" validate:"omitempty,max=128"`
	PaymentMethod   string             `json:"paymentMethod" validate:"omitempty,max=64"`
	CustomerName    string             `json:"customerName" validate:"omitempty,max=256"`
	CustomerRef     string             `json:"customerRef" validate:"omitempty,max=256"`
	ShippingAddress string             `json:"shippingAddress" validate:"omitempty,max=1024"`
	Items           []OrderItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
	TotalCents      *int64             `json:"totalCents,omitempty" validate:"omitempty,min=0"`
	Currency        string             `json:"currency" validate:"omitempty,len=3,uppercase"`
}

// TransitionFulfillmentRequest moves the fulfillment track one step.
type TransitionFulfillmentRequest struct {
	Status string `json:"status" validate:"required,oneof=CONFIRMED SHIPPED DELIVERED CANCELLED"`
}

// TransitionPaymentRequest sets the payment track.
type TransitionPaymentRequest struct {
	Status string `json:"status" validate:"required,oneof=UNPAID PAID REFUNDED"`
}

// UpdateItemsRequest replaces all order lines.
type UpdateItemsRequest struct {
	Items []OrderItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

// UpdateShippingRequest changes the shipping address.
type UpdateShippingRequest struct {
	ShippingAddress string `json:"shippingAddress" validate:"required,max=1024"`
}

// AssignOrderRequest assigns an order to a user. A nil assignee unassigns.
type AssignOrderRequest struct {
	AssigneeID *uuid.UUID `json:"assigneeId,omitempty"`
}

// ListOrdersRequest filters the order list.
type ListOrdersRequest struct {
	ConversationID    *uuid.UUID `form:"conversationId"`
	FulfillmentStatus *string    `form:"fulfillmentStatus" validate:"omitempty,oneof=NEW CONFIRMED SHIPPED DELIVERED CANCELLED"`
	PaymentStatus     *string    `form:"paymentStatus" validate:"omitempty,oneof=UNPAID PAID REFUNDED"`
	Page              int        `form:"page" validate:"omitempty,min=1"`
	PageSize          int        `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// OrderItemResponse is one order line in API responses.
type OrderItemResponse struct {
	ID             uuid.UUID `json:"id"`
	Description    string    `json:"description"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID                uuid.UUID           `json:"id"`
	ConversationID    *uuid.UUID          `json:"conversationId,omitempty"`
	LeadID            *uuid.UUID          `json:"leadId,omitempty"`
	ExternalRef       string              `json:"externalRef,omitempty"`
	PaymentMethod     string              `json:"paymentMethod,omitempty"`
	CustomerName      string              `json:"customerName,omitempty"`
	CustomerRef       string              `json:"customerRef,omitempty"`
	ShippingAddress   string              `json:"shippingAddress,omitempty"`
	FulfillmentStatus string              `json:"fulfillmentStatus"`
	PaymentStatus     string              `json:"paymentStatus"`
	TotalCents        int64               `json:"totalCents"`
	Currency          string              `json:"currency"`
	AssignedUserID    *uuid.UUID          `json:"assignedUserId,omitempty"`
	Items             []OrderItemResponse `json:"items,omitempty"`
	PaidAt            *string             `json:"paidAt,omitempty"`
	CreatedAt         string              `json:"createdAt"`
	UpdatedAt         string              `json:"updatedAt"`
}

// CreateOrderResponse reports the created order. Replayed is true when the
// idempotency key matched an earlier creation.
type CreateOrderResponse struct {
	Order    OrderResponse `json:"order"`
	Replayed bool          `json:"replayed"`
}

// OrderListResponse wraps a paginated list of orders.
type OrderListResponse struct {
	Items    []OrderResponse `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

// TimelineEventResponse is one order history entry.
type TimelineEventResponse struct {
	ID          uuid.UUID  `json:"id"`
	EventType   string     `json:"eventType"`
	Track       string     `json:"track,omitempty"`
	OldStatus   string     `json:"oldStatus,omitempty"`
	NewStatus   string     `json:"newStatus,omitempty"`
	ActorUserID *uuid.UUID `json:"actorUserId,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   string     `json:"createdAt"`
}

// TimelineResponse wraps an order's history.
type TimelineResponse struct {
	Items []TimelineEventResponse `json:"items"`
}
