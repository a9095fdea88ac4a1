// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"inbox_crm_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Ingestion Domain Events
// =============================================================================

// MessageIngested is published when an inbound channel event has been applied
// and produced a new message. Duplicates never publish this event.
type MessageIngested struct {
	BaseEvent
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	TenantID       uuid.UUID `json:"tenantId"`
	Channel        string    `json:"channel"`
	Direction      string    `json:"direction"`
	CustomerRef    string    `json:"customerRef"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sentAt"`
}

func (e MessageIngested) EventName() string { return "ingestion.message.ingested" }

// =============================================================================
// Conversations Domain Events
// =============================================================================

// ConversationCreated is published when a conversation is first created for a
// (tenant, channel, customer) triple.
type ConversationCreated struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	TenantID       uuid.UUID `json:"tenantId"`
	Channel        string    `json:"channel"`
	CustomerRef    string    `json:"customerRef"`
}

func (e ConversationCreated) EventName() string { return "conversations.created" }

// ConversationArchived is published when a conversation moves to archived,
// either manually or by the idle-retention sweep.
type ConversationArchived struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	TenantID       uuid.UUID `json:"tenantId"`
	Reason         string    `json:"reason"` // "manual" or "idle"
}

func (e ConversationArchived) EventName() string { return "conversations.archived" }

// ConversationIntentChanged is published when the detected intent on a
// conversation changes.
type ConversationIntentChanged struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	TenantID       uuid.UUID `json:"tenantId"`
	OldIntent      string    `json:"oldIntent,omitempty"`
	NewIntent      string    `json:"newIntent"`
	Confidence     float64   `json:"confidence"`
}

func (e ConversationIntentChanged) EventName() string { return "conversations.intent.changed" }

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published when a new lead is opened on a conversation.
type LeadCreated struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	ConversationID uuid.UUID `json:"conversationId"`
	TenantID       uuid.UUID `json:"tenantId"`
	Source         string    `json:"source,omitempty"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadSuperseded is published when an open lead is replaced by a newer one on
// the same conversation.
type LeadSuperseded struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	SupersededByID uuid.UUID `json:"supersededById"`
	ConversationID uuid.UUID `json:"conversationId"`
	TenantID       uuid.UUID `json:"tenantId"`
}

func (e LeadSuperseded) EventName() string { return "leads.lead.superseded" }

// LeadStatusChanged is published on every lead status transition.
type LeadStatusChanged struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	ConversationID uuid.UUID `json:"conversationId"`
	TenantID       uuid.UUID `json:"tenantId"`
	OldStatus      string    `json:"oldStatus"`
	NewStatus      string    `json:"newStatus"`
}

func (e LeadStatusChanged) EventName() string { return "leads.lead.status_changed" }

// LeadConverted is published when a lead converts into an order.
type LeadConverted struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	OrderID        uuid.UUID `json:"orderId"`
	ConversationID uuid.UUID `json:"conversationId"`
	TenantID       uuid.UUID `json:"tenantId"`
}

func (e LeadConverted) EventName() string { return "leads.lead.converted" }

// =============================================================================
// Orders Domain Events
// =============================================================================

// OrderCreated is published when an order is created from a lead.
type OrderCreated struct {
	BaseEvent
	OrderID        uuid.UUID `json:"orderId"`
	LeadID         uuid.UUID `json:"leadId"`
	ConversationID uuid.UUID `json:"conversationId"`
	TenantID       uuid.UUID `json:"tenantId"`
	TotalCents     int64     `json:"totalCents"`
	Currency       string    `json:"currency"`
}

func (e OrderCreated) EventName() string { return "orders.order.created" }

// OrderFulfillmentChanged is published on every fulfillment track transition.
type OrderFulfillmentChanged struct {
	BaseEvent
	OrderID   uuid.UUID `json:"orderId"`
	TenantID  uuid.UUID `json:"tenantId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
}

func (e OrderFulfillmentChanged) EventName() string { return "orders.fulfillment.changed" }

// OrderPaymentChanged is published on every payment track transition.
type OrderPaymentChanged struct {
	BaseEvent
	OrderID   uuid.UUID `json:"orderId"`
	TenantID  uuid.UUID `json:"tenantId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
}

func (e OrderPaymentChanged) EventName() string { return "orders.payment.changed" }

// OrderDeliveredUnpaid is published when an order reaches DELIVERED while its
// payment track is still UNPAID. Downstream handlers flag it for follow-up.
type OrderDeliveredUnpaid struct {
	BaseEvent
	OrderID  uuid.UUID `json:"orderId"`
	TenantID uuid.UUID `json:"tenantId"`
}

func (e OrderDeliveredUnpaid) EventName() string { return "orders.delivered_unpaid" }

// =============================================================================
// Tenants Domain Events
// =============================================================================

// ChannelConnected is published when a tenant binds a channel identity.
type ChannelConnected struct {
	BaseEvent
	TenantID        uuid.UUID `json:"tenantId"`
	Channel         string    `json:"channel"`
	ChannelIdentity string    `json:"channelIdentity"`
}

func (e ChannelConnected) EventName() string { return "tenants.channel.connected" }
