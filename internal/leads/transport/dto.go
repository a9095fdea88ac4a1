package transport

import (
	"github.com/google/uuid"
)

// CreateLeadRequest opens a lead on a conversation.
type CreateLeadRequest struct {
	ConversationID uuid.UUID `json:"conversationId" validate:"required"`
	Source         string    `json:"source" validate:"omitempty,oneof=AI MANUAL"`
	Note           string    `json:"note" validate:"omitempty,max=2048"`
}

// CloseLeadRequest closes a lead with an explicit terminal status.
type CloseLeadRequest struct {
	Status string `json:"status" validate:"required,oneof=LOST CLOSED"`
	Note   string `json:"note" validate:"omitempty,max=2048"`
}

// ListLeadsRequest filters the lead list.
type ListLeadsRequest struct {
	ConversationID *uuid.UUID `form:"conversationId"`
	Status         *string    `form:"status" validate:"omitempty,oneof=NEW CONVERTED LOST CLOSED"`
	Page           int        `form:"page" validate:"omitempty,min=1"`
	PageSize       int        `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// LeadResponse represents a lead in API responses.
type LeadResponse struct {
	ID               uuid.UUID  `json:"id"`
	ConversationID   uuid.UUID  `json:"conversationId"`
	Status           string     `json:"status"`
	Source           string     `json:"source"`
	Note             string     `json:"note,omitempty"`
	SupersededBy     *uuid.UUID `json:"supersededBy,omitempty"`
	ConvertedOrderID *uuid.UUID `json:"convertedOrderId,omitempty"`
	ClosedAt         *string    `json:"closedAt,omitempty"`
	CreatedAt        string     `json:"createdAt"`
	UpdatedAt        string     `json:"updatedAt"`
}

// CreateLeadResponse reports the new lead and the superseded one, if any.
type CreateLeadResponse struct {
	Lead       LeadResponse  `json:"lead"`
	Superseded *LeadResponse `json:"superseded,omitempty"`
}

// LeadListResponse wraps a paginated list of leads.
type LeadListResponse struct {
	Items    []LeadResponse `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}
