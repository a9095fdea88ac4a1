package transport

import (
	"time"

	"github.com/google/uuid"
)

// ListConversationsRequest filters the conversation list.
type ListConversationsRequest struct {
	Status   *string `form:"status" validate:"omitempty,oneof=open archived"`
	Page     int     `form:"page" validate:"omitempty,min=1"`
	PageSize int     `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// SendMessageRequest contains an outbound message authored through the API.
type SendMessageRequest struct {
	Body          string  `json:"body" validate:"required_without=AttachmentKey,max=4096"`
	AttachmentKey *string `json:"attachmentKey,omitempty" validate:"omitempty,max=512"`
}

// UpsertIntentRequest carries an externally evaluated intent classification.
// The labels are opaque to this system.
type UpsertIntentRequest struct {
	Label       string    `json:"label" validate:"required,min=1,max=100"`
	Confidence  float64   `json:"confidence" validate:"min=0,max=1"`
	EvaluatedAt time.Time `json:"evaluatedAt" validate:"required"`
}

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID            uuid.UUID       `json:"id"`
	Channel       string          `json:"channel"`
	CustomerRef   string          `json:"customerRef"`
	CustomerName  string          `json:"customerName"`
	Status        string          `json:"status"`
	Intent        *IntentResponse `json:"intent,omitempty"`
	UnreadCount   int             `json:"unreadCount"`
	LeadCount     int             `json:"leadCount"`
	OrderCount    int             `json:"orderCount"`
	LastMessageAt *string         `json:"lastMessageAt,omitempty"`
	ArchivedAt    *string         `json:"archivedAt,omitempty"`
	CreatedAt     string          `json:"createdAt"`
	UpdatedAt     string          `json:"updatedAt"`
}

// IntentResponse is the last evaluated intent of a conversation.
type IntentResponse struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	EvaluatedAt string  `json:"evaluatedAt"`
}

// ConversationListResponse wraps a paginated list of conversations.
type ConversationListResponse struct {
	Items    []ConversationResponse `json:"items"`
	Total    int                    `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"pageSize"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID               uuid.UUID  `json:"id"`
	ConversationID   uuid.UUID  `json:"conversationId"`
	Direction        string     `json:"direction"`
	SenderType       string     `json:"senderType"`
	ChannelMessageID *string    `json:"channelMessageId,omitempty"`
	AuthorUserID     *uuid.UUID `json:"authorUserId,omitempty"`
	Body             string     `json:"body"`
	AttachmentKey    *string    `json:"attachmentKey,omitempty"`
	AttachmentURL    *string    `json:"attachmentUrl,omitempty"`
	Read             bool       `json:"read"`
	SentAt           string     `json:"sentAt"`
}

// MessageListResponse wraps a list of messages.
type MessageListResponse struct {
	Items []MessageResponse `json:"items"`
	Total int               `json:"total"`
}

// AttachmentUploadResponse carries the storage key of an uploaded attachment.
type AttachmentUploadResponse struct {
	FileKey     string `json:"fileKey"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}
