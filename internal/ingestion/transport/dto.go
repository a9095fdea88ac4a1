package transport

import (
	"time"

	"github.com/google/uuid"
)

// Ingest outcomes.
const (
	OutcomeApplied             = "applied"
	OutcomeDuplicate           = "duplicate"
	OutcomeUnresolvedRecipient = "unresolved_recipient"
)

// RawEvent is one channel-delivered message as posted by an integration.
type RawEvent struct {
	Channel               string    `json:"channel" validate:"required,oneof=whatsapp sms telegram"`
	ChannelMessageID      string    `json:"channelMessageId" validate:"required,max=256"`
	SenderRef             string    `json:"senderRef" validate:"required,max=256"`
	RecipientRef          string    `json:"recipientRef" validate:"required,max=256"`
	SenderName            string    `json:"senderName" validate:"omitempty,max=256"`
	Body                  string    `json:"body" validate:"required_without=AttachmentKey,max=8192"`
	AttachmentKey         *string   `json:"attachmentKey,omitempty" validate:"omitempty,max=512"`
	AttachmentContentType *string   `json:"attachmentContentType,omitempty" validate:"omitempty,max=128"`
	SentAt                time.Time `json:"sentAt" validate:"required"`
}

// IngestResponse reports what applying a raw event did.
type IngestResponse struct {
	Outcome        string     `json:"outcome"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	MessageID      *uuid.UUID `json:"messageId,omitempty"`
}

// CreateKeyRequest creates an ingest API key.
type CreateKeyRequest struct {
	Label string `json:"label" validate:"omitempty,max=128"`
}

// KeyResponse represents an ingest API key. Key carries the plaintext and is
// only set on creation.
type KeyResponse struct {
	ID        uuid.UUID `json:"id"`
	KeyPrefix string    `json:"keyPrefix"`
	Label     string    `json:"label,omitempty"`
	Key       string    `json:"key,omitempty"`
	Revoked   bool      `json:"revoked"`
	CreatedAt string    `json:"createdAt"`
}

// KeyListResponse wraps a tenant's ingest API keys.
type KeyListResponse struct {
	Items []KeyResponse `json:"items"`
}
