package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Direction of a message relative to the business.
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// Sender classification of a message author.
const (
	SenderCustomer = "CUSTOMER"
	SenderBusiness = "BUSINESS"
	SenderSystem   = "SYSTEM"
)

// Conversation status values.
const (
	StatusOpen     = "open"
	StatusArchived = "archived"
)

// Conversation represents one customer thread on one channel for one tenant.
type Conversation struct {
	ID                uuid.UUID  `db:"id"`
	TenantID          uuid.UUID  `db:"tenant_id"`
	Channel           string     `db:"channel"`
	CustomerRef       string     `db:"customer_ref"`
	CustomerName      string     `db:"customer_name"`
	Status            string     `db:"status"`
	IntentLabel       *string    `db:"intent_label"`
	IntentConfidence  *float64   `db:"intent_confidence"`
	IntentEvaluatedAt *time.Time `db:"intent_evaluated_at"`
	UnreadCount       int        `db:"unread_count"`
	LeadCount         int        `db:"lead_count"`
	OrderCount        int        `db:"order_count"`
	FirstMessageAt    *time.Time `db:"first_message_at"`
	LastMessageAt     *time.Time `db:"last_message_at"`
	ArchivedAt        *time.Time `db:"archived_at"`
	DeletedAt         *time.Time `db:"deleted_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// Message is a single message inside a conversation. Messages are immutable
// after insert except for the read flag.
type Message struct {
	ID                    uuid.UUID  `db:"id"`
	ConversationID        uuid.UUID  `db:"conversation_id"`
	TenantID              uuid.UUID  `db:"tenant_id"`
	Channel               string     `db:"channel"`
	ChannelMessageID      *string    `db:"channel_message_id"`
	Direction             string     `db:"direction"`
	SenderType            string     `db:"sender_type"`
	AuthorUserID          *uuid.UUID `db:"author_user_id"`
	Body                  string     `db:"body"`
	AttachmentKey         *string    `db:"attachment_key"`
	AttachmentContentType *string    `db:"attachment_content_type"`
	ReadAt                *time.Time `db:"read_at"`
	SentAt                time.Time  `db:"sent_at"`
	CreatedAt             time.Time  `db:"created_at"`
}

// UpsertAndAppendParams carries everything needed to land one inbound or
// channel-delivered outbound message.
type UpsertAndAppendParams struct {
	TenantID              uuid.UUID
	Channel               string
	CustomerRef           string
	CustomerName          string
	ChannelMessageID      *string
	Direction             string
	SenderType            string
	Body                  string
	AttachmentKey         *string
	AttachmentContentType *string
	SentAt                time.Time
}

// UpsertAndAppendResult reports what the atomic append did.
type UpsertAndAppendResult struct {
	Conversation        Conversation
	Message             Message
	ConversationCreated bool
	// Duplicate is true when the channel message ID was already recorded.
	// The whole unit is rolled back in that case.
	Duplicate bool
}

// AppendOutboundParams carries an API-authored outbound message.
type AppendOutboundParams struct {
	TenantID              uuid.UUID
	ConversationID        uuid.UUID
	AuthorUserID          uuid.UUID
	Body                  string
	AttachmentKey         *string
	AttachmentContentType *string
}

// ListParams filters the conversation list.
type ListParams struct {
	TenantID uuid.UUID
	Status   *string
	Limit    int
	Offset   int
}

// IntentParams carries an externally evaluated intent for a conversation.
type IntentParams struct {
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	Label          string
	Confidence     float64
	EvaluatedAt    time.Time
}

// ConversationReader provides read operations.
type ConversationReader interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (Conversation, error)
	List(ctx context.Context, params ListParams) ([]Conversation, int, error)
	ListMessages(ctx context.Context, tenantID, conversationID uuid.UUID, limit, offset int) ([]Message, error)
}

// ConversationWriter provides write operations.
type ConversationWriter interface {
	UpsertAndAppend(ctx context.Context, params UpsertAndAppendParams) (UpsertAndAppendResult, error)
	AppendOutbound(ctx context.Context, params AppendOutboundParams) (Message, error)
	MarkRead(ctx context.Context, tenantID, conversationID uuid.UUID) error
	Archive(ctx context.Context, tenantID, conversationID uuid.UUID) error
	SoftDelete(ctx context.Context, tenantID, conversationID uuid.UUID) error
	// UpsertIntent stores the evaluated intent and returns the previous label.
	UpsertIntent(ctx context.Context, params IntentParams) (previousLabel *string, err error)
}

// RetentionWriter provides retention operations used by the scheduler.
type RetentionWriter interface {
	// ArchiveIdle archives open conversations whose last activity is older
	// than each tenant's configured archive window. Returns rows archived.
	ArchiveIdle(ctx context.Context) (int64, error)
	// ListPurgeable returns soft-deleted conversations past the grace period.
	ListPurgeable(ctx context.Context, grace time.Duration) ([]Conversation, error)
	// Purge removes a conversation and its messages and leads, anonymizing
	// linked orders, all in one transaction.
	Purge(ctx context.Context, tenantID, conversationID uuid.UUID) error
}

// Repository combines all conversation repository operations.
type Repository interface {
	ConversationReader
	ConversationWriter
	RetentionWriter
}
