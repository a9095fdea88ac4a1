package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"inbox_crm_backend/internal/adapters/storage"
	"inbox_crm_backend/internal/conversations/repository"
	"inbox_crm_backend/internal/conversations/transport"
	"inbox_crm_backend/internal/events"
	"inbox_crm_backend/platform/logger"
	"inbox_crm_backend/platform/sanitize"
)

// purgeGrace is how long a soft-deleted conversation survives before the
// retention sweep removes it for good.
const purgeGrace = 30 * 24 * time.Hour

// Registry owns conversation lifecycle: atomic ingest appends, the read
// surface, outbound sends, and the retention cascade.
type Registry struct {
	repo    repository.Repository
	store   storage.StorageService
	bucket  string
	bus     events.Bus
	log     *logger.Logger
}

// New creates a new conversation registry. store may be nil when MinIO is not
// configured; attachment operations then fail with a validation error.
func New(repo repository.Repository, store storage.StorageService, bucket string, bus events.Bus, log *logger.Logger) *Registry {
	return &Registry{repo: repo, store: store, bucket: bucket, bus: bus, log: log}
}

// UpsertAndAppend lands one channel-delivered message atomically. It is the
// single write path used by the ingestion gateway.
func (s *Registry) UpsertAndAppend(ctx context.Context, params repository.UpsertAndAppendParams) (repository.UpsertAndAppendResult, error) {
	params.Body = sanitize.Text(params.Body)

	result, err := s.repo.UpsertAndAppend(ctx, params)
	if err != nil {
		return repository.UpsertAndAppendResult{}, err
	}
	if result.Duplicate {
		return result, nil
	}

	if result.ConversationCreated {
		s.bus.Publish(ctx, events.ConversationCreated{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: result.Conversation.ID,
			TenantID:       result.Conversation.TenantID,
			Channel:        result.Conversation.Channel,
			CustomerRef:    result.Conversation.CustomerRef,
		})
	}

	return result, nil
}

// GetByID retrieves a conversation.
func (s *Registry) GetByID(ctx context.Context, tenantID, id uuid.UUID) (transport.ConversationResponse, error) {
	c, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.ConversationResponse{}, err
	}
	return toConversationResponse(c), nil
}

// List retrieves conversations for a tenant, most recent first.
func (s *Registry) List(ctx context.Context, tenantID uuid.UUID, req transport.ListConversationsRequest) (transport.ConversationListResponse, error) {
	page := req.Page
	pageSize := req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	items, total, err := s.repo.List(ctx, repository.ListParams{
		TenantID: tenantID,
		Status:   req.Status,
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		return transport.ConversationListResponse{}, err
	}

	responses := make([]transport.ConversationResponse, len(items))
	for i, item := range items {
		responses[i] = toConversationResponse(item)
	}

	return transport.ConversationListResponse{
		Items:    responses,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// ListMessages retrieves the messages of a conversation in send order, with
// presigned download URLs resolved for attachments.
func (s *Registry) ListMessages(ctx context.Context, tenantID, conversationID uuid.UUID, limit, offset int) (transport.MessageListResponse, error) {
	if _, err := s.repo.GetByID(ctx, tenantID, conversationID); err != nil {
		return transport.MessageListResponse{}, err
	}

	if limit < 1 {
		limit = 50
	}

	items, err := s.repo.ListMessages(ctx, tenantID, conversationID, limit, offset)
	if err != nil {
		return transport.MessageListResponse{}, err
	}

	responses := make([]transport.MessageResponse, len(items))
	for i, item := range items {
		responses[i] = s.toMessageResponse(ctx, item)
	}

	return transport.MessageListResponse{Items: responses, Total: len(responses)}, nil
}

// SendMessage appends an API-authored outbound message.
func (s *Registry) SendMessage(ctx context.Context, tenantID, conversationID, authorID uuid.UUID, req transport.SendMessageRequest) (transport.MessageResponse, error) {
	var contentType *string
	// Attachment content type was recorded at upload time; the key alone is
	// enough for downloads, so it stays nil here.

	message, err := s.repo.AppendOutbound(ctx, repository.AppendOutboundParams{
		TenantID:              tenantID,
		ConversationID:        conversationID,
		AuthorUserID:          authorID,
		Body:                  sanitize.Text(req.Body),
		AttachmentKey:         req.AttachmentKey,
		AttachmentContentType: contentType,
	})
	if err != nil {
		return transport.MessageResponse{}, err
	}

	return s.toMessageResponse(ctx, message), nil
}

// UploadAttachment stores an attachment for later use in an outbound message.
func (s *Registry) UploadAttachment(ctx context.Context, tenantID, conversationID uuid.UUID, fileName, contentType string, reader io.Reader, size int64) (transport.AttachmentUploadResponse, error) {
	if _, err := s.repo.GetByID(ctx, tenantID, conversationID); err != nil {
		return transport.AttachmentUploadResponse{}, err
	}

	folder := tenantID.String() + "/" + conversationID.String()
	fileKey, err := s.store.UploadFile(ctx, s.bucket, folder, fileName, contentType, reader, size)
	if err != nil {
		return transport.AttachmentUploadResponse{}, err
	}

	return transport.AttachmentUploadResponse{
		FileKey:     fileKey,
		ContentType: contentType,
		SizeBytes:   size,
	}, nil
}

// MarkRead clears the unread counter.
func (s *Registry) MarkRead(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	return s.repo.MarkRead(ctx, tenantID, conversationID)
}

// Archive archives a conversation manually.
func (s *Registry) Archive(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	if err := s.repo.Archive(ctx, tenantID, conversationID); err != nil {
		return err
	}

	s.bus.Publish(ctx, events.ConversationArchived{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		Reason:         "manual",
	})
	return nil
}

// SoftDelete marks a conversation for the retention sweep.
func (s *Registry) SoftDelete(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	return s.repo.SoftDelete(ctx, tenantID, conversationID)
}

// UpsertIntent records an externally evaluated intent classification.
func (s *Registry) UpsertIntent(ctx context.Context, tenantID, conversationID uuid.UUID, req transport.UpsertIntentRequest) error {
	previous, err := s.repo.UpsertIntent(ctx, repository.IntentParams{
		TenantID:       tenantID,
		ConversationID: conversationID,
		Label:          req.Label,
		Confidence:     req.Confidence,
		EvaluatedAt:    req.EvaluatedAt,
	})
	if err != nil {
		return err
	}

	if previous == nil || *previous != req.Label {
		oldLabel := ""
		if previous != nil {
			oldLabel = *previous
		}
		s.bus.Publish(ctx, events.ConversationIntentChanged{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: conversationID,
			TenantID:       tenantID,
			OldIntent:      oldLabel,
			NewIntent:      req.Label,
			Confidence:     req.Confidence,
		})
	}

	return nil
}

// ArchiveIdle archives conversations idle past their tenant's window.
// Called by the scheduler.
func (s *Registry) ArchiveIdle(ctx context.Context) (int64, error) {
	count, err := s.repo.ArchiveIdle(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("idle conversations archived", "count", count)
	}
	return count, nil
}

// PurgeExpired hard-deletes soft-deleted conversations past the grace period,
// cascading through messages and leads and anonymizing orders. Called by the
// scheduler.
func (s *Registry) PurgeExpired(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListPurgeable(ctx, purgeGrace)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, c := range candidates {
		if err := s.repo.Purge(ctx, c.TenantID, c.ID); err != nil {
			s.log.Error("conversation purge failed", "conversation_id", c.ID, "error", err)
			continue
		}
		purged++
	}

	if purged > 0 {
		s.log.Info("conversations purged", "count", purged)
	}
	return purged, nil
}

// PurgeConversation removes one conversation immediately (admin-level erase).
func (s *Registry) PurgeConversation(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	return s.repo.Purge(ctx, tenantID, conversationID)
}

func (s *Registry) toMessageResponse(ctx context.Context, m repository.Message) transport.MessageResponse {
	resp := transport.MessageResponse{
		ID:               m.ID,
		ConversationID:   m.ConversationID,
		Direction:        m.Direction,
		SenderType:       m.SenderType,
		ChannelMessageID: m.ChannelMessageID,
		AuthorUserID:     m.AuthorUserID,
		Body:             m.Body,
		AttachmentKey:    m.AttachmentKey,
		Read:             m.ReadAt != nil,
		SentAt:           m.SentAt.Format(time.RFC3339),
	}

	if m.AttachmentKey != nil && s.store != nil {
		if presigned, err := s.store.GenerateDownloadURL(ctx, s.bucket, *m.AttachmentKey); err == nil {
			resp.AttachmentURL = &presigned.URL
		}
	}

	return resp
}

func toConversationResponse(c repository.Conversation) transport.ConversationResponse {
	resp := transport.ConversationResponse{
		ID:           c.ID,
		Channel:      c.Channel,
		CustomerRef:  c.CustomerRef,
		CustomerName: c.CustomerName,
		Status:       c.Status,
		UnreadCount:  c.UnreadCount,
		LeadCount:    c.LeadCount,
		OrderCount:   c.OrderCount,
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    c.UpdatedAt.Format(time.RFC3339),
	}

	if c.LastMessageAt != nil {
		formatted := c.LastMessageAt.Format(time.RFC3339)
		resp.LastMessageAt = &formatted
	}
	if c.ArchivedAt != nil {
		formatted := c.ArchivedAt.Format(time.RFC3339)
		resp.ArchivedAt = &formatted
	}
	if c.IntentLabel != nil {
		intent := &transport.IntentResponse{Label: *c.IntentLabel}
		if c.IntentConfidence != nil {
			intent.Confidence = *c.IntentConfidence
		}
		if c.IntentEvaluatedAt != nil {
			intent.EvaluatedAt = c.IntentEvaluatedAt.Format(time.RFC3339)
		}
		resp.Intent = intent
	}

	return resp
}
