package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inbox_crm_backend/platform/apperr"
)

const conversationNotFoundMessage = "conversation not found"

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new conversations repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

const conversationColumns = `id, tenant_id, channel, customer_ref, customer_name, status,
	intent_label, intent_confidence, intent_evaluated_at,
	unread_count, lead_count, order_count, first_message_at, last_message_at, archived_at, deleted_at,
	created_at, updated_at`

const messageColumns = `id, conversation_id, tenant_id, channel, channel_message_id, direction,
	sender_type, author_user_id, body, attachment_key, attachment_content_type, read_at, sent_at, created_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Channel, &c.CustomerRef, &c.CustomerName, &c.Status,
		&c.IntentLabel, &c.IntentConfidence, &c.IntentEvaluatedAt,
		&c.UnreadCount, &c.LeadCount, &c.OrderCount, &c.FirstMessageAt, &c.LastMessageAt, &c.ArchivedAt, &c.DeletedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.TenantID, &m.Channel, &m.ChannelMessageID, &m.Direction,
		&m.SenderType, &m.AuthorUserID, &m.Body, &m.AttachmentKey, &m.AttachmentContentType, &m.ReadAt, &m.SentAt, &m.CreatedAt,
	)
	return m, err
}

// GetByID retrieves a conversation by ID scoped to a tenant.
func (r *Repo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	c, err := scanConversation(r.pool.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, apperr.NotFound(conversationNotFoundMessage)
		}
		return Conversation{}, fmt.Errorf("get conversation by id: %w", err)
	}

	return c, nil
}

// List retrieves conversations for a tenant, most recent activity first.
func (r *Repo) List(ctx context.Context, params ListParams) ([]Conversation, int, error) {
	var statusParam interface{}
	if params.Status != nil {
		statusParam = *params.Status
	}

	countQuery := `
		SELECT COUNT(*)
		FROM conversations
		WHERE tenant_id = $1 AND deleted_at IS NULL
			AND ($2::text IS NULL OR status = $2)`

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, params.TenantID, statusParam).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE tenant_id = $1 AND deleted_at IS NULL
			AND ($2::text IS NULL OR status = $2)
		ORDER BY last_message_at DESC NULLS LAST
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, params.TenantID, statusParam, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan conversation: %w", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate conversations: %w", err)
	}

	return results, total, nil
}

// ListMessages retrieves messages of a conversation in send order.
func (r *Repo) ListMessages(ctx context.Context, tenantID, conversationID uuid.UUID, limit, offset int) ([]Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND tenant_id = $2
		ORDER BY sent_at ASC, created_at ASC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, conversationID, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return results, nil
}

// UpsertAndAppend finds or creates the conversation for the (tenant, channel,
// customer) triple and appends the message, all in one transaction. A
// duplicate channel message ID rolls the whole unit back so conversation
// metadata never drifts on redelivery.
func (r *Repo) UpsertAndAppend(ctx context.Context, params UpsertAndAppendParams) (result UpsertAndAppendResult, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return UpsertAndAppendResult{}, fmt.Errorf("begin upsert and append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		INSERT INTO conversations (tenant_id, channel, customer_ref, customer_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, channel, customer_ref) DO NOTHING`,
		params.TenantID, params.Channel, params.CustomerRef, params.CustomerName,
	)
	if err != nil {
		return UpsertAndAppendResult{}, fmt.Errorf("upsert conversation: %w", err)
	}
	result.ConversationCreated = tag.RowsAffected() > 0

	// Lock the row so concurrent appends serialize their metadata updates.
	conversation, err := scanConversation(tx.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE tenant_id = $1 AND channel = $2 AND customer_ref = $3
		FOR UPDATE`,
		params.TenantID, params.Channel, params.CustomerRef,
	))
	if err != nil {
		return UpsertAndAppendResult{}, fmt.Errorf("lock conversation: %w", err)
	}

	message, err := scanMessage(tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, tenant_id, channel, channel_message_id, direction, sender_type, body, attachment_key, attachment_content_type, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, channel, channel_message_id) WHERE channel_message_id IS NOT NULL DO NOTHING
		RETURNING `+messageColumns,
		conversation.ID, params.TenantID, params.Channel, params.ChannelMessageID, params.Direction,
		params.SenderType, params.Body, params.AttachmentKey, params.AttachmentContentType, params.SentAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Redelivery. Roll back everything, including a conversation
			// created above (it cannot have been: the original delivery
			// already created it).
			result = UpsertAndAppendResult{Duplicate: true}
			err = tx.Rollback(ctx)
			if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
				return UpsertAndAppendResult{}, fmt.Errorf("rollback duplicate append: %w", err)
			}
			return result, nil
		}
		return UpsertAndAppendResult{}, fmt.Errorf("append message: %w", err)
	}

	unreadDelta := 0
	if params.Direction == DirectionInbound {
		unreadDelta = 1
	}

	conversation, err = scanConversation(tx.QueryRow(ctx, `
		UPDATE conversations SET
			first_message_at = LEAST(COALESCE(first_message_at, $2), $2),
			last_message_at = GREATEST(COALESCE(last_message_at, $2), $2),
			unread_count = unread_count + $3,
			status = CASE WHEN $4 THEN 'open' ELSE status END,
			archived_at = CASE WHEN $4 THEN NULL ELSE archived_at END,
			customer_name = CASE WHEN customer_name = '' THEN $5 ELSE customer_name END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+conversationColumns,
		conversation.ID, params.SentAt, unreadDelta, params.Direction == DirectionInbound, params.CustomerName,
	))
	if err != nil {
		return UpsertAndAppendResult{}, fmt.Errorf("bump conversation: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return UpsertAndAppendResult{}, fmt.Errorf("commit upsert and append: %w", err)
	}

	result.Conversation = conversation
	result.Message = message
	return result, nil
}

// AppendOutbound inserts an API-authored outbound message and bumps the
// conversation's activity timestamp in one transaction.
func (r *Repo) AppendOutbound(ctx context.Context, params AppendOutboundParams) (message Message, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("begin append outbound: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var channel string
	err = tx.QueryRow(ctx, `
		SELECT channel FROM conversations
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
		FOR UPDATE`,
		params.ConversationID, params.TenantID,
	).Scan(&channel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, apperr.NotFound(conversationNotFoundMessage)
		}
		return Message{}, fmt.Errorf("lock conversation: %w", err)
	}

	now := time.Now()
	message, err = scanMessage(tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, tenant_id, channel, direction, sender_type, author_user_id, body, attachment_key, attachment_content_type, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+messageColumns,
		params.ConversationID, params.TenantID, channel, DirectionOutbound, SenderBusiness,
		params.AuthorUserID, params.Body, params.AttachmentKey, params.AttachmentContentType, now,
	))
	if err != nil {
		return Message{}, fmt.Errorf("insert outbound message: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET
			last_message_at = GREATEST(COALESCE(last_message_at, $2), $2),
			updated_at = now()
		WHERE id = $1`,
		params.ConversationID, now,
	)
	if err != nil {
		return Message{}, fmt.Errorf("bump conversation: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("commit append outbound: %w", err)
	}

	return message, nil
}

// MarkRead clears the unread counter and stamps unread inbound messages.
func (r *Repo) MarkRead(ctx context.Context, tenantID, conversationID uuid.UUID) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin mark read: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE conversations SET unread_count = 0, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		conversationID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(conversationNotFoundMessage)
	}

	_, err = tx.Exec(ctx, `
		UPDATE messages SET read_at = now()
		WHERE conversation_id = $1 AND direction = $2 AND read_at IS NULL`,
		conversationID, DirectionInbound,
	)
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}

	return tx.Commit(ctx)
}

// Archive marks a conversation archived.
func (r *Repo) Archive(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET status = $3, archived_at = now(), updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		conversationID, tenantID, StatusArchived,
	)
	if err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(conversationNotFoundMessage)
	}
	return nil
}

// SoftDelete marks a conversation for purging.
func (r *Repo) SoftDelete(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		conversationID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("soft delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(conversationNotFoundMessage)
	}
	return nil
}

// UpsertIntent stores the evaluated intent and returns the previous label.
func (r *Repo) UpsertIntent(ctx context.Context, params IntentParams) (*string, error) {
	var previous *string
	err := r.pool.QueryRow(ctx, `
		UPDATE conversations SET
			intent_label = $3,
			intent_confidence = $4,
			intent_evaluated_at = $5,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
		RETURNING (SELECT intent_label FROM conversations WHERE id = $1)`,
		params.ConversationID, params.TenantID, params.Label, params.Confidence, params.EvaluatedAt,
	).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(conversationNotFoundMessage)
		}
		return nil, fmt.Errorf("upsert intent: %w", err)
	}
	return previous, nil
}

// ArchiveIdle archives open conversations idle past their tenant's window.
func (r *Repo) ArchiveIdle(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations c SET status = $1, archived_at = now(), updated_at = now()
		FROM businesses b
		WHERE c.tenant_id = b.id
			AND c.status = $2
			AND c.deleted_at IS NULL
			AND c.last_message_at IS NOT NULL
			AND c.last_message_at < now() - make_interval(days => b.archive_after_days)`,
		StatusArchived, StatusOpen,
	)
	if err != nil {
		return 0, fmt.Errorf("archive idle conversations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListPurgeable returns soft-deleted conversations past the grace period.
func (r *Repo) ListPurgeable(ctx context.Context, grace time.Duration) ([]Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE deleted_at IS NOT NULL AND deleted_at < now() - $1::interval`

	rows, err := r.pool.Query(ctx, query, grace)
	if err != nil {
		return nil, fmt.Errorf("list purgeable conversations: %w", err)
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purgeable conversation: %w", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purgeable conversations: %w", err)
	}

	return results, nil
}

// Purge removes a conversation and all dependent data in one transaction.
// Orders keep their financial record but lose PII and conversation linkage.
func (r *Repo) Purge(ctx context.Context, tenantID, conversationID uuid.UUID) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin purge: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		UPDATE orders SET
			customer_name = '',
			customer_ref = '',
			shipping_address = '',
			lead_id = NULL,
			conversation_id = NULL,
			anonymized_at = now(),
			updated_at = now()
		WHERE conversation_id = $1 AND tenant_id = $2`,
		conversationID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("anonymize orders: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM leads WHERE conversation_id = $1 AND tenant_id = $2`, conversationID, tenantID)
	if err != nil {
		return fmt.Errorf("purge leads: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1 AND tenant_id = $2`, conversationID, tenantID)
	if err != nil {
		return fmt.Errorf("purge messages: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1 AND tenant_id = $2`, conversationID, tenantID)
	if err != nil {
		return fmt.Errorf("purge conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(conversationNotFoundMessage)
	}

	return tx.Commit(ctx)
}
