package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"inbox_crm_backend/internal/leads/domain"
	"inbox_crm_backend/platform/apperr"
)

const (
	leadNotFoundMessage = "lead not found"
	uniqueViolationCode = "23505"
)

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new leads repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

const leadColumns = `id, tenant_id, conversation_id, status, source, note,
	superseded_by, converted_order_id, closed_at, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID, &l.TenantID, &l.ConversationID, &l.Status, &l.Source, &l.Note,
		&l.SupersededBy, &l.ConvertedOrderID, &l.ClosedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

// GetByID retrieves a lead by ID scoped to a tenant.
func (r *Repo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1 AND tenant_id = $2`

	l, err := scanLead(r.pool.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, apperr.NotFound(leadNotFoundMessage)
		}
		return Lead{}, fmt.Errorf("get lead by id: %w", err)
	}

	return l, nil
}

// List retrieves leads with optional conversation and status filters.
func (r *Repo) List(ctx context.Context, params ListParams) ([]Lead, int, error) {
	var conversationParam interface{}
	if params.ConversationID != nil {
		conversationParam = *params.ConversationID
	}
	var statusParam interface{}
	if params.Status != nil {
		statusParam = string(*params.Status)
	}

	countQuery := `
		SELECT COUNT(*)
		FROM leads
		WHERE tenant_id = $1
			AND ($2::uuid IS NULL OR conversation_id = $2)
			AND ($3::text IS NULL OR status = $3)`

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, params.TenantID, conversationParam, statusParam).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE tenant_id = $1
			AND ($2::uuid IS NULL OR conversation_id = $2)
			AND ($3::text IS NULL OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`

	rows, err := r.pool.Query(ctx, query, params.TenantID, conversationParam, statusParam, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var results []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan lead: %w", err)
		}
		results = append(results, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate leads: %w", err)
	}

	return results, total, nil
}

// CreateWithSupersede opens a new lead, closing any open lead on the same
// conversation first, all in one transaction. The conversation row is locked
// so concurrent creates serialize; a racer slipping past the lock still
// fails on the one-open-lead unique index. With NoSupersede the open lead is
// left alone and that same index turns an occupied conversation into a
// conflict.
func (r *Repo) CreateWithSupersede(ctx context.Context, params CreateParams) (result CreateResult, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return CreateResult{}, fmt.Errorf("begin create lead: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var conversationID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM conversations
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
		FOR UPDATE`,
		params.ConversationID, params.TenantID,
	).Scan(&conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreateResult{}, apperr.NotFound("conversation not found")
		}
		return CreateResult{}, fmt.Errorf("lock conversation: %w", err)
	}

	var superseded Lead
	hadOpenLead := false
	if !params.NoSupersede {
		superseded, err = scanLead(tx.QueryRow(ctx, `
			UPDATE leads SET status = $3, closed_at = now(), updated_at = now()
			WHERE conversation_id = $1 AND tenant_id = $2 AND status = $4
			RETURNING `+leadColumns,
			params.ConversationID, params.TenantID, string(domain.StatusClosed), string(domain.StatusNew),
		))
		hadOpenLead = true
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return CreateResult{}, fmt.Errorf("supersede open lead: %w", err)
			}
			hadOpenLead = false
		}
	}

	lead, err := scanLead(tx.QueryRow(ctx, `
		INSERT INTO leads (tenant_id, conversation_id, status, source, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+leadColumns,
		params.TenantID, params.ConversationID, string(domain.StatusNew), params.Source, params.Note,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return CreateResult{}, apperr.Conflict("another lead was opened concurrently on this conversation")
		}
		return CreateResult{}, fmt.Errorf("insert lead: %w", err)
	}

	if hadOpenLead {
		superseded, err = scanLead(tx.QueryRow(ctx, `
			UPDATE leads SET superseded_by = $2, note = $3, updated_at = now()
			WHERE id = $1
			RETURNING `+leadColumns,
			superseded.ID, lead.ID, fmt.Sprintf("superseded by lead %s", lead.ID),
		))
		if err != nil {
			return CreateResult{}, fmt.Errorf("annotate superseded lead: %w", err)
		}
		result.Superseded = &superseded
	}

	// Lead count only ever goes up, creation is the sole trigger.
	_, err = tx.Exec(ctx, `
		UPDATE conversations SET lead_count = lead_count + 1, updated_at = now()
		WHERE id = $1`,
		params.ConversationID,
	)
	if err != nil {
		return CreateResult{}, fmt.Errorf("bump lead count: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return CreateResult{}, fmt.Errorf("commit create lead: %w", err)
	}

	result.Lead = lead
	return result, nil
}

// Close moves a NEW lead to a terminal status with a guarded update. A lost
// race or an already-terminal lead surfaces as an invalid transition.
func (r *Repo) Close(ctx context.Context, tenantID, id uuid.UUID, target domain.Status, note string) (Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads SET status = $3, note = CASE WHEN $4 <> '' THEN $4 ELSE note END,
			closed_at = now(), updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status = $5
		RETURNING `+leadColumns,
		id, tenantID, string(target), note, string(domain.StatusNew),
	))
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, fmt.Errorf("close lead: %w", err)
	}

	current, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return Lead{}, err
	}
	return Lead{}, apperr.InvalidTransition(fmt.Sprintf("lead in status %q cannot move to %q", current.Status, target))
}
