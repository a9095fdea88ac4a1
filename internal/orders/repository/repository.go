package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	leaddomain "inbox_crm_backend/internal/leads/domain"
	"inbox_crm_backend/internal/orders/domain"
	"inbox_crm_backend/platform/apperr"
)

const (
	orderNotFoundMessage = "order not found"
	uniqueViolationCode  = "23505"
)

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new orders repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

const orderColumns = `id, tenant_id, conversation_id, lead_id, idempotency_key,
	external_ref, payment_method, customer_name, customer_ref, shipping_address,
	fulfillment_status, payment_status, total_cents, currency, assigned_user_id,
	anonymized_at, paid_at, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.TenantID, &o.ConversationID, &o.LeadID, &o.IdempotencyKey,
		&o.ExternalRef, &o.PaymentMethod, &o.CustomerName, &o.CustomerRef, &o.ShippingAddress,
		&o.FulfillmentStatus, &o.PaymentStatus, &o.TotalCents, &o.Currency, &o.AssignedUserID,
		&o.AnonymizedAt, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetByID retrieves an order with its items, scoped to a tenant.
func (r *Repo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (Order, []OrderItem, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND tenant_id = $2`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, nil, apperr.NotFound(orderNotFoundMessage)
		}
		return Order{}, nil, fmt.Errorf("get order by id: %w", err)
	}

	items, err := listItems(ctx, r.pool, id)
	if err != nil {
		return Order{}, nil, err
	}
	return order, items, nil
}

func listItems(ctx context.Context, q execer, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, description, quantity, unit_price_cents, created_at
		FROM order_items WHERE order_id = $1 ORDER BY created_at, id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.Description, &item.Quantity, &item.UnitPriceCents, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

// List retrieves orders with optional filters.
func (r *Repo) List(ctx context.Context, params ListParams) ([]Order, int, error) {
	var conversationParam interface{}
	if params.ConversationID != nil {
		conversationParam = *params.ConversationID
	}
	var fulfillmentParam interface{}
	if params.FulfillmentStatus != nil {
		fulfillmentParam = string(*params.FulfillmentStatus)
	}
	var paymentParam interface{}
	if params.PaymentStatus != nil {
		paymentParam = string(*params.PaymentStatus)
	}

	countQuery := `
		SELECT COUNT(*)
		FROM orders
		WHERE tenant_id = $1
			AND ($2::uuid IS NULL OR conversation_id = $2)
			AND ($3::text IS NULL OR fulfillment_status = $3)
			AND ($4::text IS NULL OR payment_status = $4)`

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, params.TenantID, conversationParam, fulfillmentParam, paymentParam).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE tenant_id = $1
			AND ($2::uuid IS NULL OR conversation_id = $2)
			AND ($3::text IS NULL OR fulfillment_status = $3)
			AND ($4::text IS NULL OR payment_status = $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`

	rows, err := r.pool.Query(ctx, query, params.TenantID, conversationParam, fulfillmentParam, paymentParam, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var results []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		results = append(results, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate orders: %w", err)
	}

	return results, total, nil
}

// ListTimeline retrieves the full history of an order in append order.
func (r *Repo) ListTimeline(ctx context.Context, tenantID, orderID uuid.UUID) ([]TimelineEvent, error) {
	if _, _, err := r.GetByID(ctx, tenantID, orderID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, event_type, track, old_status, new_status, actor_user_id, description, created_at
		FROM order_timeline_events
		WHERE order_id = $1
		ORDER BY created_at, id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list order timeline: %w", err)
	}
	defer rows.Close()

	var results []TimelineEvent
	for rows.Next() {
		var e TimelineEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.EventType, &e.Track, &e.OldStatus, &e.NewStatus, &e.ActorUserID, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}
	return results, nil
}

func appendTimeline(ctx context.Context, tx pgx.Tx, event TimelineEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_timeline_events (order_id, event_type, track, old_status, new_status, actor_user_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.OrderID, event.EventType, event.Track, event.OldStatus, event.NewStatus, event.ActorUserID, event.Description,
	)
	if err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

// Create inserts an order, its items, the initial timeline event, and, when a
// lead is named, converts it, all in one transaction. A replayed idempotency
// key short-circuits to the stored order without writing anything.
func (r *Repo) Create(ctx context.Context, params CreateParams) (result CreateResult, err error) {
	if params.IdempotencyKey != nil {
		existing, err := scanOrder(r.pool.QueryRow(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1 AND tenant_id = $2`,
			*params.IdempotencyKey, params.TenantID,
		))
		if err == nil {
			items, err := listItems(ctx, r.pool, existing.ID)
			if err != nil {
				return CreateResult{}, err
			}
			return CreateResult{Order: existing, Items: items, Replayed: true}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return CreateResult{}, fmt.Errorf("check idempotency key: %w", err)
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return CreateResult{}, fmt.Errorf("begin create order: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	total := domain.ComputeTotalCents(params.Items)
	if params.TotalCents != nil {
		total = *params.TotalCents
	}

	order, err := scanOrder(tx.QueryRow(ctx, `
		INSERT INTO orders (tenant_id, conversation_id, lead_id, idempotency_key,
			external_ref, payment_method, customer_name, customer_ref, shipping_address,
			total_cents, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+orderColumns,
		params.TenantID, params.ConversationID, params.LeadID, params.IdempotencyKey,
		params.ExternalRef, params.PaymentMethod, params.CustomerName, params.CustomerRef, params.ShippingAddress,
		total, params.Currency,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// A concurrent request with the same key won the insert race.
			// The caller retries and hits the replay path.
			return CreateResult{}, apperr.Conflict("order creation with this idempotency key is already in progress")
		}
		return CreateResult{}, fmt.Errorf("insert order: %w", err)
	}

	items, err := insertItems(ctx, tx, order.ID, params.Items)
	if err != nil {
		return CreateResult{}, err
	}

	if params.LeadID != nil {
		if err = convertLead(ctx, tx, params.TenantID, *params.LeadID, order.ID); err != nil {
			return CreateResult{}, err
		}
	}

	if params.ConversationID != nil {
		_, err = tx.Exec(ctx, `
			UPDATE conversations SET order_count = order_count + 1, updated_at = now()
			WHERE id = $1 AND tenant_id = $2`,
			*params.ConversationID, params.TenantID,
		)
		if err != nil {
			return CreateResult{}, fmt.Errorf("bump order count: %w", err)
		}
	}

	err = appendTimeline(ctx, tx, TimelineEvent{
		OrderID:     order.ID,
		EventType:   EventCreated,
		ActorUserID: params.ActorUserID,
		Description: "order created",
	})
	if err != nil {
		return CreateResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return CreateResult{}, fmt.Errorf("commit create order: %w", err)
	}

	return CreateResult{Order: order, Items: items}, nil
}

func insertItems(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, items []domain.Item) ([]OrderItem, error) {
	inserted := make([]OrderItem, 0, len(items))
	for _, item := range items {
		var stored OrderItem
		err := tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, description, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4)
			RETURNING id, order_id, description, quantity, unit_price_cents, created_at`,
			orderID, item.Description, item.Quantity, item.UnitPriceCents,
		).Scan(&stored.ID, &stored.OrderID, &stored.Description, &stored.Quantity, &stored.UnitPriceCents, &stored.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
		inserted = append(inserted, stored)
	}
	return inserted, nil
}

// convertLead performs the lead side of order creation inside the order
// transaction. The guard on status and an unset order linkage makes double
// conversion impossible; failures abort the whole order.
func convertLead(ctx context.Context, tx pgx.Tx, tenantID, leadID, orderID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE leads SET status = $3, converted_order_id = $4, closed_at = now(), updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status = $5 AND converted_order_id IS NULL`,
		leadID, tenantID, string(leaddomain.StatusConverted), orderID, string(leaddomain.StatusNew),
	)
	if err != nil {
		return fmt.Errorf("convert lead: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	var convertedOrderID *uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT status, converted_order_id FROM leads WHERE id = $1 AND tenant_id = $2`,
		leadID, tenantID,
	).Scan(&status, &convertedOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("lead not found")
		}
		return fmt.Errorf("inspect lead: %w", err)
	}
	if convertedOrderID != nil {
		return apperr.AlreadyConverted(fmt.Sprintf("lead already converted by order %s", *convertedOrderID))
	}
	return apperr.InvalidTransition(fmt.Sprintf("lead in status %q cannot be converted", status))
}

// TransitionFulfillment moves the fulfillment track one step under a row
// lock, validating against the transition graph and recording the step on
// the timeline.
func (r *Repo) TransitionFulfillment(ctx context.Context, tenantID, id uuid.UUID, target domain.FulfillmentStatus, actorUserID *uuid.UUID) (result TransitionResult, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("begin fulfillment transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := lockOrder(ctx, tx, tenantID, id)
	if err != nil {
		return TransitionResult{}, err
	}

	if err = domain.ValidateFulfillmentTransition(current.FulfillmentStatus, target); err != nil {
		return TransitionResult{}, err
	}

	order, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET fulfillment_status = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+orderColumns,
		id, tenantID, string(target),
	))
	if err != nil {
		return TransitionResult{}, fmt.Errorf("update fulfillment status: %w", err)
	}

	// The flag rides on the transition's own timeline entry; a state change
	// appends exactly one event.
	deliveredUnpaid := target == domain.FulfillmentDelivered && order.PaymentStatus == domain.PaymentUnpaid
	description := ""
	if deliveredUnpaid {
		description = DescriptionDeliveredUnpaid
	}

	err = appendTimeline(ctx, tx, TimelineEvent{
		OrderID:     order.ID,
		EventType:   EventFulfillmentChanged,
		Track:       TrackFulfillment,
		OldStatus:   string(current.FulfillmentStatus),
		NewStatus:   string(target),
		ActorUserID: actorUserID,
		Description: description,
	})
	if err != nil {
		return TransitionResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return TransitionResult{}, fmt.Errorf("commit fulfillment transition: %w", err)
	}

	return TransitionResult{
		Order:           order,
		OldStatus:       string(current.FulfillmentStatus),
		DeliveredUnpaid: deliveredUnpaid,
	}, nil
}

// TransitionPayment sets the payment track under a row lock. PAID stamps the
// payment time; moving off PAID clears it.
func (r *Repo) TransitionPayment(ctx context.Context, tenantID, id uuid.UUID, target domain.PaymentStatus, actorUserID *uuid.UUID) (result TransitionResult, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("begin payment transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := lockOrder(ctx, tx, tenantID, id)
	if err != nil {
		return TransitionResult{}, err
	}

	if err = domain.ValidatePaymentTransition(current.PaymentStatus, target); err != nil {
		return TransitionResult{}, err
	}

	order, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET payment_status = $3,
			paid_at = CASE
				WHEN $3 = $4 THEN now()
				WHEN $3 = $5 THEN NULL
				ELSE paid_at
			END,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+orderColumns,
		id, tenantID, string(target), string(domain.PaymentPaid), string(domain.PaymentUnpaid),
	))
	if err != nil {
		return TransitionResult{}, fmt.Errorf("update payment status: %w", err)
	}

	err = appendTimeline(ctx, tx, TimelineEvent{
		OrderID:     order.ID,
		EventType:   EventPaymentChanged,
		Track:       TrackPayment,
		OldStatus:   string(current.PaymentStatus),
		NewStatus:   string(target),
		ActorUserID: actorUserID,
	})
	if err != nil {
		return TransitionResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return TransitionResult{}, fmt.Errorf("commit payment transition: %w", err)
	}

	return TransitionResult{Order: order, OldStatus: string(current.PaymentStatus)}, nil
}

// ReplaceItems swaps all order lines and recomputes the total in one
// transaction. Orders in a terminal fulfillment state are immutable.
func (r *Repo) ReplaceItems(ctx context.Context, tenantID, id uuid.UUID, items []domain.Item, actorUserID *uuid.UUID) (order Order, stored []OrderItem, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Order{}, nil, fmt.Errorf("begin replace items: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := lockOrder(ctx, tx, tenantID, id)
	if err != nil {
		return Order{}, nil, err
	}
	if current.FulfillmentStatus.IsTerminal() {
		return Order{}, nil, apperr.InvalidState(fmt.Sprintf("order in fulfillment status %q cannot be edited", current.FulfillmentStatus))
	}

	if _, err = tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return Order{}, nil, fmt.Errorf("clear order items: %w", err)
	}

	stored, err = insertItems(ctx, tx, id, items)
	if err != nil {
		return Order{}, nil, err
	}

	order, err = scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET total_cents = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+orderColumns,
		id, tenantID, domain.ComputeTotalCents(items),
	))
	if err != nil {
		return Order{}, nil, fmt.Errorf("update order total: %w", err)
	}

	err = appendTimeline(ctx, tx, TimelineEvent{
		OrderID:     id,
		EventType:   EventItemsUpdated,
		ActorUserID: actorUserID,
		Description: fmt.Sprintf("items replaced, new total %d %s", order.TotalCents, order.Currency),
	})
	if err != nil {
		return Order{}, nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return Order{}, nil, fmt.Errorf("commit replace items: %w", err)
	}
	return order, stored, nil
}

// UpdateShipping changes the shipping address. Orders in a terminal
// fulfillment state are immutable.
func (r *Repo) UpdateShipping(ctx context.Context, tenantID, id uuid.UUID, address string, actorUserID *uuid.UUID) (order Order, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("begin update shipping: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := lockOrder(ctx, tx, tenantID, id)
	if err != nil {
		return Order{}, err
	}
	if current.FulfillmentStatus.IsTerminal() {
		return Order{}, apperr.InvalidState(fmt.Sprintf("order in fulfillment status %q cannot be edited", current.FulfillmentStatus))
	}

	order, err = scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET shipping_address = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+orderColumns,
		id, tenantID, address,
	))
	if err != nil {
		return Order{}, fmt.Errorf("update shipping address: %w", err)
	}

	err = appendTimeline(ctx, tx, TimelineEvent{
		OrderID:     id,
		EventType:   EventShippingUpdated,
		ActorUserID: actorUserID,
		Description: "shipping address updated",
	})
	if err != nil {
		return Order{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit update shipping: %w", err)
	}
	return order, nil
}

// Assign sets or clears the assigned user. Assignment is metadata, allowed in
// any state, and still lands on the timeline.
func (r *Repo) Assign(ctx context.Context, tenantID, id uuid.UUID, assigneeID *uuid.UUID, actorUserID *uuid.UUID, description string) (order Order, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("begin assign order: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = lockOrder(ctx, tx, tenantID, id); err != nil {
		return Order{}, err
	}

	order, err = scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET assigned_user_id = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+orderColumns,
		id, tenantID, assigneeID,
	))
	if err != nil {
		return Order{}, fmt.Errorf("update assignee: %w", err)
	}

	err = appendTimeline(ctx, tx, TimelineEvent{
		OrderID:     id,
		EventType:   EventAssigned,
		ActorUserID: actorUserID,
		Description: description,
	})
	if err != nil {
		return Order{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit assign order: %w", err)
	}
	return order, nil
}

func lockOrder(ctx context.Context, tx pgx.Tx, tenantID, id uuid.UUID) (Order, error) {
	order, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		id, tenantID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, apperr.NotFound(orderNotFoundMessage)
		}
		return Order{}, fmt.Errorf("lock order: %w", err)
	}
	return order, nil
}
