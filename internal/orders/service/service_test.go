package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"inbox_crm_backend/internal/events"
	"inbox_crm_backend/internal/orders/domain"
	"inbox_crm_backend/internal/orders/repository"
	"inbox_crm_backend/internal/orders/transport"
	"inbox_crm_backend/platform/apperr"
	"inbox_crm_backend/platform/logger"
)

type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *fakeBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *fakeBus) Subscribe(string, events.Handler) {}

func (b *fakeBus) eventNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.published))
	for i, e := range b.published {
		names[i] = e.EventName()
	}
	return names
}

// fakeOrderRepo is an in-memory order store covering the behavior the service
// relies on: idempotent creation, the two status tracks, and the timeline.
type fakeOrderRepo struct {
	orders   map[uuid.UUID]repository.Order
	items    map[uuid.UUID][]repository.OrderItem
	timeline map[uuid.UUID][]repository.TimelineEvent
	byKey    map[string]uuid.UUID
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:   make(map[uuid.UUID]repository.Order),
		items:    make(map[uuid.UUID][]repository.OrderItem),
		timeline: make(map[uuid.UUID][]repository.TimelineEvent),
		byKey:    make(map[string]uuid.UUID),
	}
}

func (r *fakeOrderRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (repository.Order, []repository.OrderItem, error) {
	order, ok := r.orders[id]
	if !ok || order.TenantID != tenantID {
		return repository.Order{}, nil, apperr.NotFound("order not found")
	}
	return order, r.items[id], nil
}

func (r *fakeOrderRepo) List(_ context.Context, params repository.ListParams) ([]repository.Order, int, error) {
	var out []repository.Order
	for _, order := range r.orders {
		if order.TenantID == params.TenantID {
			out = append(out, order)
		}
	}
	return out, len(out), nil
}

func (r *fakeOrderRepo) ListTimeline(_ context.Context, tenantID, orderID uuid.UUID) ([]repository.TimelineEvent, error) {
	order, ok := r.orders[orderID]
	if !ok || order.TenantID != tenantID {
		return nil, apperr.NotFound("order not found")
	}
	return r.timeline[orderID], nil
}

func (r *fakeOrderRepo) Create(_ context.Context, params repository.CreateParams) (repository.CreateResult, error) {
	if params.IdempotencyKey != nil {
		if existingID, ok := r.byKey[*params.IdempotencyKey]; ok {
			return repository.CreateResult{
				Order:    r.orders[existingID],
				Items:    r.items[existingID],
				Replayed: true,
			}, nil
		}
	}

	var total int64
	stored := make([]repository.OrderItem, len(params.Items))
	for i, item := range params.Items {
		total += int64(item.Quantity) * item.UnitPriceCents
		stored[i] = repository.OrderItem{
			ID:             uuid.New(),
			Description:    item.Description,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}
	if params.TotalCents != nil {
		total = *params.TotalCents
	}

	order := repository.Order{
		ID:                uuid.New(),
		TenantID:          params.TenantID,
		ConversationID:    params.ConversationID,
		LeadID:            params.LeadID,
		IdempotencyKey:    params.IdempotencyKey,
		CustomerName:      params.CustomerName,
		FulfillmentStatus: domain.FulfillmentNew,
		PaymentStatus:     domain.PaymentUnpaid,
		TotalCents:        total,
		Currency:          params.Currency,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	r.orders[order.ID] = order
	r.items[order.ID] = stored
	if params.IdempotencyKey != nil {
		r.byKey[*params.IdempotencyKey] = order.ID
	}
	r.appendTimeline(order.ID, repository.TimelineEvent{EventType: repository.EventCreated})

	return repository.CreateResult{Order: order, Items: stored}, nil
}

func (r *fakeOrderRepo) TransitionFulfillment(_ context.Context, tenantID, id uuid.UUID, target domain.FulfillmentStatus, _ *uuid.UUID) (repository.TransitionResult, error) {
	order, ok := r.orders[id]
	if !ok || order.TenantID != tenantID {
		return repository.TransitionResult{}, apperr.NotFound("order not found")
	}
	if err := domain.ValidateFulfillmentTransition(order.FulfillmentStatus, target); err != nil {
		return repository.TransitionResult{}, err
	}

	old := order.FulfillmentStatus
	order.FulfillmentStatus = target
	r.orders[id] = order

	result := repository.TransitionResult{Order: order, OldStatus: string(old)}
	event := repository.TimelineEvent{
		EventType: repository.EventFulfillmentChanged,
		Track:     repository.TrackFulfillment,
		OldStatus: string(old),
		NewStatus: string(target),
	}
	if target == domain.FulfillmentDelivered && order.PaymentStatus == domain.PaymentUnpaid {
		event.Description = repository.DescriptionDeliveredUnpaid
		result.DeliveredUnpaid = true
	}
	r.appendTimeline(id, event)
	return result, nil
}

func (r *fakeOrderRepo) TransitionPayment(_ context.Context, tenantID, id uuid.UUID, target domain.PaymentStatus, _ *uuid.UUID) (repository.TransitionResult, error) {
	order, ok := r.orders[id]
	if !ok || order.TenantID != tenantID {
		return repository.TransitionResult{}, apperr.NotFound("order not found")
	}
	if err := domain.ValidatePaymentTransition(order.PaymentStatus, target); err != nil {
		return repository.TransitionResult{}, err
	}

	old := order.PaymentStatus
	order.PaymentStatus = target
	r.orders[id] = order
	r.appendTimeline(id, repository.TimelineEvent{
		EventType: repository.EventPaymentChanged,
		Track:     repository.TrackPayment,
		OldStatus: string(old),
		NewStatus: string(target),
	})
	return repository.TransitionResult{Order: order, OldStatus: string(old)}, nil
}

func (r *fakeOrderRepo) ReplaceItems(_ context.Context, tenantID, id uuid.UUID, items []domain.Item, _ *uuid.UUID) (repository.Order, []repository.OrderItem, error) {
	order, ok := r.orders[id]
	if !ok || order.TenantID != tenantID {
		return repository.Order{}, nil, apperr.NotFound("order not found")
	}
	if order.FulfillmentStatus.IsTerminal() {
		return repository.Order{}, nil, apperr.InvalidState("order is closed")
	}

	stored := make([]repository.OrderItem, len(items))
	for i, item := range items {
		stored[i] = repository.OrderItem{
			ID:             uuid.New(),
			Description:    item.Description,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}
	order.TotalCents = domain.ComputeTotalCents(items)
	r.orders[id] = order
	r.items[id] = stored
	return order, stored, nil
}

func (r *fakeOrderRepo) UpdateShipping(_ context.Context, tenantID, id uuid.UUID, address string, _ *uuid.UUID) (repository.Order, error) {
	order, ok := r.orders[id]
	if !ok || order.TenantID != tenantID {
		return repository.Order{}, apperr.NotFound("order not found")
	}
	order.ShippingAddress = address
	r.orders[id] = order
	return order, nil
}

func (r *fakeOrderRepo) Assign(_ context.Context, tenantID, id uuid.UUID, assigneeID *uuid.UUID, _ *uuid.UUID, description string) (repository.Order, error) {
	order, ok := r.orders[id]
	if !ok || order.TenantID != tenantID {
		return repository.Order{}, apperr.NotFound("order not found")
	}
	order.AssignedUserID = assigneeID
	r.orders[id] = order
	r.appendTimeline(id, repository.TimelineEvent{
		EventType:   repository.EventAssigned,
		Description: description,
	})
	return order, nil
}

func (r *fakeOrderRepo) appendTimeline(orderID uuid.UUID, event repository.TimelineEvent) {
	event.ID = uuid.New()
	event.OrderID = orderID
	event.CreatedAt = time.Now()
	r.timeline[orderID] = append(r.timeline[orderID], event)
}

type fakeDirectory struct {
	names map[uuid.UUID]string
}

func (d *fakeDirectory) DisplayName(_ context.Context, _, userID uuid.UUID) (string, error) {
	return d.names[userID], nil
}

func newTestService(repo repository.Repository, directory UserDirectory, bus events.Bus) *Service {
	return New(repo, directory, bus, logger.New("test"))
}

func strPtr(s string) *string { return &s }

func TestCreatePublishesEvents(t *testing.T) {
	repo := newFakeOrderRepo()
	bus := &fakeBus{}
	svc := newTestService(repo, nil, bus)

	tenantID := uuid.New()
	leadID := uuid.New()
	conversationID := uuid.New()

	resp, err := svc.Create(context.Background(), tenantID, nil, transport.CreateOrderRequest{
		ConversationID: &conversationID,
		LeadID:         &leadID,
		Items: []transport.OrderItemRequest{
			{Description: "widget", Quantity: 2, UnitPriceCents: 1500},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.Replayed {
		t.Error("first creation should not be a replay")
	}
	if resp.Order.FulfillmentStatus != "NEW" || resp.Order.PaymentStatus != "UNPAID" {
		t.Errorf("initial statuses = %s/%s, want NEW/UNPAID", resp.Order.FulfillmentStatus, resp.Order.PaymentStatus)
	}
	if resp.Order.TotalCents != 3000 {
		t.Errorf("total = %d, want 3000", resp.Order.TotalCents)
	}
	if resp.Order.Currency != "EUR" {
		t.Errorf("default currency = %q, want EUR", resp.Order.Currency)
	}

	names := bus.eventNames()
	want := []string{"orders.order.created", "leads.lead.converted"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("published events = %v, want %v", names, want)
	}
}

func TestCreateExplicitTotalOverridesItems(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newTestService(repo, nil, &fakeBus{})

	override := int64(2500)
	resp, err := svc.Create(context.Background(), uuid.New(), nil, transport.CreateOrderRequest{
		Items: []transport.OrderItemRequest{
			{Description: "widget", Quantity: 2, UnitPriceCents: 1500},
		},
		TotalCents: &override,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.Order.TotalCents != 2500 {
		t.Errorf("total = %d, want explicit 2500 over computed 3000", resp.Order.TotalCents)
	}
}

func TestCreateWithoutLeadSkipsConversionEvent(t *testing.T) {
	repo := newFakeOrderRepo()
	bus := &fakeBus{}
	svc := newTestService(repo, nil, bus)

	_, err := svc.Create(context.Background(), uuid.New(), nil, transport.CreateOrderRequest{
		Items: []transport.OrderItemRequest{{Description: "widget", Quantity: 1, UnitPriceCents: 100}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	names := bus.eventNames()
	if len(names) != 1 || names[0] != "orders.order.created" {
		t.Errorf("published events = %v, want only orders.order.created", names)
	}
}

func TestCreateIdempotentReplay(t *testing.T) {
	repo := newFakeOrderRepo()
	bus := &fakeBus{}
	svc := newTestService(repo, nil, bus)

	tenantID := uuid.New()
	req := transport.CreateOrderRequest{
		IdempotencyKey: strPtr("retry-key-001"),
		Items:          []transport.OrderItemRequest{{Description: "widget", Quantity: 1, UnitPriceCents: 100}},
	}

	first, err := svc.Create(context.Background(), tenantID, nil, req)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	second, err := svc.Create(context.Background(), tenantID, nil, req)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if !second.Replayed {
		t.Error("second creation with the same key should be a replay")
	}
	if second.Order.ID != first.Order.ID {
		t.Errorf("replay returned order %s, want %s", second.Order.ID, first.Order.ID)
	}

	// A replay publishes nothing.
	if got := len(bus.eventNames()); got != 1 {
		t.Errorf("published events = %d, want 1", got)
	}
}

func TestTransitionFulfillment(t *testing.T) {
	repo := newFakeOrderRepo()
	bus := &fakeBus{}
	svc := newTestService(repo, nil, bus)

	tenantID := uuid.New()
	created, err := svc.Create(context.Background(), tenantID, nil, transport.CreateOrderRequest{
		Items: []transport.OrderItemRequest{{Description: "widget", Quantity: 1, UnitPriceCents: 100}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	orderID := created.Order.ID

	resp, err := svc.TransitionFulfillment(context.Background(), tenantID, orderID, nil, transport.TransitionFulfillmentRequest{Status: "CONFIRMED"})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if resp.FulfillmentStatus != "CONFIRMED" {
		t.Errorf("status = %q, want CONFIRMED", resp.FulfillmentStatus)
	}

	// Skipping ahead is rejected.
	_, err = svc.TransitionFulfillment(context.Background(), tenantID, orderID, nil, transport.TransitionFulfillmentRequest{Status: "DELIVERED"})
	if !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("CONFIRMED -> DELIVERED: expected invalid transition, got %v", err)
	}
}

func TestDeliveredUnpaidPublishesFlag(t *testing.T) {
	repo := newFakeOrderRepo()
	bus := &fakeBus{}
	svc := newTestService(repo, nil, bus)

	tenantID := uuid.New()
	created, err := svc.Create(context.Background(), tenantID, nil, transport.CreateOrderRequest{
		Items: []transport.OrderItemRequest{{Description: "widget", Quantity: 1, UnitPriceCents: 100}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	orderID := created.Order.ID

	for _, status := range []string{"CONFIRMED", "SHIPPED", "DELIVERED"} {
		if _, err := svc.TransitionFulfillment(context.Background(), tenantID, orderID, nil, transport.TransitionFulfillmentRequest{Status: status}); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	var sawDeliveredUnpaid bool
	for _, name := range bus.eventNames() {
		if name == "orders.delivered_unpaid" {
			sawDeliveredUnpaid = true
		}
	}
	if !sawDeliveredUnpaid {
		t.Error("delivery of an unpaid order should publish orders.delivered_unpaid")
	}

	timeline, err := svc.Timeline(context.Background(), tenantID, orderID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	// The flag rides on the delivery transition's own entry; no extra event
	// is appended for it.
	last := timeline.Items[len(timeline.Items)-1]
	if last.EventType != repository.EventFulfillmentChanged || last.NewStatus != "DELIVERED" {
		t.Fatalf("last timeline event = %s -> %s, want fulfillment_changed -> DELIVERED", last.EventType, last.NewStatus)
	}
	if last.Description != repository.DescriptionDeliveredUnpaid {
		t.Errorf("delivery entry description = %q, want %q", last.Description, repository.DescriptionDeliveredUnpaid)
	}
	// created + three transitions, one entry each.
	if got := len(timeline.Items); got != 4 {
		t.Errorf("timeline entries = %d, want 4", got)
	}
}

func TestDeliveredPaidDoesNotFlag(t *testing.T) {
	repo := newFakeOrderRepo()
	bus := &fakeBus{}
	svc := newTestService(repo, nil, bus)

	tenantID := uuid.New()
	created, err := svc.Create(context.Background(), tenantID, nil, transport.CreateOrderRequest{
		Items: []transport.OrderItemRequest{{Description: "widget", Quantity: 1, UnitPriceCents: 100}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	orderID := created.Order.ID

	if _, err := svc.TransitionPayment(context.Background(), tenantID, orderID, nil, transport.TransitionPaymentRequest{Status: "PAID"}); err != nil {
		t.Fatalf("pay: %v", err)
	}
	for _, status := range []string{"CONFIRMED", "SHIPPED", "DELIVERED"} {
		if _, err := svc.TransitionFulfillment(context.Background(), tenantID, orderID, nil, transport.TransitionFulfillmentRequest{Status: status}); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	for _, name := range bus.eventNames() {
		if name == "orders.delivered_unpaid" {
			t.Fatal("paid order should not be flagged on delivery")
		}
	}
}

func TestTransitionPaymentGuards(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newTestService(repo, nil, &fakeBus{})

	tenantID := uuid.New()
	created, err := svc.Create(context.Background(), tenantID, nil, transport.CreateOrderRequest{
		Items: []transport.OrderItemRequest{{Description: "widget", Quantity: 1, UnitPriceCents: 100}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	orderID := created.Order.ID

	// Refund before payment is rejected.
	_, err = svc.TransitionPayment(context.Background(), tenantID, orderID, nil, transport.TransitionPaymentRequest{Status: "REFUNDED"})
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("refund of unpaid order: expected invalid state, got %v", err)
	}

	if _, err := svc.TransitionPayment(context.Background(), tenantID, orderID, nil, transport.TransitionPaymentRequest{Status: "PAID"}); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := svc.TransitionPayment(context.Background(), tenantID, orderID, nil, transport.TransitionPaymentRequest{Status: "REFUNDED"}); err != nil {
		t.Fatalf("refund: %v", err)
	}

	// Refunded is final.
	_, err = svc.TransitionPayment(context.Background(), tenantID, orderID, nil, transport.TransitionPaymentRequest{Status: "PAID"})
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("payment after refund: expected invalid state, got %v", err)
	}
}

func TestReplaceItemsRecomputesTotal(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newTestService(repo, nil, &fakeBus{})

	tenantID := uuid.New()
	created, err := svc.Create(context.Background(), tenantID, nil, transport.CreateOrderRequest{
		Items: []transport.OrderItemRequest{{Description: "widget", Quantity: 1, UnitPriceCents: 100}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := svc.ReplaceItems(context.Background(), tenantID, created.Order.ID, nil, transport.UpdateItemsRequest{
		Items: []transport.OrderItemRequest{
			{Description: "widget", Quantity: 3, UnitPriceCents: 100},
			{Description: "gadget", Quantity: 1, UnitPriceCents: 2500},
		},
	})
	if err != nil {
		t.Fatalf("replace items: %v", err)
	}
	if resp.TotalCents != 2800 {
		t.Errorf("total = %d, want 2800", resp.TotalCents)
	}
	if len(resp.Items) != 2 {
		t.Errorf("items = %d, want 2", len(resp.Items))
	}
}

func TestAssignResolvesNames(t *testing.T) {
	repo := newFakeOrderRepo()
	actorID := uuid.New()
	assigneeID := uuid.New()
	dir := &fakeDirectory{names: map[uuid.UUID]string{
		actorID:    "Alex Agent",
		assigneeID: "Billie Backoffice",
	}}
	svc := newTestService(repo, dir, &fakeBus{})

	tenantID := uuid.New()
	created, err := svc.Create(context.Background(), tenantID, nil, transport.CreateOrderRequest{
		Items: []transport.OrderItemRequest{{Description: "widget", Quantity: 1, UnitPriceCents: 100}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := svc.Assign(context.Background(), tenantID, created.Order.ID, &actorID, transport.AssignOrderRequest{AssigneeID: &assigneeID})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if resp.AssignedUserID == nil || *resp.AssignedUserID != assigneeID {
		t.Error("assignee not set")
	}

	timeline, err := svc.Timeline(context.Background(), tenantID, created.Order.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	last := timeline.Items[len(timeline.Items)-1]
	want := "assigned to Billie Backoffice by Alex Agent"
	if last.Description != want {
		t.Errorf("timeline description = %q, want %q", last.Description, want)
	}
}
