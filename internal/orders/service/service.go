package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"inbox_crm_backend/internal/events"
	"inbox_crm_backend/internal/orders/domain"
	"inbox_crm_backend/internal/orders/repository"
	"inbox_crm_backend/internal/orders/transport"
	"inbox_crm_backend/platform/apperr"
	"inbox_crm_backend/platform/logger"
	"inbox_crm_backend/platform/sanitize"
)

// UserDirectory resolves user IDs to display names for timeline entries.
type UserDirectory interface {
	DisplayName(ctx context.Context, tenantID, userID uuid.UUID) (string, error)
}

// Service owns the order lifecycle: idempotent creation with lead conversion,
// the two independent status tracks, and order edits.
type Service struct {
	repo      repository.Repository
	directory UserDirectory
	bus       events.Bus
	log       *logger.Logger
}

// New creates a new orders service. directory may be nil; timeline entries
// then fall back to bare IDs.
func New(repo repository.Repository, directory UserDirectory, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, directory: directory, bus: bus, log: log}
}

// Create creates an order. A replayed idempotency key returns the original
// order and publishes nothing.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, actorUserID *uuid.UUID, req transport.CreateOrderRequest) (transport.CreateOrderResponse, error) {
	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}

	items := make([]domain.Item, len(req.Items))
	for i, item := range req.Items {
		items[i] = domain.Item{
			Description:    sanitize.Text(item.Description),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}

	params := repository.CreateParams{
		TenantID:        tenantID,
		ConversationID:  req.ConversationID,
		LeadID:          req.LeadID,
		IdempotencyKey:  req.IdempotencyKey,
		ExternalRef:     req.ExternalRef,
		PaymentMethod:   req.PaymentMethod,
		CustomerName:    sanitize.Text(req.CustomerName),
		CustomerRef:     req.CustomerRef,
		ShippingAddress: sanitize.Text(req.ShippingAddress),
		Items:           items,
		TotalCents:      req.TotalCents,
		Currency:        currency,
		ActorUserID:     actorUserID,
	}

	result, err := s.repo.Create(ctx, params)
	if err != nil && req.IdempotencyKey != nil && apperr.Is(err, apperr.KindConflict) {
		// Lost the insert race against a retry with the same key; the
		// replay path now finds the winner's order.
		result, err = s.repo.Create(ctx, params)
	}
	if err != nil {
		return transport.CreateOrderResponse{}, err
	}

	if !result.Replayed {
		s.publishCreated(ctx, result.Order)
	}

	return transport.CreateOrderResponse{
		Order:    toOrderResponse(result.Order, result.Items),
		Replayed: result.Replayed,
	}, nil
}

func (s *Service) publishCreated(ctx context.Context, order repository.Order) {
	var conversationID, leadID uuid.UUID
	if order.ConversationID != nil {
		conversationID = *order.ConversationID
	}
	if order.LeadID != nil {
		leadID = *order.LeadID
	}

	s.bus.Publish(ctx, events.OrderCreated{
		BaseEvent:      events.NewBaseEvent(),
		OrderID:        order.ID,
		LeadID:         leadID,
		ConversationID: conversationID,
		TenantID:       order.TenantID,
		TotalCents:     order.TotalCents,
		Currency:       order.Currency,
	})

	if order.LeadID != nil {
		s.bus.Publish(ctx, events.LeadConverted{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         *order.LeadID,
			OrderID:        order.ID,
			ConversationID: conversationID,
			TenantID:       order.TenantID,
		})
	}
}

// GetByID retrieves an order with its items.
func (s *Service) GetByID(ctx context.Context, tenantID, id uuid.UUID) (transport.OrderResponse, error) {
	order, items, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.OrderResponse{}, err
	}
	return toOrderResponse(order, items), nil
}

// List retrieves orders with optional filters, most recent first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, req transport.ListOrdersRequest) (transport.OrderListResponse, error) {
	page := req.Page
	pageSize := req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	params := repository.ListParams{
		TenantID:       tenantID,
		ConversationID: req.ConversationID,
		Limit:          pageSize,
		Offset:         (page - 1) * pageSize,
	}
	if req.FulfillmentStatus != nil {
		parsed, err := domain.ParseFulfillmentStatus(*req.FulfillmentStatus)
		if err != nil {
			return transport.OrderListResponse{}, err
		}
		params.FulfillmentStatus = &parsed
	}
	if req.PaymentStatus != nil {
		parsed, err := domain.ParsePaymentStatus(*req.PaymentStatus)
		if err != nil {
			return transport.OrderListResponse{}, err
		}
		params.PaymentStatus = &parsed
	}

	items, total, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.OrderListResponse{}, err
	}

	responses := make([]transport.OrderResponse, len(items))
	for i, item := range items {
		responses[i] = toOrderResponse(item, nil)
	}

	return transport.OrderListResponse{
		Items:    responses,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Timeline retrieves the order history in append order.
func (s *Service) Timeline(ctx context.Context, tenantID, id uuid.UUID) (transport.TimelineResponse, error) {
	entries, err := s.repo.ListTimeline(ctx, tenantID, id)
	if err != nil {
		return transport.TimelineResponse{}, err
	}

	responses := make([]transport.TimelineEventResponse, len(entries))
	for i, e := range entries {
		responses[i] = transport.TimelineEventResponse{
			ID:          e.ID,
			EventType:   e.EventType,
			Track:       e.Track,
			OldStatus:   e.OldStatus,
			NewStatus:   e.NewStatus,
			ActorUserID: e.ActorUserID,
			Description: e.Description,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		}
	}
	return transport.TimelineResponse{Items: responses}, nil
}

// TransitionFulfillment moves the fulfillment track one step.
func (s *Service) TransitionFulfillment(ctx context.Context, tenantID, id uuid.UUID, actorUserID *uuid.UUID, req transport.TransitionFulfillmentRequest) (transport.OrderResponse, error) {
	target, err := domain.ParseFulfillmentStatus(req.Status)
	if err != nil {
		return transport.OrderResponse{}, err
	}

	result, err := s.repo.TransitionFulfillment(ctx, tenantID, id, target, actorUserID)
	if err != nil {
		return transport.OrderResponse{}, err
	}

	s.bus.Publish(ctx, events.OrderFulfillmentChanged{
		BaseEvent: events.NewBaseEvent(),
		OrderID:   result.Order.ID,
		TenantID:  result.Order.TenantID,
		OldStatus: result.OldStatus,
		NewStatus: string(target),
	})

	if result.DeliveredUnpaid {
		s.log.Warn("order delivered while unpaid", "order_id", result.Order.ID)
		s.bus.Publish(ctx, events.OrderDeliveredUnpaid{
			BaseEvent: events.NewBaseEvent(),
			OrderID:   result.Order.ID,
			TenantID:  result.Order.TenantID,
		})
	}

	return toOrderResponse(result.Order, nil), nil
}

// TransitionPayment sets the payment track.
func (s *Service) TransitionPayment(ctx context.Context, tenantID, id uuid.UUID, actorUserID *uuid.UUID, req transport.TransitionPaymentRequest) (transport.OrderResponse, error) {
	target, err := domain.ParsePaymentStatus(req.Status)
	if err != nil {
		return transport.OrderResponse{}, err
	}

	result, err := s.repo.TransitionPayment(ctx, tenantID, id, target, actorUserID)
	if err != nil {
		return transport.OrderResponse{}, err
	}

	s.bus.Publish(ctx, events.OrderPaymentChanged{
		BaseEvent: events.NewBaseEvent(),
		OrderID:   result.Order.ID,
		TenantID:  result.Order.TenantID,
		OldStatus: result.OldStatus,
		NewStatus: string(target),
	})

	return toOrderResponse(result.Order, nil), nil
}

// ReplaceItems swaps the order lines and recomputes the total.
func (s *Service) ReplaceItems(ctx context.Context, tenantID, id uuid.UUID, actorUserID *uuid.UUID, req transport.UpdateItemsRequest) (transport.OrderResponse, error) {
	items := make([]domain.Item, len(req.Items))
	for i, item := range req.Items {
		items[i] = domain.Item{
			Description:    sanitize.Text(item.Description),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}

	order, stored, err := s.repo.ReplaceItems(ctx, tenantID, id, items, actorUserID)
	if err != nil {
		return transport.OrderResponse{}, err
	}
	return toOrderResponse(order, stored), nil
}

// UpdateShipping changes the shipping address.
func (s *Service) UpdateShipping(ctx context.Context, tenantID, id uuid.UUID, actorUserID *uuid.UUID, req transport.UpdateShippingRequest) (transport.OrderResponse, error) {
	order, err := s.repo.UpdateShipping(ctx, tenantID, id, sanitize.Text(req.ShippingAddress), actorUserID)
	if err != nil {
		return transport.OrderResponse{}, err
	}
	return toOrderResponse(order, nil), nil
}

// Assign sets or clears the order's assignee. Display names on the timeline
// are best effort; a directory failure never blocks the assignment.
func (s *Service) Assign(ctx context.Context, tenantID, id uuid.UUID, actorUserID *uuid.UUID, req transport.AssignOrderRequest) (transport.OrderResponse, error) {
	description := "order unassigned"
	if req.AssigneeID != nil {
		description = fmt.Sprintf("assigned to %s", s.resolveName(ctx, tenantID, *req.AssigneeID))
	}
	if actorUserID != nil {
		description += fmt.Sprintf(" by %s", s.resolveName(ctx, tenantID, *actorUserID))
	}

	order, err := s.repo.Assign(ctx, tenantID, id, req.AssigneeID, actorUserID, description)
	if err != nil {
		return transport.OrderResponse{}, err
	}
	return toOrderResponse(order, nil), nil
}

func (s *Service) resolveName(ctx context.Context, tenantID, userID uuid.UUID) string {
	if s.directory == nil {
		return userID.String()
	}
	name, err := s.directory.DisplayName(ctx, tenantID, userID)
	if err != nil || name == "" {
		return "unknown user"
	}
	return name
}

func toOrderResponse(o repository.Order, items []repository.OrderItem) transport.OrderResponse {
	resp := transport.OrderResponse{
		ID:                o.ID,
		ConversationID:    o.ConversationID,
		LeadID:            o.LeadID,
		ExternalRef:       o.ExternalRef,
		PaymentMethod:     o.PaymentMethod,
		CustomerName:      o.CustomerName,
		CustomerRef:       o.CustomerRef,
		ShippingAddress:   o.ShippingAddress,
		FulfillmentStatus: string(o.FulfillmentStatus),
		PaymentStatus:     string(o.PaymentStatus),
		TotalCents:        o.TotalCents,
		Currency:          o.Currency,
		AssignedUserID:    o.AssignedUserID,
		CreatedAt:         o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         o.UpdatedAt.Format(time.RFC3339),
	}
	if o.PaidAt != nil {
		formatted := o.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &formatted
	}
	for _, item := range items {
		resp.Items = append(resp.Items, transport.OrderItemResponse{
			ID:             item.ID,
			Description:    item.Description,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return resp
}
