package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inbox_crm_backend/internal/orders/service"
	"inbox_crm_backend/internal/orders/transport"
	"inbox_crm_backend/platform/httpkit"
	"inbox_crm_backend/platform/validator"
)

// Handler handles HTTP requests for order management.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid order ID"
)

// New creates a new orders handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Create creates an order, optionally converting a lead.
// POST /api/v1/orders
func (h *Handler) Create(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	actor := identity.UserID()
	result, err := h.svc.Create(c.Request.Context(), identity.TenantID(), &actor, req)
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httpkit.JSON(c, status, result)
}

// List retrieves orders with optional filters.
// GET /api/v1/orders
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.List(c.Request.Context(), identity.TenantID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetByID retrieves an order with its items.
// GET /api/v1/orders/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	result, err := h.svc.GetByID(c.Request.Context(), identity.TenantID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Timeline retrieves the order history.
// GET /api/v1/orders/:id/timeline
func (h *Handler) Timeline(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	result, err := h.svc.Timeline(c.Request.Context(), identity.TenantID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// TransitionFulfillment moves the fulfillment track one step.
// POST /api/v1/orders/:id/fulfillment
func (h *Handler) TransitionFulfillment(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	var req transport.TransitionFulfillmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	actor := identity.UserID()
	result, err := h.svc.TransitionFulfillment(c.Request.Context(), identity.TenantID(), id, &actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// TransitionPayment sets the payment track.
// POST /api/v1/orders/:id/payment
func (h *Handler) TransitionPayment(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	var req transport.TransitionPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	actor := identity.UserID()
	result, err := h.svc.TransitionPayment(c.Request.Context(), identity.TenantID(), id, &actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ReplaceItems swaps the order lines.
// PUT /api/v1/orders/:id/items
func (h *Handler) ReplaceItems(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	var req transport.UpdateItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	actor := identity.UserID()
	result, err := h.svc.ReplaceItems(c.Request.Context(), identity.TenantID(), id, &actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// UpdateShipping changes the shipping address.
// PUT /api/v1/orders/:id/shipping
func (h *Handler) UpdateShipping(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	var req transport.UpdateShippingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	actor := identity.UserID()
	result, err := h.svc.UpdateShipping(c.Request.Context(), identity.TenantID(), id, &actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Assign sets or clears the order's assignee.
// PUT /api/v1/orders/:id/assignee
func (h *Handler) Assign(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	var req transport.AssignOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	actor := identity.UserID()
	result, err := h.svc.Assign(c.Request.Context(), identity.TenantID(), id, &actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) parseIDAndIdentity(c *gin.Context) (uuid.UUID, httpkit.Identity, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.Nil, nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.Nil, nil, false
	}
	return id, identity, true
}
