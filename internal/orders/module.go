// Package orders provides the order bounded context: idempotent order
// creation with transactional lead conversion, independent fulfillment and
// payment tracks, and an append-only timeline.
package orders

import (
	"inbox_crm_backend/internal/events"
	apphttp "inbox_crm_backend/internal/http"
	"inbox_crm_backend/internal/orders/handler"
	"inbox_crm_backend/internal/orders/repository"
	"inbox_crm_backend/internal/orders/service"
	"inbox_crm_backend/platform/logger"
	"inbox_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the orders bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.Repository
}

// NewModule creates and initializes the orders module with all its
// dependencies. directory may be nil; timeline entries then show bare IDs.
func NewModule(pool *pgxpool.Pool, directory service.UserDirectory, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, directory, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "orders"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts order routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/orders")
	group.GET("", m.handler.List)
	group.POST("", m.handler.Create)
	group.GET("/:id", m.handler.GetByID)
	group.GET("/:id/timeline", m.handler.Timeline)
	group.POST("/:id/fulfillment", m.handler.TransitionFulfillment)
	group.POST("/:id/payment", m.handler.TransitionPayment)
	group.PUT("/:id/items", m.handler.ReplaceItems)
	group.PUT("/:id/shipping", m.handler.UpdateShipping)
	group.PUT("/:id/assignee", m.handler.Assign)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
