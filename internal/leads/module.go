// Package leads provides the lead bounded context: lead lifecycle with
// single-open-lead supersession, explicit closes, and automatic lead opening
// from qualifying inbound messages.
package leads

import (
	"inbox_crm_backend/internal/events"
	apphttp "inbox_crm_backend/internal/http"
	"inbox_crm_backend/internal/leads/handler"
	"inbox_crm_backend/internal/leads/repository"
	"inbox_crm_backend/internal/leads/service"
	"inbox_crm_backend/platform/logger"
	"inbox_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.Repository
}

// NewModule creates and initializes the leads module with all its
// dependencies. policy may be nil to disable automatic lead opening.
func NewModule(pool *pgxpool.Pool, policy service.EligibilityPolicy, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, policy, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/leads")
	group.GET("", m.handler.List)
	group.POST("", m.handler.Create)
	group.GET("/:id", m.handler.GetByID)
	group.POST("/:id/close", m.handler.Close)
}

// RegisterHandlers subscribes the module to domain events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	m.service.RegisterHandlers(bus)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
