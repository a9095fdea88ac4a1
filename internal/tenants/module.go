// Package tenants provides the tenant bounded context: business registration,
// channel identity binding, and recipient resolution for inbound events.
package tenants

import (
	"time"

	"inbox_crm_backend/internal/events"
	apphttp "inbox_crm_backend/internal/http"
	"inbox_crm_backend/internal/tenants/handler"
	"inbox_crm_backend/internal/tenants/repository"
	"inbox_crm_backend/internal/tenants/service"
	"inbox_crm_backend/internal/tenants/tokens"
	"inbox_crm_backend/platform/logger"
	"inbox_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Module is the tenants bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.Repository
}

// NewModule creates and initializes the tenants module with all its dependencies.
// redisClient may be nil; connect token endpoints are then unavailable.
func NewModule(pool *pgxpool.Pool, redisClient *redis.Client, tokenTTL time.Duration, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)

	var store service.TokenStore
	if redisClient != nil {
		store = tokens.NewStore(redisClient, tokenTTL)
	}

	svc := service.New(repo, store, tokenTTL, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "tenants"
}

// Service returns the service layer for external use (recipient resolution).
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts tenant routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/tenants")
	group.GET("", m.handler.List)
	group.POST("", m.handler.Create)
	group.GET("/:id", m.handler.GetByID)
	group.PATCH("/:id", m.handler.Update)
	group.POST("/:id/channel/connect", m.handler.IssueConnectToken)

	ctx.Protected.POST("/channel/connect/complete", m.handler.CompleteConnect)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
