// Package ingestion provides the message ingestion bounded context: webhook
// intake of raw channel events, API key authentication for integrations, and
// the gateway that turns events into conversation messages.
package ingestion

import (
	"inbox_crm_backend/internal/events"
	apphttp "inbox_crm_backend/internal/http"
	"inbox_crm_backend/internal/ingestion/apikeys"
	"inbox_crm_backend/internal/ingestion/handler"
	"inbox_crm_backend/internal/ingestion/service"
	"inbox_crm_backend/platform/logger"
	"inbox_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the ingestion bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	gateway *service.Gateway
	keys    *apikeys.Repository
}

// NewModule creates and initializes the ingestion module. enqueuer may be
// nil; async must be false then.
func NewModule(
	pool *pgxpool.Pool,
	resolver service.RecipientResolver,
	appender service.ConversationAppender,
	enqueuer handler.EventEnqueuer,
	async bool,
	region string,
	bus events.Bus,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	keys := apikeys.NewRepository(pool)
	gateway := service.New(resolver, appender, bus, log, region)
	h := handler.New(gateway, keys, enqueuer, async, val)

	return &Module{
		handler: h,
		gateway: gateway,
		keys:    keys,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "ingestion"
}

// Gateway returns the ingestion gateway for external use (task workers).
func (m *Module) Gateway() *service.Gateway {
	return m.gateway
}

// RegisterRoutes mounts webhook intake and key management routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.POST("/events", APIKeyAuth(m.keys), m.handler.IngestEvent)

	group := ctx.Protected.Group("/ingest/keys")
	group.GET("", m.handler.ListKeys)
	group.POST("", m.handler.CreateKey)
	group.DELETE("/:id", m.handler.RevokeKey)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
