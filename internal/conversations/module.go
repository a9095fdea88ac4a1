// Package conversations provides the conversation registry bounded context:
// the single write path for channel messages, the inbox read surface, and
// data retention.
package conversations

import (
	"inbox_crm_backend/internal/adapters/storage"
	"inbox_crm_backend/internal/conversations/handler"
	"inbox_crm_backend/internal/conversations/repository"
	"inbox_crm_backend/internal/conversations/service"
	"inbox_crm_backend/internal/events"
	apphttp "inbox_crm_backend/internal/http"
	"inbox_crm_backend/platform/logger"
	"inbox_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the conversations bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Registry
	repo    repository.Repository
}

// NewModule creates and initializes the conversations module.
// store may be nil when MinIO is not configured.
func NewModule(pool *pgxpool.Pool, store storage.StorageService, bucket string, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, store, bucket, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "conversations"
}

// Service returns the registry for external use (ingestion, scheduler).
func (m *Module) Service() *service.Registry {
	return m.service
}

// RegisterRoutes mounts conversation routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/conversations")
	group.GET("", m.handler.List)
	group.GET("/:id", m.handler.GetByID)
	group.DELETE("/:id", m.handler.Delete)
	group.GET("/:id/messages", m.handler.ListMessages)
	group.POST("/:id/messages", m.handler.SendMessage)
	group.POST("/:id/attachments", m.handler.UploadAttachment)
	group.POST("/:id/read", m.handler.MarkRead)
	group.POST("/:id/archive", m.handler.Archive)
	group.PUT("/:id/intent", m.handler.UpsertIntent)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
