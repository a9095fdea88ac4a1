// Package auth provides the authentication bounded context: login with
// password verification, access token issuance, and tenant user management.
package auth

import (
	apphttp "inbox_crm_backend/internal/http"
	"inbox_crm_backend/internal/auth/handler"
	"inbox_crm_backend/internal/auth/repository"
	"inbox_crm_backend/internal/auth/service"
	"inbox_crm_backend/platform/config"
	"inbox_crm_backend/platform/httpkit"
	"inbox_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the auth bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates and initializes the auth module with all its dependencies.
func NewModule(pool *pgxpool.Pool, cfg config.AuthServiceConfig, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, cfg)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "auth"
}

// Repository returns the user repository for external use (name resolution).
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts auth routes. Login is rate limited per IP.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.POST("/auth/login", ctx.AuthRateLimiter.RateLimit(), m.handler.Login)
	ctx.Protected.GET("/auth/me", m.handler.Me)

	users := ctx.Protected.Group("/users")
	users.GET("", m.handler.ListUsers)
	users.GET("/:id", m.handler.GetUser)
	users.POST("", httpkit.RequireRole("admin"), m.handler.CreateUser)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
