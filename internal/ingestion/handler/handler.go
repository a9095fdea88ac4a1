package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inbox_crm_backend/internal/ingestion/apikeys"
	"inbox_crm_backend/internal/ingestion/service"
	"inbox_crm_backend/internal/ingestion/transport"
	"inbox_crm_backend/platform/httpkit"
	"inbox_crm_backend/platform/validator"
)

// EventEnqueuer hands a raw event to the task queue for asynchronous
// processing.
type EventEnqueuer interface {
	EnqueueIngestEvent(ctx context.Context, tenantID uuid.UUID, event transport.RawEvent) error
}

// Handler handles webhook deliveries and ingest API key management.
type Handler struct {
	gateway  *service.Gateway
	keys     *apikeys.Repository
	enqueuer EventEnqueuer
	async    bool
	val      *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// New creates a new ingestion handler. enqueuer may be nil; events are then
// always applied in the request path.
func New(gateway *service.Gateway, keys *apikeys.Repository, enqueuer EventEnqueuer, async bool, val *validator.Validator) *Handler {
	return &Handler{gateway: gateway, keys: keys, enqueuer: enqueuer, async: async, val: val}
}

// IngestEvent accepts one raw channel event.
// POST /api/v1/webhooks/events
func (h *Handler) IngestEvent(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}

	var raw transport.RawEvent
	if err := c.ShouldBindJSON(&raw); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(raw); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if h.async && h.enqueuer != nil {
		if err := h.enqueuer.EnqueueIngestEvent(c.Request.Context(), tenantID, raw); err != nil {
			httpkit.Error(c, http.StatusServiceUnavailable, "event could not be queued", nil)
			return
		}
		httpkit.JSON(c, http.StatusAccepted, gin.H{"status": "queued"})
		return
	}

	result, err := h.gateway.Ingest(c.Request.Context(), &tenantID, raw)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CreateKey issues a new ingest API key. The plaintext key appears in this
// response only.
// POST /api/v1/ingest/keys
func (h *Handler) CreateKey(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	plaintext, hash, prefix, err := apikeys.GenerateKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "key generation failed", nil)
		return
	}

	key, err := h.keys.Create(c.Request.Context(), identity.TenantID(), hash, prefix, req.Label)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := toKeyResponse(key)
	resp.Key = plaintext
	httpkit.JSON(c, http.StatusCreated, resp)
}

// ListKeys lists the tenant's ingest API keys.
// GET /api/v1/ingest/keys
func (h *Handler) ListKeys(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	keys, err := h.keys.ListByTenant(c.Request.Context(), identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.KeyListResponse{Items: make([]transport.KeyResponse, len(keys))}
	for i, key := range keys {
		resp.Items[i] = toKeyResponse(key)
	}
	httpkit.OK(c, resp)
}

// RevokeKey permanently disables an ingest API key.
// DELETE /api/v1/ingest/keys/:id
func (h *Handler) RevokeKey(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key ID", nil)
		return
	}

	if httpkit.HandleError(c, h.keys.Revoke(c.Request.Context(), identity.TenantID(), id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

func tenantFromContext(c *gin.Context) (uuid.UUID, bool) {
	value, ok := c.Get("ingestTenantID")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, false
	}
	tenantID, ok := value.(uuid.UUID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, false
	}
	return tenantID, true
}

func toKeyResponse(key apikeys.Key) transport.KeyResponse {
	return transport.KeyResponse{
		ID:        key.ID,
		KeyPrefix: key.KeyPrefix,
		Label:     key.Label,
		Revoked:   key.RevokedAt != nil,
		CreatedAt: key.CreatedAt.Format(time.RFC3339),
	}
}
