package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inbox_crm_backend/internal/conversations/service"
	"inbox_crm_backend/internal/conversations/transport"
	"inbox_crm_backend/platform/httpkit"
	"inbox_crm_backend/platform/validator"
)

// Handler handles HTTP requests for conversations.
type Handler struct {
	svc *service.Registry
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid conversation ID"
)

// New creates a new conversations handler.
func New(svc *service.Registry, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// List retrieves conversations for the tenant.
// GET /api/v1/conversations
func (h *Handler) List(c *gin.Context) {
	var req transport.ListConversationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.List(c.Request.Context(), identity.TenantID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetByID retrieves one conversation.
// GET /api/v1/conversations/:id
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

// ListMessages retrieves the messages of a conversation.
// GET /api/v1/conversations/:id/messages
func (h *Handler) ListMessages(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	var query struct {
		Limit  int `form:"limit"`
		Offset int `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	result, err := h.svc.ListMessages(c.Request.Context(), identity.TenantID(), id, query.Limit, query.Offset)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// SendMessage appends an outbound message authored by the agent.
// POST /api/v1/conversations/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	var req transport.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.SendMessage(c.Request.Context(), identity.TenantID(), id, identity.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// UploadAttachment stores an attachment for a later outbound message.
// POST /api/v1/conversations/:id/attachments
func (h *Handler) UploadAttachment(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "file is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "could not read file", nil)
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	result, err := h.svc.UploadAttachment(c.Request.Context(), identity.TenantID(), id, fileHeader.Filename, contentType, file, fileHeader.Size)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// MarkRead clears the unread counter.
// POST /api/v1/conversations/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.MarkRead(c.Request.Context(), identity.TenantID(), id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Archive archives a conversation.
// POST /api/v1/conversations/:id/archive
func (h *Handler) Archive(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.Archive(c.Request.Context(), identity.TenantID(), id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete soft-deletes a conversation; the retention sweep purges it later.
// DELETE /api/v1/conversations/:id
func (h *Handler) Delete(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.SoftDelete(c.Request.Context(), identity.TenantID(), id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// UpsertIntent records an externally evaluated intent classification.
// PUT /api/v1/conversations/:id/intent
func (h *Handler) UpsertIntent(c *gin.Context) {
	id, identity, ok := h.parseIDAndIdentity(c)
	if !ok {
		return
	}

	var req transport.UpsertIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if httpkit.HandleError(c, h.svc.UpsertIntent(c.Request.Context(), identity.TenantID(), id, req)) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) parseIDAndIdentity(c *gin.Context) (uuid.UUID, httpkit.Identity, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.Nil, nil, false
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.Nil, nil, false
	}
	return id, identity, true
}
