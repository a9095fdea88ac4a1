package ingestion

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inbox_crm_backend/internal/ingestion/apikeys"
)

// ContextTenantKey is the gin context key holding the tenant authenticated by
// an ingest API key.
const ContextTenantKey = "ingestTenantID"

// APIKeyAuth validates the X-Ingest-API-Key header and sets the owning tenant
// on the gin context.
func APIKeyAuth(repo *apikeys.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-Ingest-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		key, err := repo.GetByHash(c.Request.Context(), apikeys.HashKey(apiKey))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Set(ContextTenantKey, key.TenantID)
		c.Next()
	}
}
