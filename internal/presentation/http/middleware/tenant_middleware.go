// Package middleware provides HTTP middleware for the presentation layer.
package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/performance"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
	"github.com/gin-gonic/gin"
)

// TenantMiddleware creates middleware that extracts tenant information and creates a full tenant context.
func TenantMiddleware(tenantManager *tenant.Manager, perfTracker *performance.Tracker) gin.HandlerFunc {
	logger := tenantManager.GetLogger()

	return func(c *gin.Context) {
		start := time.Now()
		marker := perfTracker.StartOperation("middleware_tenant_resolution", "unknown")
		defer marker.Complete()

		tenantID := c.GetHeader("X-Tenant-ID")
		if tenantID == "" {
			tenantID = c.Query("tenantId") // Fallback for SSE
		}

		marker.AddMetadata("path", c.Request.URL.Path)
		marker.AddMetadata("method", c.Request.Method)
		if tenantID != "" {
			marker.TenantID = tenantID
		}

		tenantCtx, err := tenantManager.GetContext(c)
		if err != nil {
			logger.Tenant().Error("Tenant resolution failed", "error", err, "tenantId", tenantID)
			marker.SetSuccess(false)
			marker.SetError(err)
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			c.Abort()
			return
		}

		if !tenantCtx.IsActive() {
			err := errors.New("tenant is not active")
			logger.Tenant().Warn("Request for inactive tenant", "tenantId", tenantCtx.TenantID)
			marker.SetError(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tenant is not active"})
			c.Abort()
			return
		}

		logger.Tenant().Debug("Tenant context resolved successfully",
			"tenantId", tenantCtx.TenantID,
			"duration", time.Since(start),
			"database", tenantCtx.GetDatabaseInfo(),
		)
		marker.SetSuccess(true)

		c.Set("tenant", tenantCtx)

		c.Next()
	}
}

// GetTenantContext retrieves the tenant context from gin context.
func GetTenantContext(c *gin.Context) (*tenant.Context, bool) {
	tenantCtx, exists := c.Get("tenant")
	if !exists {
		return nil, false
	}

	ctx, ok := tenantCtx.(*tenant.Context)
	return ctx, ok
}
