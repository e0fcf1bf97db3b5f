package handlers

import (
	"net/http"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/application/container"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
	"github.com/gin-gonic/gin"
)

// HealthHandlers contains health and readiness HTTP handlers
type HealthHandlers struct {
	container *container.Container
	startTime time.Time
}

// NewHealthHandlers creates health handlers
func NewHealthHandlers(container *container.Container) *HealthHandlers {
	return &HealthHandlers{container: container, startTime: time.Now().UTC()}
}

// GetHealth handles GET /health
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	activeTenants, err := h.container.TenantManager.GetActiveTenantCount()
	status := "ok"
	if err != nil {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"uptimeSeconds": int(time.Since(h.startTime).Seconds()),
		"activeTenants": activeTenants,
		"dbPools":       tenant.GetPoolStats(),
	})
}
