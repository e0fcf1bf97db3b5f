package handlers

import (
	"net/http"

	"github.com/PrepDeckHQ/prepdeck-go/internal/application/services"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/performance"
	"github.com/PrepDeckHQ/prepdeck-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// FeatureHandlers contains child feature HTTP handlers
type FeatureHandlers struct {
	featureService *services.ChildFeatureService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewFeatureHandlers creates feature handlers with injected dependencies
func NewFeatureHandlers(featureService *services.ChildFeatureService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *FeatureHandlers {
	return &FeatureHandlers{
		featureService: featureService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// PostChildFeature handles POST /api/v1/preps/:id/features/:feature
func (h *FeatureHandlers) PostChildFeature(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	prepID, ok := prepIDParam(c)
	if !ok {
		return
	}
	feature := c.Param("feature")

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company and role are required"})
		return
	}

	payload, cached, err := h.featureService.Generate(c.Request.Context(), tenantCtx, prepID, feature, req.briefing())
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feature": feature,
		"cached":  cached,
		"payload": payload,
	})
}

// GetFeatureProgress handles GET /api/v1/preps/:id/features/:feature/progress
func (h *FeatureHandlers) GetFeatureProgress(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	prepID, ok := prepIDParam(c)
	if !ok {
		return
	}
	feature := c.Param("feature")

	status, found := h.featureService.Progress(tenantCtx.TenantID, prepID, feature)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no feature generation for this prep"})
		return
	}

	c.JSON(http.StatusOK, status)
}
