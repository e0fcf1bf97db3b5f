package handlers

import (
	"net/http"

	"github.com/PrepDeckHQ/prepdeck-go/internal/application/services"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/performance"
	"github.com/PrepDeckHQ/prepdeck-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// VisitHandlers contains visit and session HTTP handlers
type VisitHandlers struct {
	sessionService *services.SessionService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewVisitHandlers creates visit handlers with injected dependencies
func NewVisitHandlers(sessionService *services.SessionService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *VisitHandlers {
	return &VisitHandlers{
		sessionService: sessionService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// VisitRequest optionally joins an existing session.
type VisitRequest struct {
	SessionID string `json:"sessionId"`
}

// PostVisit handles POST /api/v1/auth/visit
func (h *VisitHandlers) PostVisit(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	marker := h.perfTracker.StartOperation("post_visit_request", tenantCtx.TenantID)
	defer marker.Complete()

	var req VisitRequest
	_ = c.ShouldBindJSON(&req) // empty body means a fresh session

	result, err := h.sessionService.CreateVisit(tenantCtx, req.SessionID)
	if err != nil {
		marker.SetError(err)
		h.logger.LogError(logging.ChannelTenant, "create_visit", err, tenantCtx.TenantID, nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create visit"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, result)
}
