package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/PrepDeckHQ/prepdeck-go/internal/application/services"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/performance"
	"github.com/PrepDeckHQ/prepdeck-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// DraftHandlers contains user draft HTTP handlers
type DraftHandlers struct {
	draftService *services.DraftService
	prepService  *services.PrepService
	logger       *logging.ChanneledLogger
	perfTracker  *performance.Tracker
}

// NewDraftHandlers creates draft handlers with injected dependencies
func NewDraftHandlers(draftService *services.DraftService, prepService *services.PrepService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *DraftHandlers {
	return &DraftHandlers{
		draftService: draftService,
		prepService:  prepService,
		logger:       logger,
		perfTracker:  perfTracker,
	}
}

// PatchDraftField handles PATCH /api/v1/preps/:id/draft/:field - the body
// is the raw JSON value for the named field.
func (h *DraftHandlers) PatchDraftField(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	prepID, ok := prepIDParam(c)
	if !ok {
		return
	}
	field := c.Param("field")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be valid JSON"})
		return
	}

	if err := h.draftService.WriteField(tenantCtx, prepID, field, json.RawMessage(body)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The mirror already holds the edit; the durable write is debounced.
	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "field": field})
}

// GetDraft handles GET /api/v1/preps/:id/draft
func (h *DraftHandlers) GetDraft(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	prepID, ok := prepIDParam(c)
	if !ok {
		return
	}

	draft, err := h.prepService.GetDraft(tenantCtx, prepID)
	if err != nil {
		h.logger.LogError(logging.ChannelDraft, "get_draft", err, tenantCtx.TenantID,
			map[string]any{"prepId": prepID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load draft"})
		return
	}

	c.JSON(http.StatusOK, draft)
}
