// Package handlers provides HTTP handlers for the presentation layer.
package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/application/services"
	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/messaging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/performance"
	"github.com/PrepDeckHQ/prepdeck-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// PrepHandlers contains prep record and generation HTTP handlers
type PrepHandlers struct {
	generationService *services.GenerationService
	prepService       *services.PrepService
	reminderService   *services.ReminderService
	broadcaster       *messaging.SSEBroadcaster
	logger            *logging.ChanneledLogger
	perfTracker       *performance.Tracker
}

// NewPrepHandlers creates prep handlers with injected dependencies
func NewPrepHandlers(
	generationService *services.GenerationService,
	prepService *services.PrepService,
	reminderService *services.ReminderService,
	broadcaster *messaging.SSEBroadcaster,
	logger *logging.ChanneledLogger,
	perfTracker *performance.Tracker,
) *PrepHandlers {
	return &PrepHandlers{
		generationService: generationService,
		prepService:       prepService,
		reminderService:   reminderService,
		broadcaster:       broadcaster,
		logger:            logger,
		perfTracker:       perfTracker,
	}
}

func prepIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prep id"})
		return 0, false
	}
	return id, true
}

// GenerateRequest carries the briefing for a generation run.
type GenerateRequest struct {
	Company  string `json:"company" binding:"required"`
	Role     string `json:"role" binding:"required"`
	JobDesc  string `json:"jobDescription"`
	Industry string `json:"industry"`
}

func (r GenerateRequest) briefing() prep.Briefing {
	return prep.Briefing{
		Company:  r.Company,
		Role:     r.Role,
		JobDesc:  r.JobDesc,
		Industry: r.Industry,
	}
}

// GetPrep handles GET /api/v1/preps/:id
func (h *PrepHandlers) GetPrep(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	prepID, ok := prepIDParam(c)
	if !ok {
		return
	}

	record, err := h.prepService.GetRecord(tenantCtx, prepID)
	if err != nil {
		h.logger.LogError(logging.ChannelCache, "get_prep", err, tenantCtx.TenantID,
			map[string]any{"prepId": prepID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load prep record"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// PostGenerate handles POST /api/v1/preps/:id/generate
func (h *PrepHandlers) PostGenerate(c *gin.Context) {
	h.startGeneration(c, false)
}

// PostRegenerate handles POST /api/v1/preps/:id/regenerate - skips the
// cache check and overwrites research, leaving the user draft intact.
func (h *PrepHandlers) PostRegenerate(c *gin.Context) {
	h.startGeneration(c, true)
}

func (h *PrepHandlers) startGeneration(c *gin.Context, force bool) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	prepID, ok := prepIDParam(c)
	if !ok {
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company and role are required"})
		return
	}

	started, err := h.generationService.StartGeneration(tenantCtx, prepID, req.briefing(), force)
	if err != nil {
		h.logger.LogError(logging.ChannelGeneration, "start_generation", err, tenantCtx.TenantID,
			map[string]any{"prepId": prepID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start generation"})
		return
	}

	if !started {
		// Either research is already cached or a run is in flight; both
		// are successful no-ops for the caller.
		c.JSON(http.StatusOK, gin.H{
			"started":    false,
			"generating": h.generationService.IsGenerating(tenantCtx.TenantID, prepID),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"started": true, "generating": true})
}

// GetProgress handles GET /api/v1/preps/:id/progress
func (h *PrepHandlers) GetProgress(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	prepID, ok := prepIDParam(c)
	if !ok {
		return
	}

	status, found := h.generationService.Progress(tenantCtx.TenantID, prepID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no generation run for this prep"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetGenerateStream handles GET /api/v1/preps/:id/generate/stream - SSE
// stream of progress events for one prep's generation run.
func (h *PrepHandlers) GetGenerateStream(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	prepID, ok := prepIDParam(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	ch := h.broadcaster.AddClient(tenantCtx.TenantID, prepID)
	defer h.broadcaster.RemoveClient(ch, tenantCtx.TenantID, prepID)

	fmt.Fprintf(c.Writer, ": connection established\n\n")
	c.Writer.Flush()

	// Replay the current snapshot so a late subscriber is not blank until
	// the next stage settles.
	if status, found := h.generationService.Progress(tenantCtx.TenantID, prepID); found {
		h.broadcaster.BroadcastProgress(tenantCtx.TenantID, prepID, status)
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, open := <-ch:
			if !open {
				return false
			}
			fmt.Fprint(w, message)
			return true
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ReminderRequest carries the reminder email details.
type ReminderRequest struct {
	Email   string `json:"email" binding:"required"`
	Name    string `json:"name"`
	PrepURL string `json:"prepUrl"`
	Company string `json:"company" binding:"required"`
	Role    string `json:"role" binding:"required"`
}

// PostReminder handles POST /api/v1/preps/:id/reminder
func (h *PrepHandlers) PostReminder(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	prepID, ok := prepIDParam(c)
	if !ok {
		return
	}

	var req ReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, company, and role are required"})
		return
	}

	name := req.Name
	if name == "" {
		name = "there"
	}

	briefing := prep.Briefing{Company: req.Company, Role: req.Role}
	if err := h.reminderService.SendReminder(tenantCtx, prepID, req.Email, name, req.PrepURL, briefing); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": true})
}
