package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PrepDeckHQ/prepdeck-go/internal/application/container"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/messaging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/security"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var sysopUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SysOpHandlers contains the operator dashboard HTTP handlers
type SysOpHandlers struct {
	container *container.Container
}

// NewSysOpHandlers creates sysop handlers
func NewSysOpHandlers(container *container.Container) *SysOpHandlers {
	return &SysOpHandlers{container: container}
}

// LoginRequest carries sysop dashboard credentials.
type LoginRequest struct {
	TenantID string `json:"tenantId"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/sysop/login
func (h *SysOpHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}
	if req.TenantID == "" {
		req.TenantID = "default"
	}

	tenantCtx, err := h.container.TenantManager.NewContextFromID(req.TenantID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}

	token, err := h.container.SessionService.AuthenticateSysop(tenantCtx, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "tenantId": req.TenantID})
}

// SysOpAuthMiddleware validates the sysop bearer token.
func (h *SysOpHandlers) SysOpAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.Query("tenantId")
		if tenantID == "" {
			tenantID = "default"
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token") // EventSource cannot set headers
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		tenantCtx, err := h.container.TenantManager.NewContextFromID(tenantID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			c.Abort()
			return
		}

		claims, err := security.ValidateJWT(token, tenantCtx.Config.JWTSecret)
		if err != nil || claims["role"] != "sysop" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("sysopTenantId", tenantID)
		c.Next()
	}
}

// AuthCheck handles GET /api/sysop/auth
func (h *SysOpHandlers) AuthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

// GetCacheStatus handles GET /api/sysop/cache - cache and pool snapshot
// for the authenticated tenant.
func (h *SysOpHandlers) GetCacheStatus(c *gin.Context) {
	tenantID := c.GetString("sysopTenantId")

	records, mirrors := h.container.CacheManager.Sizes(tenantID)

	c.JSON(http.StatusOK, gin.H{
		"tenantId":          tenantID,
		"cachedRecords":     records,
		"draftMirrors":      mirrors,
		"activeGenerations": h.container.GenerationService.ActiveCount(tenantID),
		"pendingDrafts":     h.container.DraftService.PendingCount(),
		"dbPools":           tenant.GetConnectionPoolInfo(),
		"operations":        h.container.PerfTracker.Stats(),
	})
}

// StreamActivity handles GET /api/sysop/ws - websocket stream of cache
// and generation activity.
func (h *SysOpHandlers) StreamActivity(c *gin.Context) {
	tenantID := c.GetString("sysopTenantId")

	conn, err := sysopUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.container.Logger.SSE().Error("Websocket upgrade failed", "error", err.Error())
		return
	}

	client := &messaging.SysOpClient{
		Conn:     conn,
		TenantID: tenantID,
		Send:     make(chan []byte, 16),
	}

	h.container.SysOpBroadcaster.Register(client)
	go client.WritePump()
	go client.ReadPump(h.container.SysOpBroadcaster)
}

// StreamLogs handles the SSE connection for live log streaming.
func (h *SysOpHandlers) StreamLogs(c *gin.Context) {
	broadcaster := logging.GetLogBroadcaster()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	client := broadcaster.NewClient(security.GenerateULID())
	defer broadcaster.RemoveClient(client)

	fmt.Fprintf(c.Writer, ": connection established\n\n")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, open := <-client.Events:
			if !open {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// EncryptSecretRequest carries a plaintext secret to seal for env.json.
type EncryptSecretRequest struct {
	Secret string `json:"secret" binding:"required"`
}

// EncryptSecret handles POST /api/sysop/secrets/encrypt - seals a secret
// with the tenant AES key so it can be stored enc:-prefixed in env.json.
func (h *SysOpHandlers) EncryptSecret(c *gin.Context) {
	tenantID := c.GetString("sysopTenantId")

	var req EncryptSecretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "secret is required"})
		return
	}

	tenantCtx, err := h.container.TenantManager.NewContextFromID(tenantID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}
	if tenantCtx.Config.AESKey == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "tenant has no AES key configured"})
		return
	}

	sealed, err := security.Encrypt(req.Secret, tenantCtx.Config.AESKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encryption failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"encrypted": "enc:" + sealed})
}

// GetLogLevels handles GET /api/sysop/logs/levels
func (h *SysOpHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.Logger.GetChannelLevels())
}

// SetLogLevelRequest changes one channel's log level.
type SetLogLevelRequest struct {
	Channel string `json:"channel" binding:"required"`
	Level   string `json:"level" binding:"required"`
}

// SetLogLevel handles POST /api/sysop/logs/levels
func (h *SysOpHandlers) SetLogLevel(c *gin.Context) {
	var req SetLogLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel and level are required"})
		return
	}

	var level slog.Level
	switch strings.ToUpper(req.Level) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown level"})
		return
	}

	if err := h.container.Logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"channel": req.Channel, "level": strings.ToUpper(req.Level)})
}
