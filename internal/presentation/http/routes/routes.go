// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/PrepDeckHQ/prepdeck-go/internal/application/container"
	"github.com/PrepDeckHQ/prepdeck-go/internal/presentation/http/handlers"
	"github.com/PrepDeckHQ/prepdeck-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	prepHandlers := handlers.NewPrepHandlers(
		container.GenerationService,
		container.PrepService,
		container.ReminderService,
		container.Broadcaster,
		container.Logger,
		container.PerfTracker,
	)
	draftHandlers := handlers.NewDraftHandlers(container.DraftService, container.PrepService, container.Logger, container.PerfTracker)
	featureHandlers := handlers.NewFeatureHandlers(container.ChildFeatureService, container.Logger, container.PerfTracker)
	visitHandlers := handlers.NewVisitHandlers(container.SessionService, container.Logger, container.PerfTracker)
	healthHandlers := handlers.NewHealthHandlers(container)
	sysopHandlers := handlers.NewSysOpHandlers(container)

	r.GET("/health", healthHandlers.GetHealth)

	// SysOp API endpoints
	sysopAPI := r.Group("/api/sysop")
	{
		sysopAPI.GET("/auth", sysopHandlers.AuthCheck)
		sysopAPI.POST("/login", sysopHandlers.Login)

		// SysOp authenticated endpoints
		sysopAPI.Use(sysopHandlers.SysOpAuthMiddleware())
		{
			sysopAPI.GET("/cache", sysopHandlers.GetCacheStatus)
			sysopAPI.GET("/ws", sysopHandlers.StreamActivity)
			sysopAPI.GET("/logs/levels", sysopHandlers.GetLogLevels)
			sysopAPI.POST("/logs/levels", sysopHandlers.SetLogLevel)
			sysopAPI.POST("/secrets/encrypt", sysopHandlers.EncryptSecret)
		}
	}

	// Log streaming is a special case and can remain at top level
	r.GET("/sysop-logs/stream", sysopHandlers.StreamLogs)

	// API routes with tenant middleware
	api := r.Group("/api/v1")
	api.Use(middleware.TenantMiddleware(container.TenantManager, container.PerfTracker))
	{
		// Authentication and session routes
		auth := api.Group("/auth")
		{
			auth.POST("/visit", visitHandlers.PostVisit)
		}

		// Prep record and generation endpoints
		preps := api.Group("/preps")
		{
			preps.GET("/:id", prepHandlers.GetPrep)
			preps.POST("/:id/generate", prepHandlers.PostGenerate)
			preps.POST("/:id/regenerate", prepHandlers.PostRegenerate)
			preps.GET("/:id/progress", prepHandlers.GetProgress)
			preps.GET("/:id/generate/stream", prepHandlers.GetGenerateStream)

			preps.PATCH("/:id/draft/:field", draftHandlers.PatchDraftField)
			preps.GET("/:id/draft", draftHandlers.GetDraft)

			preps.POST("/:id/features/:feature", featureHandlers.PostChildFeature)
			preps.GET("/:id/features/:feature/progress", featureHandlers.GetFeatureProgress)

			preps.POST("/:id/reminder", prepHandlers.PostReminder)
		}
	}

	return r
}
