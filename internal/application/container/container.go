// Package container provides dependency injection for all singleton services
package container

import (
	"github.com/PrepDeckHQ/prepdeck-go/internal/application/services"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/caching/manager"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/messaging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/performance"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
	"github.com/PrepDeckHQ/prepdeck-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application services (stateful singletons)
	GenerationService   *services.GenerationService
	DraftService        *services.DraftService
	PrepService         *services.PrepService
	ChildFeatureService *services.ChildFeatureService
	ReminderService     *services.ReminderService
	SessionService      *services.SessionService

	// Infrastructure Dependencies
	TenantManager    *tenant.Manager
	CacheManager     *manager.Manager
	Broadcaster      *messaging.SSEBroadcaster
	SysOpBroadcaster *messaging.SysOpBroadcaster
	Logger           *logging.ChanneledLogger
	PerfTracker      *performance.Tracker
}

// NewContainer creates and wires all singleton services
func NewContainer(logger *logging.ChanneledLogger, tenantManager *tenant.Manager) *Container {
	cacheManager := tenantManager.GetCacheManager()
	perfTracker := performance.NewTracker(logger.Perf(), config.SlowQueryThreshold)

	broadcaster := messaging.NewSSEBroadcaster(logger)
	sysopBroadcaster := messaging.NewSysOpBroadcaster(cacheManager)

	generationService := services.NewGenerationService(logger, perfTracker, broadcaster)
	prepService := services.NewPrepService(logger, perfTracker)

	sysopBroadcaster.SetActivitySource(generationService.ActiveCount)

	return &Container{
		GenerationService:   generationService,
		DraftService:        services.NewDraftService(logger),
		PrepService:         prepService,
		ChildFeatureService: services.NewChildFeatureService(logger, perfTracker, prepService),
		ReminderService:     services.NewReminderService(logger, prepService),
		SessionService:      services.NewSessionService(logger),

		TenantManager:    tenantManager,
		CacheManager:     cacheManager,
		Broadcaster:      broadcaster,
		SysOpBroadcaster: sysopBroadcaster,
		Logger:           logger,
		PerfTracker:      perfTracker,
	}
}
