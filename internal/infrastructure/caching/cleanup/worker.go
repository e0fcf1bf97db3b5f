// Package cleanup runs the background cache eviction loop.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/caching/manager"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
)

// Config controls sweep cadence and tenant idle eviction.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration

	// TenantTimeout is how long a tenant cache may sit unaccessed before
	// the whole tenant is evicted.
	TenantTimeout time.Duration
}

// Worker periodically purges expired cache entries and evicts idle tenants.
type Worker struct {
	cache  *manager.Manager
	config Config
	logger *logging.ChanneledLogger
	stop   chan struct{}
	done   chan struct{}
}

// NewWorker creates a cleanup worker. Call Start to begin sweeping.
func NewWorker(cache *manager.Manager, config Config, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		cache:  cache,
		config: config,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the sweep loop. The loop exits when ctx is canceled or
// Stop is called.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)

		ticker := time.NewTicker(w.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.sweep()
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to finish.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) sweep() {
	start := time.Now()
	now := start.UTC()

	evictedTenants := 0
	evictedEntries := 0

	for _, tenantID := range w.cache.TenantIDs() {
		if last, ok := w.cache.LastAccessed(tenantID); ok && now.Sub(last) > w.config.TenantTimeout {
			w.cache.EvictTenant(tenantID)
			evictedTenants++
			continue
		}
		evictedEntries += w.cache.PurgeExpired(tenantID)
	}

	if evictedTenants > 0 || evictedEntries > 0 {
		w.logger.Cache().Info("Cache sweep complete",
			slog.Int("evictedTenants", evictedTenants),
			slog.Int("evictedEntries", evictedEntries),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
