// Package manager aggregates the cache stores behind one handle.
package manager

import (
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/caching/interfaces"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/caching/stores"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
)

// Manager owns the ephemeral cache tier for all tenants.
type Manager struct {
	preps *stores.PrepStore
}

// Config carries cache TTLs.
type Config struct {
	PrepRecordTTL  time.Duration
	DraftMirrorTTL time.Duration
}

// NewManager creates the cache manager and its stores.
func NewManager(logger *logging.ChanneledLogger, cfg Config) *Manager {
	return &Manager{
		preps: stores.NewPrepStore(logger, cfg.PrepRecordTTL, cfg.DraftMirrorTTL),
	}
}

// Preps returns the prep record cache.
func (m *Manager) Preps() interfaces.PrepCache {
	return m.preps
}

// EvictTenant drops every cache a tenant holds.
func (m *Manager) EvictTenant(tenantID string) {
	m.preps.PurgeTenant(tenantID)
}

// TenantIDs lists tenants with any live cache.
func (m *Manager) TenantIDs() []string {
	return m.preps.TenantIDs()
}

// LastAccessed returns the most recent cache access for a tenant.
func (m *Manager) LastAccessed(tenantID string) (time.Time, bool) {
	return m.preps.LastAccessed(tenantID)
}

// Sizes returns the cached record and mirror counts for a tenant.
func (m *Manager) Sizes(tenantID string) (records, mirrors int) {
	return m.preps.Sizes(tenantID)
}

// PurgeExpired sweeps expired entries for one tenant.
func (m *Manager) PurgeExpired(tenantID string) int {
	return m.preps.PurgeExpired(tenantID)
}
