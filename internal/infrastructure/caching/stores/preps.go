// Package stores implements the in-memory cache stores.
package stores

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/caching/types"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
)

// PrepStore holds per-tenant prep caches behind one store-level lock. The
// store lock only guards the tenant map; record access locks live inside
// each tenant cache.
type PrepStore struct {
	tenantCaches map[string]*types.TenantPrepCache
	mu           sync.RWMutex
	logger       *logging.ChanneledLogger

	recordTTL time.Duration
	mirrorTTL time.Duration
}

// NewPrepStore creates a prep cache store.
func NewPrepStore(logger *logging.ChanneledLogger, recordTTL, mirrorTTL time.Duration) *PrepStore {
	return &PrepStore{
		tenantCaches: make(map[string]*types.TenantPrepCache),
		logger:       logger,
		recordTTL:    recordTTL,
		mirrorTTL:    mirrorTTL,
	}
}

func (s *PrepStore) getTenantCache(tenantID string) *types.TenantPrepCache {
	s.mu.RLock()
	cache, ok := s.tenantCaches[tenantID]
	s.mu.RUnlock()
	if ok {
		return cache
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cache, ok = s.tenantCaches[tenantID]; ok {
		return cache
	}
	cache = types.NewTenantPrepCache()
	s.tenantCaches[tenantID] = cache
	return cache
}

// GetRecord returns the cached record for a prep id.
func (s *PrepStore) GetRecord(tenantID string, prepID int) (*prep.PrepRecord, bool) {
	start := time.Now()
	record, hit := s.getTenantCache(tenantID).GetRecord(prepID)
	s.logger.LogCacheOperation("getRecord", cacheKey(prepID), hit, time.Since(start), tenantID)
	return record, hit
}

// SetRecord caches a record for a prep id.
func (s *PrepStore) SetRecord(tenantID string, prepID int, record *prep.PrepRecord) {
	s.getTenantCache(tenantID).SetRecord(prepID, record)
}

// ApplyResearch merges freshly generated fields into the cached record.
func (s *PrepStore) ApplyResearch(tenantID string, prepID int, fields prep.ResearchFields) {
	s.getTenantCache(tenantID).ApplyResearch(prepID, fields)
}

// InvalidateRecord drops the cached record for a prep id.
func (s *PrepStore) InvalidateRecord(tenantID string, prepID int) {
	s.getTenantCache(tenantID).InvalidateRecord(prepID)
}

// SetDraftField mirrors one draft field write.
func (s *PrepStore) SetDraftField(tenantID string, prepID int, field string, value json.RawMessage) {
	s.getTenantCache(tenantID).SetDraftField(prepID, field, value)
}

// GetDraftMirror returns the mirrored draft fields for a prep id.
func (s *PrepStore) GetDraftMirror(tenantID string, prepID int) (map[string]json.RawMessage, bool) {
	start := time.Now()
	fields, hit := s.getTenantCache(tenantID).GetDraftMirror(prepID)
	s.logger.LogCacheOperation("getDraftMirror", cacheKey(prepID), hit, time.Since(start), tenantID)
	return fields, hit
}

// PurgeExpired evicts idle entries for one tenant and returns the count.
func (s *PrepStore) PurgeExpired(tenantID string) int {
	s.mu.RLock()
	cache, ok := s.tenantCaches[tenantID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	evicted := cache.PurgeExpired(s.recordTTL, s.mirrorTTL)
	if evicted > 0 {
		s.logger.Cache().Debug("Purged expired prep cache entries",
			slog.String("tenantId", tenantID),
			slog.Int("evicted", evicted),
		)
	}
	return evicted
}

// PurgeTenant removes a tenant's cache entirely.
func (s *PrepStore) PurgeTenant(tenantID string) {
	s.mu.Lock()
	delete(s.tenantCaches, tenantID)
	s.mu.Unlock()

	s.logger.Cache().Info("Purged tenant prep cache", slog.String("tenantId", tenantID))
}

// TenantIDs returns the ids of all tenants with live caches.
func (s *PrepStore) TenantIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.tenantCaches))
	for id := range s.tenantCaches {
		ids = append(ids, id)
	}
	return ids
}

// Sizes returns the cached record and mirror counts for a tenant.
func (s *PrepStore) Sizes(tenantID string) (records, mirrors int) {
	s.mu.RLock()
	cache, ok := s.tenantCaches[tenantID]
	s.mu.RUnlock()
	if !ok {
		return 0, 0
	}
	return cache.Size()
}

// LastAccessed returns the last access time for a tenant's cache.
func (s *PrepStore) LastAccessed(tenantID string) (time.Time, bool) {
	s.mu.RLock()
	cache, ok := s.tenantCaches[tenantID]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	return cache.LastAccessed, true
}

func cacheKey(prepID int) string {
	return "prep:" + strconv.Itoa(prepID)
}
