// Package types defines the in-memory cache structures for prep records
// and draft mirrors. All structures are per-tenant and guarded by their
// own locks.
package types

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
)

// CachedPrep wraps a prep record with cache bookkeeping.
type CachedPrep struct {
	Record       *prep.PrepRecord
	CachedAt     time.Time
	LastAccessed time.Time
}

// DraftMirror is the ephemeral copy of a prep's user draft, written
// immediately on every edit so reads never wait on the debounced durable
// write.
type DraftMirror struct {
	Fields    map[string]json.RawMessage
	TouchedAt time.Time
}

// TenantPrepCache holds the ephemeral tier for one tenant.
type TenantPrepCache struct {
	Records      map[int]*CachedPrep
	DraftMirrors map[int]*DraftMirror
	LastAccessed time.Time

	mu sync.RWMutex
}

// NewTenantPrepCache creates an empty per-tenant cache.
func NewTenantPrepCache() *TenantPrepCache {
	return &TenantPrepCache{
		Records:      make(map[int]*CachedPrep),
		DraftMirrors: make(map[int]*DraftMirror),
		LastAccessed: time.Now().UTC(),
	}
}

// GetRecord returns a copy of the cached record for a prep id, updating
// access times. Callers get their own UserDraft and ChildFeatures maps so
// reads never share mutable state with writes made under this lock.
func (c *TenantPrepCache) GetRecord(prepID int) (*prep.PrepRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.LastAccessed = time.Now().UTC()
	cached, ok := c.Records[prepID]
	if !ok {
		return nil, false
	}
	cached.LastAccessed = c.LastAccessed
	return cached.Record.Clone(), true
}

// SetRecord stores a record for a prep id, replacing any cached copy.
func (c *TenantPrepCache) SetRecord(prepID int, record *prep.PrepRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	c.LastAccessed = now
	c.Records[prepID] = &CachedPrep{
		Record:       record,
		CachedAt:     now,
		LastAccessed: now,
	}
}

// ApplyResearch merges research and child feature fields into the cached
// record, if one is cached. Fields not supplied are untouched.
func (c *TenantPrepCache) ApplyResearch(prepID int, fields prep.ResearchFields) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.Records[prepID]
	if !ok {
		return
	}

	now := time.Now().UTC()
	c.LastAccessed = now
	cached.LastAccessed = now

	for field, result := range fields.Research {
		cached.Record.SetResearch(field, result)
	}
	if len(fields.ChildFeatures) > 0 {
		if cached.Record.ChildFeatures == nil {
			cached.Record.ChildFeatures = make(map[string]json.RawMessage, len(fields.ChildFeatures))
		}
		for name, payload := range fields.ChildFeatures {
			cached.Record.ChildFeatures[name] = payload
		}
	}
	cached.Record.UpdatedAt = now
}

// InvalidateRecord drops the cached record for a prep id.
func (c *TenantPrepCache) InvalidateRecord(prepID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Records, prepID)
}

// SetDraftField writes one field into the draft mirror, creating the
// mirror on first write. The cached record's userDraft view is updated too
// so record reads see the latest edit.
func (c *TenantPrepCache) SetDraftField(prepID int, field string, value json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	c.LastAccessed = now

	mirror, ok := c.DraftMirrors[prepID]
	if !ok {
		mirror = &DraftMirror{Fields: make(map[string]json.RawMessage)}
		c.DraftMirrors[prepID] = mirror
	}
	mirror.Fields[field] = value
	mirror.TouchedAt = now

	if cached, ok := c.Records[prepID]; ok {
		if cached.Record.UserDraft == nil {
			cached.Record.UserDraft = make(map[string]json.RawMessage)
		}
		cached.Record.UserDraft[field] = value
		cached.LastAccessed = now
	}
}

// GetDraftMirror returns a copy of the mirror fields for a prep id.
func (c *TenantPrepCache) GetDraftMirror(prepID int) (map[string]json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mirror, ok := c.DraftMirrors[prepID]
	if !ok {
		return nil, false
	}
	out := make(map[string]json.RawMessage, len(mirror.Fields))
	for k, v := range mirror.Fields {
		out[k] = v
	}
	return out, true
}

// PurgeExpired drops records and mirrors idle beyond their TTLs and
// reports how many entries were evicted.
func (c *TenantPrepCache) PurgeExpired(recordTTL, mirrorTTL time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	evicted := 0

	for id, cached := range c.Records {
		if now.Sub(cached.LastAccessed) > recordTTL {
			delete(c.Records, id)
			evicted++
		}
	}
	for id, mirror := range c.DraftMirrors {
		if now.Sub(mirror.TouchedAt) > mirrorTTL {
			delete(c.DraftMirrors, id)
			evicted++
		}
	}
	return evicted
}

// Size returns the number of cached records and mirrors.
func (c *TenantPrepCache) Size() (records, mirrors int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Records), len(c.DraftMirrors)
}
