// Package interfaces defines the cache contracts consumed by services.
package interfaces

import (
	"encoding/json"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
)

// PrepCache is the ephemeral tier: fast, per-tenant, safe to lose. Misses
// fall through to the durable repository; nothing here is authoritative.
type PrepCache interface {
	GetRecord(tenantID string, prepID int) (*prep.PrepRecord, bool)
	SetRecord(tenantID string, prepID int, record *prep.PrepRecord)
	ApplyResearch(tenantID string, prepID int, fields prep.ResearchFields)
	InvalidateRecord(tenantID string, prepID int)

	SetDraftField(tenantID string, prepID int, field string, value json.RawMessage)
	GetDraftMirror(tenantID string, prepID int) (map[string]json.RawMessage, bool)

	PurgeExpired(tenantID string) int
	PurgeTenant(tenantID string)
	TenantIDs() []string
	LastAccessed(tenantID string) (time.Time, bool)
}
