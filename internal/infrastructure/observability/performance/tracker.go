package performance

import (
	"log/slog"
	"sync"
	"time"
)

// maxRetainedMarkers bounds the in-memory history per tracker.
const maxRetainedMarkers = 1024

// OperationStats aggregates completed markers for one operation name.
type OperationStats struct {
	Count         int           `json:"count"`
	Failures      int           `json:"failures"`
	TotalDuration time.Duration `json:"-"`
	MaxDuration   time.Duration `json:"maxDurationMs"`
}

// AverageDuration returns the mean duration across recorded operations.
func (s OperationStats) AverageDuration() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Count)
}

// Tracker collects operation markers and aggregate statistics. One tracker
// serves the whole process; markers carry their tenant id.
type Tracker struct {
	mu      sync.RWMutex
	markers []*Marker
	stats   map[string]*OperationStats
	logger  *slog.Logger

	slowThreshold time.Duration
}

// NewTracker creates a tracker. Completed markers slower than threshold are
// logged to the supplied logger as they arrive.
func NewTracker(logger *slog.Logger, slowThreshold time.Duration) *Tracker {
	return &Tracker{
		stats:         make(map[string]*OperationStats),
		logger:        logger,
		slowThreshold: slowThreshold,
	}
}

// StartOperation begins timing a named operation for a tenant.
func (t *Tracker) StartOperation(operation, tenantID string) *Marker {
	return &Marker{
		ID:        newMarkerID(),
		Operation: operation,
		TenantID:  tenantID,
		StartTime: time.Now().UTC(),
		Success:   true,
		tracker:   t,
	}
}

func (t *Tracker) record(m *Marker) {
	t.mu.Lock()

	t.markers = append(t.markers, m)
	if len(t.markers) > maxRetainedMarkers {
		t.markers = t.markers[len(t.markers)-maxRetainedMarkers:]
	}

	stats, ok := t.stats[m.Operation]
	if !ok {
		stats = &OperationStats{}
		t.stats[m.Operation] = stats
	}
	stats.Count++
	if !m.Success {
		stats.Failures++
	}
	stats.TotalDuration += m.Duration
	if m.Duration > stats.MaxDuration {
		stats.MaxDuration = m.Duration
	}

	t.mu.Unlock()

	if t.logger != nil && m.Duration > t.slowThreshold {
		t.logger.Warn("Slow operation",
			slog.String("operation", m.Operation),
			slog.String("tenantId", m.TenantID),
			slog.Duration("duration", m.Duration),
			slog.Bool("success", m.Success),
		)
	}
}

// Stats returns a copy of the aggregate statistics per operation.
func (t *Tracker) Stats() map[string]OperationStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]OperationStats, len(t.stats))
	for op, s := range t.stats {
		out[op] = *s
	}
	return out
}

// RecentMarkers returns up to n most recent completed markers, newest last.
func (t *Tracker) RecentMarkers(n int) []*Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > len(t.markers) {
		n = len(t.markers)
	}
	out := make([]*Marker, n)
	copy(out, t.markers[len(t.markers)-n:])
	return out
}
