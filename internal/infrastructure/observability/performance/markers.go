// Package performance provides lightweight operation timing for generation,
// research, and persistence paths.
package performance

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Marker times one operation from start to completion.
type Marker struct {
	ID        string
	Operation string
	TenantID  string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Success   bool
	Error     string
	Metadata  map[string]any

	mu        sync.Mutex
	completed bool
	tracker   *Tracker
}

// Complete finalizes the marker and records it with its tracker. Safe to
// call more than once; only the first call takes effect.
func (m *Marker) Complete() {
	m.mu.Lock()
	if m.completed {
		m.mu.Unlock()
		return
	}
	m.completed = true
	m.EndTime = time.Now().UTC()
	m.Duration = m.EndTime.Sub(m.StartTime)
	tracker := m.tracker
	m.mu.Unlock()

	if tracker != nil {
		tracker.record(m)
	}
}

// SetSuccess marks the operation outcome.
func (m *Marker) SetSuccess(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Success = success
}

// SetError marks the operation failed and records the error text.
func (m *Marker) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Success = false
	if err != nil {
		m.Error = err.Error()
	}
}

// AddMetadata attaches a key/value pair to the marker.
func (m *Marker) AddMetadata(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// IsSlow reports whether the completed operation exceeded the threshold.
func (m *Marker) IsSlow(threshold time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed && m.Duration > threshold
}

func newMarkerID() string {
	return ulid.Make().String()
}
