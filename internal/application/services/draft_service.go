package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/repositories"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
	"github.com/PrepDeckHQ/prepdeck-go/pkg/config"
)

// pendingWrite is the latest value for one debounced (prep, field) pair.
// Rapid edits coalesce: only the last value within the window is flushed.
type pendingWrite struct {
	timer    *time.Timer
	value    json.RawMessage
	repo     repositories.PrepRepository
	tenantID string
	prepID   int
	field    string
}

// DraftService synchronizes user draft edits: the ephemeral mirror is
// written immediately, the durable write is debounced per field.
type DraftService struct {
	logger *logging.ChanneledLogger
	window time.Duration

	pending map[string]*pendingWrite
	mu      sync.Mutex
}

// NewDraftService creates a draft synchronizer with the configured
// debounce window.
func NewDraftService(logger *logging.ChanneledLogger) *DraftService {
	return &DraftService{
		logger:  logger,
		window:  config.DraftDebounceWindow,
		pending: map[string]*pendingWrite{},
	}
}

// SetDebounceWindow overrides the debounce window, for tests.
func (s *DraftService) SetDebounceWindow(window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = window
}

func draftKey(tenantID string, prepID int, field string) string {
	return fmt.Sprintf("%s:%d:%s", tenantID, prepID, field)
}

// WriteField records a draft field edit. The mirror is updated
// immediately; the durable write fires after the debounce window unless
// another edit to the same field restarts it. Different fields debounce
// independently.
func (s *DraftService) WriteField(tenantCtx *tenant.Context, prepID int, field string, value json.RawMessage) error {
	if !prep.IsDraftField(field) {
		return fmt.Errorf("unknown draft field %q", field)
	}

	tenantCtx.GetCacheManager().Preps().SetDraftField(tenantCtx.TenantID, prepID, field, value)

	key := draftKey(tenantCtx.TenantID, prepID, field)

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, exists := s.pending[key]; exists {
		// Coalesce: replace the value and restart the window.
		p.value = value
		p.repo = tenantCtx.PrepRepo()
		p.timer.Reset(s.window)
		return nil
	}

	p := &pendingWrite{
		value:    value,
		repo:     tenantCtx.PrepRepo(),
		tenantID: tenantCtx.TenantID,
		prepID:   prepID,
		field:    field,
	}
	p.timer = time.AfterFunc(s.window, func() {
		s.flushKey(key)
	})
	s.pending[key] = p

	return nil
}

// flushKey removes the pending entry and performs its durable write.
func (s *DraftService) flushKey(key string) {
	s.mu.Lock()
	p, exists := s.pending[key]
	if !exists {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.mu.Unlock()

	s.write(p)
}

func (s *DraftService) write(p *pendingWrite) {
	start := time.Now()
	if err := p.repo.WriteDraftField(p.prepID, p.field, p.value); err != nil {
		// The mirror already holds the edit; reads stay correct until a
		// later write retries the durable store.
		s.logger.LogError(logging.ChannelDraft, "write_draft_field", err, p.tenantID,
			map[string]any{"prepId": p.prepID, "field": p.field})
		return
	}

	s.logger.Draft().Debug("Draft field flushed",
		"tenantId", p.tenantID, "prepId", p.prepID, "field", p.field,
		"duration", time.Since(start))
}

// FlushAll forces every pending durable write immediately. Called on
// shutdown so debounced edits are not lost.
func (s *DraftService) FlushAll() {
	s.mu.Lock()
	writes := make([]*pendingWrite, 0, len(s.pending))
	for key, p := range s.pending {
		// Write the entry even when the timer already fired: a racing
		// flushKey blocked on this lock will find the entry gone and no-op,
		// so the edit is flushed exactly once either way.
		p.timer.Stop()
		writes = append(writes, p)
		delete(s.pending, key)
	}
	s.mu.Unlock()

	for _, p := range writes {
		s.write(p)
	}

	if len(writes) > 0 {
		s.logger.Draft().Info("Flushed pending draft writes", "count", len(writes))
	}
}

// PendingCount returns the number of unflushed draft writes.
func (s *DraftService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
