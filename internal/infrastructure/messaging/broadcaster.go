// Package messaging provides the concrete implementation of the SSE broadcaster.
package messaging

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/progress"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
)

// SSEBroadcaster manages tenant-scoped, per-prep SSE connections carrying
// generation progress.
type SSEBroadcaster struct {
	tenantPreps map[string]map[int][]chan string // tenantId -> prepId -> []channels
	mu          sync.Mutex
	logger      *logging.ChanneledLogger
}

var (
	globalBroadcaster *SSEBroadcaster
	once              sync.Once
)

// NewSSEBroadcaster creates the singleton SSEBroadcaster instance.
func NewSSEBroadcaster(logger *logging.ChanneledLogger) *SSEBroadcaster {
	once.Do(func() {
		globalBroadcaster = &SSEBroadcaster{
			tenantPreps: make(map[string]map[int][]chan string),
			logger:      logger,
		}
	})
	return globalBroadcaster
}

// AddClient registers a new SSE client watching one prep's generation.
func (b *SSEBroadcaster) AddClient(tenantID string, prepID int) chan string {
	ch := make(chan string, 10)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tenantPreps[tenantID] == nil {
		b.tenantPreps[tenantID] = make(map[int][]chan string)
	}
	b.tenantPreps[tenantID][prepID] = append(b.tenantPreps[tenantID][prepID], ch)

	b.logger.SSE().Debug("SSE client registered", "tenantId", tenantID, "prepId", prepID)
	return ch
}

// RemoveClient removes an SSE client.
func (b *SSEBroadcaster) RemoveClient(ch chan string, tenantID string, prepID int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if preps, exists := b.tenantPreps[tenantID]; exists {
		if clients, exists := preps[prepID]; exists {
			newClients := make([]chan string, 0, len(clients))
			for _, client := range clients {
				if client != ch {
					newClients = append(newClients, client)
				}
			}
			preps[prepID] = newClients

			if len(preps[prepID]) == 0 {
				delete(preps, prepID)
			}
		}

		if len(preps) == 0 {
			delete(b.tenantPreps, tenantID)
		}
	}
	b.logger.SSE().Debug("SSE client unregistered", "tenantId", tenantID, "prepId", prepID)
}

// GetConnectionCount returns the connection count for one prep.
func (b *SSEBroadcaster) GetConnectionCount(tenantID string, prepID int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if preps, exists := b.tenantPreps[tenantID]; exists {
		return len(preps[prepID])
	}
	return 0
}

// BroadcastProgress pushes a progress snapshot to every client watching
// the prep.
func (b *SSEBroadcaster) BroadcastProgress(tenantID string, prepID int, status progress.Status) {
	payload, err := json.Marshal(status)
	if err != nil {
		b.logger.SSE().Error("Failed to marshal progress payload", "tenantId", tenantID, "prepId", prepID, "error", err.Error())
		return
	}
	message := fmt.Sprintf("event: generation_progress\ndata: %s\n\n", payload)
	b.send(tenantID, prepID, message)
}

// settledEvent is the terminal SSE payload: the merged record plus the
// sources that produced no value.
type settledEvent struct {
	PrepID        int              `json:"prepId"`
	Record        *prep.PrepRecord `json:"record,omitempty"`
	FailedSources []string         `json:"failedSources"`
}

// BroadcastSettled announces terminal settlement, carrying the merged
// record and listing sources that produced no value.
func (b *SSEBroadcaster) BroadcastSettled(tenantID string, prepID int, record *prep.PrepRecord, failedSources []string) {
	if failedSources == nil {
		failedSources = []string{}
	}
	payload, err := json.Marshal(settledEvent{PrepID: prepID, Record: record, FailedSources: failedSources})
	if err != nil {
		b.logger.SSE().Error("Failed to marshal settled payload", "tenantId", tenantID, "prepId", prepID, "error", err.Error())
		return
	}
	message := fmt.Sprintf("event: generation_settled\ndata: %s\n\n", payload)
	b.send(tenantID, prepID, message)
}

func (b *SSEBroadcaster) send(tenantID string, prepID int, message string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.SSE().Error("Panic recovered in SSE send", "error", r, "tenantId", tenantID, "prepId", prepID)
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()

	if preps, exists := b.tenantPreps[tenantID]; exists {
		for _, ch := range preps[prepID] {
			select {
			case ch <- message:
			default:
				b.logger.SSE().Warn("SSE channel full, message dropped", "tenantId", tenantID, "prepId", prepID)
			}
		}
	}
}
