// Package messaging defines interfaces for real-time communication.
package messaging

import (
	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/progress"
)

// Broadcaster manages SSE client connections and pushes progress updates
// for generation runs. The settled event is terminal and carries the
// merged record so clients can hydrate without a follow-up read.
type Broadcaster interface {
	AddClient(tenantID string, prepID int) chan string
	RemoveClient(ch chan string, tenantID string, prepID int)
	GetConnectionCount(tenantID string, prepID int) int
	BroadcastProgress(tenantID string, prepID int, status progress.Status)
	BroadcastSettled(tenantID string, prepID int, record *prep.PrepRecord, failedSources []string)
}
