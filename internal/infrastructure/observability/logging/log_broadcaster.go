package logging

import (
	"sync"
)

// LogClient is one connected sysop log stream consumer.
type LogClient struct {
	ID     string
	Events chan string
}

// LogBroadcaster fans completed log lines out to connected sysop dashboard
// streams. Slow clients are skipped, never blocked on.
type LogBroadcaster struct {
	clients    map[string]*LogClient
	register   chan *LogClient
	unregister chan *LogClient
	logs       chan string
	shutdown   chan struct{}
	mu         sync.RWMutex
}

var (
	globalLogBroadcaster *LogBroadcaster
	logBroadcasterOnce   sync.Once
)

// GetLogBroadcaster returns the process-wide log broadcaster, starting its
// distribution loop on first use.
func GetLogBroadcaster() *LogBroadcaster {
	logBroadcasterOnce.Do(func() {
		globalLogBroadcaster = &LogBroadcaster{
			clients:    make(map[string]*LogClient),
			register:   make(chan *LogClient),
			unregister: make(chan *LogClient),
			logs:       make(chan string, 256),
			shutdown:   make(chan struct{}),
		}
		go globalLogBroadcaster.run()
	})
	return globalLogBroadcaster
}

func (b *LogBroadcaster) run() {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client.ID] = client
			b.mu.Unlock()

		case client := <-b.unregister:
			b.mu.Lock()
			if existing, ok := b.clients[client.ID]; ok && existing == client {
				delete(b.clients, client.ID)
				close(existing.Events)
			}
			b.mu.Unlock()

		case line := <-b.logs:
			b.mu.RLock()
			for _, client := range b.clients {
				select {
				case client.Events <- line:
				default:
					// Client buffer full; drop the line for this client.
				}
			}
			b.mu.RUnlock()

		case <-b.shutdown:
			b.mu.Lock()
			for id, client := range b.clients {
				close(client.Events)
				delete(b.clients, id)
			}
			b.mu.Unlock()
			return
		}
	}
}

// SubmitLog queues a log line for distribution. Never blocks; lines are
// dropped if the queue is full.
func (b *LogBroadcaster) SubmitLog(line string) {
	select {
	case b.logs <- line:
	default:
	}
}

// NewClient registers a new stream consumer and returns it.
func (b *LogBroadcaster) NewClient(id string) *LogClient {
	client := &LogClient{
		ID:     id,
		Events: make(chan string, 64),
	}
	b.register <- client
	return client
}

// RemoveClient unregisters a stream consumer and closes its channel.
func (b *LogBroadcaster) RemoveClient(client *LogClient) {
	b.unregister <- client
}

// ClientCount returns the number of connected log stream consumers.
func (b *LogBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Shutdown stops the distribution loop and disconnects all clients.
func (b *LogBroadcaster) Shutdown() {
	close(b.shutdown)
}
