package messaging

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/caching/manager"
	"github.com/gorilla/websocket"
)

// SysOpClient represents a single connected sysop dashboard client.
type SysOpClient struct {
	Conn     *websocket.Conn
	TenantID string
	Send     chan []byte
}

// CacheStatePayload is the data structure sent to the dashboard on each tick.
type CacheStatePayload struct {
	TenantID          string `json:"tenantId"`
	CachedRecords     int    `json:"cachedRecords"`
	DraftMirrors      int    `json:"draftMirrors"`
	ActiveGenerations int    `json:"activeGenerations"`
	LastAccessed      string `json:"lastAccessed,omitempty"`
}

// SysOpBroadcaster manages connected sysop clients and periodically pushes
// cache and generation activity.
type SysOpBroadcaster struct {
	tenantClients map[string]map[*SysOpClient]bool
	register      chan *SysOpClient
	unregister    chan *SysOpClient
	cacheManager  *manager.Manager
	mu            sync.RWMutex

	// activeGenerations reports in-flight generation runs per tenant. Set
	// after construction to avoid a dependency on the services layer.
	activeGenerations func(tenantID string) int
}

// NewSysOpBroadcaster creates a new broadcaster instance.
func NewSysOpBroadcaster(cm *manager.Manager) *SysOpBroadcaster {
	return &SysOpBroadcaster{
		tenantClients: make(map[string]map[*SysOpClient]bool),
		register:      make(chan *SysOpClient),
		unregister:    make(chan *SysOpClient),
		cacheManager:  cm,
	}
}

// SetActivitySource wires the in-flight generation counter.
func (b *SysOpBroadcaster) SetActivitySource(fn func(tenantID string) int) {
	b.activeGenerations = fn
}

// Run starts the broadcaster's main loop. This should be run as a goroutine.
func (b *SysOpBroadcaster) Run() {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			if _, ok := b.tenantClients[client.TenantID]; !ok {
				b.tenantClients[client.TenantID] = make(map[*SysOpClient]bool)
			}
			b.tenantClients[client.TenantID][client] = true
			log.Printf("SysOp client registered for tenant: %s", client.TenantID)
			b.mu.Unlock()

		case client := <-b.unregister:
			b.mu.Lock()
			if clients, ok := b.tenantClients[client.TenantID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(b.tenantClients, client.TenantID)
					}
				}
			}
			log.Printf("SysOp client unregistered for tenant: %s", client.TenantID)
			b.mu.Unlock()

		case <-ticker.C:
			b.broadcastCacheState()
		}
	}
}

// Register queues a client for registration.
func (b *SysOpBroadcaster) Register(client *SysOpClient) {
	b.register <- client
}

// Unregister queues a client for unregistration.
func (b *SysOpBroadcaster) Unregister(client *SysOpClient) {
	b.unregister <- client
}

// broadcastCacheState gathers and sends cache state for all tenants with
// connected clients.
func (b *SysOpBroadcaster) broadcastCacheState() {
	b.mu.RLock()
	tenantIDs := make([]string, 0, len(b.tenantClients))
	for tenantID := range b.tenantClients {
		tenantIDs = append(tenantIDs, tenantID)
	}
	b.mu.RUnlock()

	for _, tenantID := range tenantIDs {
		payload := b.buildPayload(tenantID)

		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("SysOp broadcast: failed to marshal payload for tenant %s: %v", tenantID, err)
			continue
		}

		b.mu.RLock()
		for client := range b.tenantClients[tenantID] {
			select {
			case client.Send <- data:
			default:
				// Slow client; skip this tick.
			}
		}
		b.mu.RUnlock()
	}
}

func (b *SysOpBroadcaster) buildPayload(tenantID string) CacheStatePayload {
	payload := CacheStatePayload{TenantID: tenantID}
	payload.CachedRecords, payload.DraftMirrors = b.cacheManager.Sizes(tenantID)

	if b.activeGenerations != nil {
		payload.ActiveGenerations = b.activeGenerations(tenantID)
	}
	if last, ok := b.cacheManager.LastAccessed(tenantID); ok {
		payload.LastAccessed = last.Format(time.RFC3339)
	}

	return payload
}

// WritePump pumps messages from the Send channel to the websocket. Runs
// until the channel closes or a write fails.
func (c *SysOpClient) WritePump() {
	defer c.Conn.Close()

	for data := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ReadPump discards inbound messages and detects disconnects.
func (c *SysOpClient) ReadPump(b *SysOpBroadcaster) {
	defer func() {
		b.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
