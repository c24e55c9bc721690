package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/cryptoagg/fireagg/internal/bus"
	"github.com/cryptoagg/fireagg/internal/metrics"
)

// outbound is the wire envelope sent to every subscribed client.
type outbound struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// Manager fans out bus trades and true_prices to subscribed clients.
type Manager struct {
	b bus.MessageBus

	mu         sync.RWMutex
	clients    map[uint64]*Client
	bufferSize int
}

// NewManager constructs a Manager that fans out b's trades and
// true_prices topics once Run is called.
func NewManager(b bus.MessageBus, bufferSize int) *Manager {
	return &Manager{b: b, clients: make(map[uint64]*Client), bufferSize: bufferSize}
}

func (m *Manager) Register(client *Client) {
	m.mu.Lock()
	m.clients[client.ID] = client
	m.mu.Unlock()
	metrics.GatewayConnections.Inc()
	log.Printf("gateway: client %d connected", client.ID)
}

func (m *Manager) Unregister(client *Client) {
	m.mu.Lock()
	delete(m.clients, client.ID)
	m.mu.Unlock()
	client.Close()
	metrics.GatewayConnections.Dec()
	log.Printf("gateway: client %d disconnected", client.ID)
}

// Run subscribes to trades and true_prices and fans each message out to
// every client subscribed to its symbol_id. Blocks until ctx is done.
// Satisfies orchestrator.Worker.
func (m *Manager) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		sub := m.b.Trades().Subscribe()
		defer sub.Close()
		for {
			tr, err := sub.Receive(ctx)
			if err != nil {
				return
			}
			m.broadcast("trades", tr.SymbolID, tr)
		}
	}()

	go func() {
		defer wg.Done()
		sub := m.b.TruePrices().Subscribe()
		defer sub.Close()
		for {
			tp, err := sub.Receive(ctx)
			if err != nil {
				return
			}
			m.broadcast("true_prices", tp.SymbolID, tp)
		}
	}()

	wg.Wait()
	return ctx.Err()
}

func (m *Manager) broadcast(topic string, symbolID int64, payload any) {
	data, err := json.Marshal(outbound{Topic: topic, Data: payload})
	if err != nil {
		log.Printf("gateway: encode %s message: %v", topic, err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if !c.IsSubscribed(symbolID) {
			continue
		}
		c.Send(data)
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}
