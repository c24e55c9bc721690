// Package gateway is the Client Feed Gateway: a websocket fan-out of
// the trades and true_prices topics to external subscribers. Client/Manager
// use a buffered per-client fan-out keyed by symbol_id, sourced from the
// internal bus rather than a broadcast-batch call.
package gateway

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Client is one connected websocket subscriber.
type Client struct {
	ID   uint64
	Conn *websocket.Conn

	mu         sync.RWMutex
	symbols    map[int64]bool
	allSymbols bool

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	Dropped uint64
}

var clientIDCounter uint64

// NewClient wraps a websocket connection with a buffered outbound queue of
// bufferSize messages.
func NewClient(conn *websocket.Conn, bufferSize int) *Client {
	return &Client{
		ID:      atomic.AddUint64(&clientIDCounter, 1),
		Conn:    conn,
		symbols: make(map[int64]bool),
		sendCh:  make(chan []byte, bufferSize),
		done:    make(chan struct{}),
	}
}

func (c *Client) Subscribe(symbolIDs []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbolIDs {
		c.symbols[s] = true
	}
}

func (c *Client) SubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allSymbols = true
}

func (c *Client) Unsubscribe(symbolIDs []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbolIDs {
		delete(c.symbols, s)
	}
}

func (c *Client) IsSubscribed(symbolID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.allSymbols || c.symbols[symbolID]
}

// Send enqueues data for the write pump. Returns false, and counts a
// drop, if the client's buffer is full.
func (c *Client) Send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		atomic.AddUint64(&c.Dropped, 1)
		return false
	}
}

func (c *Client) SendCh() <-chan []byte { return c.sendCh }
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}
