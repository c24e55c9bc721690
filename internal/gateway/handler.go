package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// controlMessage is a client -> server subscription request. SymbolIDs
// come from GET /symbols; "*" in Symbols subscribes to every symbol.
type controlMessage struct {
	Action    string  `json:"action"`
	Symbols   string  `json:"symbols,omitempty"`
	SymbolIDs []int64 `json:"symbol_ids,omitempty"`
}

// Handler builds the HTTP handler that upgrades to a websocket and
// registers the resulting Client with mgr.
func Handler(mgr *Manager, bufferSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("gateway: upgrade error: %v", err)
			return
		}

		client := NewClient(conn, bufferSize)
		mgr.Register(client)

		go writePump(client)
		go readPump(client, mgr)
	}
}

func readPump(c *Client, mgr *Manager) {
	defer mgr.Unregister(c)

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("gateway: client %d read error: %v", c.ID, err)
			}
			return
		}

		var ctrl controlMessage
		if err := json.Unmarshal(message, &ctrl); err != nil {
			log.Printf("gateway: client %d sent invalid control message: %v", c.ID, err)
			continue
		}

		switch ctrl.Action {
		case "subscribe":
			if ctrl.Symbols == "*" {
				c.SubscribeAll()
				log.Printf("gateway: client %d subscribed to all symbols", c.ID)
			} else if len(ctrl.SymbolIDs) > 0 {
				c.Subscribe(ctrl.SymbolIDs)
				log.Printf("gateway: client %d subscribed to %v", c.ID, ctrl.SymbolIDs)
			}
		case "unsubscribe":
			c.Unsubscribe(ctrl.SymbolIDs)
			log.Printf("gateway: client %d unsubscribed from %v", c.ID, ctrl.SymbolIDs)
		default:
			log.Printf("gateway: client %d sent unknown action %q", c.ID, ctrl.Action)
		}
	}
}

func writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.SendCh():
			if !ok {
				return
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.Done():
			return
		}
	}
}
