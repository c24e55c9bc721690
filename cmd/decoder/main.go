// Command decoder connects to the client feed gateway's WebSocket, subscribes
// to one or more symbol_ids (or all symbols), and pretty-prints every
// trades/true_prices envelope it receives. The wire format is always JSON
// (the gateway never emits binary frames), so there is no frame-length
// prefix or per-message-type byte decoder involved.
//
// Usage:
//
//	decoder                          # connect to localhost:8100, subscribe to all
//	decoder -url ws://host:8100/feed # custom endpoint
//	decoder -symbols 1,2,7           # subscribe to specific symbol_ids
//	decoder -stats 10                # print message rate stats every N seconds
//	decoder -raw                     # print raw JSON instead of the formatted line
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// envelope mirrors the gateway's outbound wire format.
type envelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type tradePayload struct {
	SymbolID int64  `json:"symbol_id"`
	Exchange string `json:"exchange"`
	Price    string `json:"price"`
	Amount   string `json:"amount"`
	IsBuy    bool   `json:"is_buy"`
}

type trueMidPayload struct {
	SymbolID     int64  `json:"symbol_id"`
	TrueMidPrice string `json:"true_mid_price"`
}

func main() {
	url := flag.String("url", "ws://localhost:8100/feed", "gateway WebSocket endpoint")
	symbols := flag.String("symbols", "*", "comma-separated symbol_ids or * for all")
	statsInterval := flag.Int("stats", 0, "print message rate stats every N seconds (0 = off)")
	raw := flag.Bool("raw", false, "print raw JSON instead of the formatted line")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	log.Printf("connecting to %s", *url)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	log.Println("connected")

	sendSubscribe(conn, *symbols)
	log.Printf("subscribed to %s", *symbols)

	var msgCount uint64
	if *statsInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(*statsInterval) * time.Second)
			defer ticker.Stop()
			var last uint64
			for range ticker.C {
				cur := atomic.LoadUint64(&msgCount)
				delta := cur - last
				rate := float64(delta) / float64(*statsInterval)
				log.Printf("[stats] %d msgs total | %.1f msgs/sec", cur, rate)
				last = cur
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(200 * time.Millisecond)
		os.Exit(0)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("read: %v", err)
		}
		atomic.AddUint64(&msgCount, 1)

		if *raw {
			os.Stdout.Write(data)
			os.Stdout.Write([]byte("\n"))
			continue
		}
		printEnvelope(data)
	}
}

// sendSubscribe sends a subscribe control message. "*" means all symbols;
// otherwise symbols is a comma-separated list of symbol_ids.
func sendSubscribe(conn *websocket.Conn, symbols string) {
	msg := map[string]any{"action": "subscribe"}
	if symbols == "*" {
		msg["symbols"] = "*"
	} else {
		var ids []int64
		for _, s := range strings.Split(symbols, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				log.Fatalf("invalid symbol_id %q: %v", s, err)
			}
			ids = append(ids, id)
		}
		msg["symbol_ids"] = ids
	}

	data, _ := json.Marshal(msg)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Fatalf("send subscribe: %v", err)
	}
}

func printEnvelope(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("??? undecodable message: %v", err)
		return
	}

	switch env.Topic {
	case "trades":
		var t tradePayload
		if err := json.Unmarshal(env.Data, &t); err != nil {
			log.Printf("TRADE    undecodable: %v", err)
			return
		}
		side := "SELL"
		if t.IsBuy {
			side = "BUY"
		}
		log.Printf("TRADE     symbol=%-4d exch=%-10s %4s %10s @ %s", t.SymbolID, t.Exchange, side, t.Amount, t.Price)
	case "true_prices":
		var p trueMidPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Printf("TRUE_MID undecodable: %v", err)
			return
		}
		log.Printf("TRUE_MID  symbol=%-4d true_mid=%s", p.SymbolID, p.TrueMidPrice)
	default:
		log.Printf("UNKNOWN   topic=%q data=%s", env.Topic, string(env.Data))
	}
}
