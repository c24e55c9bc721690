package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoagg/fireagg/internal/bus"
)

func TestManagerBroadcastsToSubscribedClient(t *testing.T) {
	b := bus.NewInProcessBus()
	mgr := NewManager(b, 16)

	subscribed := newTestClient(4)
	subscribed.Subscribe([]int64{42})
	other := newTestClient(4)
	other.Subscribe([]int64{7})

	mgr.Register(subscribed)
	mgr.Register(other)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	trade := bus.NewTrade("simulated", 42, bus.NowMs(), bus.NowMs(), decimal.NewFromInt(100), decimal.NewFromInt(1), true)
	if err := b.Trades().Publish(ctx, trade); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case data := <-subscribed.SendCh():
		var env outbound
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Topic != "trades" {
			t.Fatalf("topic = %q, want trades", env.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("subscribed client never received the trade")
	}

	select {
	case <-other.SendCh():
		t.Fatal("unsubscribed client should not have received the trade")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManagerClientCount(t *testing.T) {
	mgr := NewManager(bus.NewInProcessBus(), 4)
	if mgr.ClientCount() != 0 {
		t.Fatal("new manager should have no clients")
	}

	c := newTestClient(4)
	mgr.Register(c)
	if mgr.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", mgr.ClientCount())
	}

	mgr.Unregister(c)
	if mgr.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d, want 0 after unregister", mgr.ClientCount())
	}
}
