package bus

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestInProcessPublishSubscribe(t *testing.T) {
	b := NewInProcessBus()
	sub := b.Trades().Subscribe()
	defer sub.Close()

	tr := NewTrade("kraken", 1, NowMs(), NowMs(), decimal.NewFromFloat(100), decimal.NewFromFloat(2), true)
	if err := b.Trades().Publish(context.Background(), tr); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, err := sub.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got.ID != tr.ID {
		t.Fatalf("ID = %s, want %s", got.ID, tr.ID)
	}
}

func TestInProcessNoReplay(t *testing.T) {
	b := NewInProcessBus()
	tr := NewTrade("kraken", 1, NowMs(), NowMs(), decimal.NewFromFloat(100), decimal.NewFromFloat(2), true)
	if err := b.Trades().Publish(context.Background(), tr); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sub := b.Trades().Subscribe()
	defer sub.Close()
	if _, ok := sub.TryReceive(); ok {
		t.Fatal("subscriber joining after publish should not see the earlier message")
	}
}

func TestInProcessFanOut(t *testing.T) {
	b := NewInProcessBus()
	sub1 := b.Trades().Subscribe()
	sub2 := b.Trades().Subscribe()
	defer sub1.Close()
	defer sub2.Close()

	tr := NewTrade("kraken", 1, NowMs(), NowMs(), decimal.NewFromFloat(100), decimal.NewFromFloat(2), true)
	if err := b.Trades().Publish(context.Background(), tr); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, sub := range []Subscription[Trade]{sub1, sub2} {
		got, ok := sub.TryReceive()
		if !ok {
			t.Fatalf("subscriber %d did not receive the message", i)
		}
		if got.ID != tr.ID {
			t.Fatalf("subscriber %d ID = %s, want %s", i, got.ID, tr.ID)
		}
	}
}

func TestInProcessDropOnFull(t *testing.T) {
	b := &InProcessBus{trades: newInprocTopic[Trade](TopicTrades)}
	sub := &inprocSub[Trade]{id: 1, topic: b.trades, ch: make(chan Trade, 2), done: make(chan struct{})}
	b.trades.subs[1] = sub
	defer sub.Close()

	for i := 0; i < 3; i++ {
		tr := NewTrade("kraken", 1, NowMs(), NowMs(), decimal.NewFromFloat(100), decimal.NewFromFloat(2), true)
		_ = b.trades.Publish(context.Background(), tr)
	}
	if dropped := b.trades.dropped; dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
}

func TestInProcessCloseStopsReceive(t *testing.T) {
	b := NewInProcessBus()
	sub := b.Trades().Subscribe()
	sub.Close()

	_, err := sub.Receive(context.Background())
	if err != ErrSubscriptionClosed {
		t.Fatalf("err = %v, want ErrSubscriptionClosed", err)
	}
}

func TestInProcessReceiveContextCancel(t *testing.T) {
	b := NewInProcessBus()
	sub := b.Trades().Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := sub.Receive(ctx); err == nil {
		t.Fatal("Receive should time out when nothing is published")
	}
}
