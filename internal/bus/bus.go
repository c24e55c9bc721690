package bus

import (
	"context"
	"errors"
)

// TransientBusError wraps a publish failure that is worth retrying (e.g. a
// momentary Redis timeout). FatalBusError wraps one that should bubble up
// and terminate the calling worker.
type TransientBusError struct{ Err error }

func (e *TransientBusError) Error() string { return "transient bus error: " + e.Err.Error() }
func (e *TransientBusError) Unwrap() error { return e.Err }

type FatalBusError struct{ Err error }

func (e *FatalBusError) Error() string { return "fatal bus error: " + e.Err.Error() }
func (e *FatalBusError) Unwrap() error { return e.Err }

// ErrSubscriptionClosed is returned by Receive once the handle has been closed.
var ErrSubscriptionClosed = errors.New("bus: subscription closed")

// Topic is a typed, named publish/subscribe stream. T is one of the message
// types in messages.go.
type Topic[T any] interface {
	// Publish enqueues msg. Non-blocking under normal load for the in-process
	// variant; for the stream-backed variant it returns once the stream
	// backend has acknowledged the append.
	Publish(ctx context.Context, msg T) error

	// Subscribe returns an independent view of all messages published after
	// this call. There is no replay: a subscriber never sees messages
	// published before it subscribed.
	Subscribe() Subscription[T]
}

// Subscription is a subscriber's private handle onto a Topic.
type Subscription[T any] interface {
	// TryReceive returns the next message without blocking. ok is false if
	// none is currently available.
	TryReceive() (msg T, ok bool)

	// Receive blocks until a message is available or ctx is done.
	Receive(ctx context.Context) (T, error)

	// Ack acknowledges the message just consumed. Both the in-process and
	// the stream-backed variant ignore it: neither tracks acknowledgements
	// or replays unacknowledged messages.
	Ack(msg T)

	// Close releases this subscription's backlog. Safe to call more than once.
	Close()
}

// MessageBus bundles the four named topics producers, the aggregator,
// sinks, and the gateway all publish to and subscribe from.
type MessageBus interface {
	Trades() Topic[Trade]
	Spreads() Topic[Spread]
	Weights() Topic[WeightAdjust]
	TruePrices() Topic[TrueMidPrice]

	// Init is a no-op for the in-process variant; the stream-backed variant
	// pings its backend. Stream readers are started per Subscribe call.
	Init(ctx context.Context) error

	// Close cancels all readers (stream-backed variant) or is a no-op
	// (in-process variant). Called after all workers have stopped.
	Close(ctx context.Context) error
}
