package redisconn

import (
	"context"
	"sync"

	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/resp"
)

// Message is one pub/sub notification delivered through the subscription
// sink.
type Message struct {
	// Kind is "message", "pmessage" or "smessage".
	Kind string
	// Channel the message was published to.
	Channel string
	// Pattern that matched, for "pmessage".
	Pattern string
	// Payload of the message.
	Payload []byte
}

// PubSub is the subscription sink of a connection: an ordered, unbounded
// queue of incoming push messages. There is at most one sink per
// connection; it is created by the first subscribe and torn down when the
// last unsubscribe confirmation arrives or the connection closes forever.
//
// Receiving messages is independent of submitting commands on the same
// connection: ordinary replies keep flowing while the sink accumulates
// pushes.
type PubSub struct {
	conn *Connection

	mu     sync.Mutex
	queue  []Message
	wake   chan struct{}
	err    error
	closed bool
}

func newPubSub(conn *Connection) *PubSub {
	return &PubSub{
		conn: conn,
		wake: make(chan struct{}, 1),
	}
}

// Recv returns the next message, blocking until one arrives, the context is
// cancelled, or the sink is closed. After the sink closes, queued messages
// are still drained before the closing error is returned.
//
// Recv may be called from several goroutines; each message is delivered to
// exactly one of them.
func (p *PubSub) Recv(ctx context.Context) (Message, error) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			m := p.queue[0]
			p.queue = p.queue[1:]
			more := len(p.queue) > 0
			p.mu.Unlock()
			if more {
				// pass the wake token on: another receiver may be waiting
				// for one of the remaining messages
				select {
				case p.wake <- struct{}{}:
				default:
				}
			}
			return m, nil
		}
		closed, err := p.closed, p.err
		p.mu.Unlock()

		if closed {
			// wake the next blocked receiver, the sink stays closed
			select {
			case p.wake <- struct{}{}:
			default:
			}
			if err == nil {
				err = redis.ErrContextClosed.New("subscription finished")
			}
			return Message{}, err
		}

		select {
		case <-ctx.Done():
			return Message{}, redis.ErrRequestCancelled.WrapWithNoMessage(ctx.Err())
		case <-p.wake:
		}
	}
}

// Subscribe adds channel subscriptions to this sink.
func (p *PubSub) Subscribe(ctx context.Context, channels ...string) error {
	return p.conn.subscribe(ctx, "SUBSCRIBE", subChannel, channels)
}

// PSubscribe adds pattern subscriptions to this sink.
func (p *PubSub) PSubscribe(ctx context.Context, patterns ...string) error {
	return p.conn.subscribe(ctx, "PSUBSCRIBE", subPattern, patterns)
}

// SSubscribe adds shard channel subscriptions to this sink.
func (p *PubSub) SSubscribe(ctx context.Context, channels ...string) error {
	return p.conn.subscribe(ctx, "SSUBSCRIBE", subShard, channels)
}

// Unsubscribe removes channel subscriptions. With no arguments it removes
// all channel subscriptions of this connection.
func (p *PubSub) Unsubscribe(ctx context.Context, channels ...string) error {
	return p.conn.unsubscribe(ctx, "UNSUBSCRIBE", subChannel, channels)
}

// PUnsubscribe removes pattern subscriptions, all of them when called with
// no arguments.
func (p *PubSub) PUnsubscribe(ctx context.Context, patterns ...string) error {
	return p.conn.unsubscribe(ctx, "PUNSUBSCRIBE", subPattern, patterns)
}

// SUnsubscribe removes shard channel subscriptions, all of them when called
// with no arguments.
func (p *PubSub) SUnsubscribe(ctx context.Context, channels ...string) error {
	return p.conn.unsubscribe(ctx, "SUNSUBSCRIBE", subShard, channels)
}

// Close drops every subscription of the connection and closes the sink.
// Messages already queued can still be drained with Recv.
func (p *PubSub) Close() {
	ctx := p.conn.ctx
	_ = p.conn.unsubscribe(ctx, "UNSUBSCRIBE", subChannel, nil)
	_ = p.conn.unsubscribe(ctx, "PUNSUBSCRIBE", subPattern, nil)
	_ = p.conn.unsubscribe(ctx, "SUNSUBSCRIBE", subShard, nil)
	p.closeWith(nil)
}

func (p *PubSub) push(m Message) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, m)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *PubSub) closeWith(err error) {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.err = err
	}
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// parsePushMessage converts a routed push frame into a Message.
func parsePushMessage(kind string, arr []interface{}) (Message, bool) {
	get := func(v interface{}) (string, bool) {
		switch s := v.(type) {
		case string:
			return s, true
		case []byte:
			return string(s), true
		}
		return "", false
	}
	switch kind {
	case resp.PushMessage, resp.PushSMessage:
		if len(arr) != 3 {
			return Message{}, false
		}
		ch, ok1 := get(arr[1])
		payload, ok2 := arr[2].([]byte)
		if !ok1 || !ok2 {
			return Message{}, false
		}
		return Message{Kind: kind, Channel: ch, Payload: payload}, true
	case resp.PushPMessage:
		if len(arr) != 4 {
			return Message{}, false
		}
		pat, ok1 := get(arr[1])
		ch, ok2 := get(arr[2])
		payload, ok3 := arr[3].([]byte)
		if !ok1 || !ok2 || !ok3 {
			return Message{}, false
		}
		return Message{Kind: kind, Channel: ch, Pattern: pat, Payload: payload}, true
	}
	return Message{}, false
}
