package redisconn

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/redmux/redmux/internal"
	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/resp"
)

// subKind distinguishes the three subscription namespaces: plain channels,
// patterns, and shard channels. A channel and a pattern with the same name
// are independent subscriptions.
type subKind uint8

const (
	subChannel subKind = iota
	subPattern
	subShard
)

func (k subKind) subscribeCmd() string {
	switch k {
	case subPattern:
		return "PSUBSCRIBE"
	case subShard:
		return "SSUBSCRIBE"
	default:
		return "SUBSCRIBE"
	}
}

type subKey struct {
	kind subKind
	name string
}

func isMessageKind(kind string) bool {
	switch kind {
	case resp.PushMessage, resp.PushPMessage, resp.PushSMessage:
		return true
	}
	return false
}

// Subscription acknowledgments consume pending-request slots like any
// other reply; only message-kind pushes bypass the request queue.
func isAckKind(kind string) bool {
	switch kind {
	case resp.PushSubscribe, resp.PushUnsubscribe,
		resp.PushPSubscribe, resp.PushPUnsubscribe,
		resp.PushSSubscribe, resp.PushSUnsubscribe:
		return true
	}
	return false
}

func ackSubKind(kind string) subKind {
	switch kind {
	case resp.PushPSubscribe, resp.PushPUnsubscribe:
		return subPattern
	case resp.PushSSubscribe, resp.PushSUnsubscribe:
		return subShard
	default:
		return subChannel
	}
}

func arrayKind(arr []interface{}) (string, bool) {
	if len(arr) == 0 {
		return "", false
	}
	switch v := arr[0].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

// Subscribe subscribes to channels and returns the connection's
// subscription sink. The sink is shared: subscribing twice returns the
// same sink with the union of subscriptions.
func (conn *Connection) Subscribe(ctx context.Context, channels ...string) (*PubSub, error) {
	return conn.subscribeInto(ctx, "SUBSCRIBE", subChannel, channels)
}

// PSubscribe subscribes to patterns and returns the subscription sink.
func (conn *Connection) PSubscribe(ctx context.Context, patterns ...string) (*PubSub, error) {
	return conn.subscribeInto(ctx, "PSUBSCRIBE", subPattern, patterns)
}

// SSubscribe subscribes to shard channels and returns the subscription sink.
func (conn *Connection) SSubscribe(ctx context.Context, channels ...string) (*PubSub, error) {
	return conn.subscribeInto(ctx, "SSUBSCRIBE", subShard, channels)
}

func (conn *Connection) subscribe(ctx context.Context, cmd string, kind subKind, names []string) error {
	_, err := conn.subscribeInto(ctx, cmd, kind, names)
	return err
}

func (conn *Connection) subscribeInto(ctx context.Context, cmd string, kind subKind, names []string) (*PubSub, error) {
	if len(names) == 0 {
		return nil, redis.ErrArgumentType.New("at least one channel is required").
			WithProperty(EKConnection, conn)
	}

	conn.subMu.Lock()
	sink := conn.sink.Load()
	if sink == nil {
		sink = newPubSub(conn)
		conn.sink.Store(sink)
	}
	for _, name := range names {
		conn.subs.Store(subKey{kind, name}, struct{}{})
	}
	ack := newSubAck(conn, len(names))
	conn.sendSub(subRequest(cmd, names), ack, len(names))
	conn.subMu.Unlock()

	select {
	case <-ctx.Done():
		return nil, redis.ErrRequestCancelled.WrapWithNoMessage(ctx.Err())
	case <-ack.done:
	}
	if err := ack.firstErr(); err != nil {
		conn.subMu.Lock()
		for _, name := range names {
			conn.subs.Delete(subKey{kind, name})
		}
		conn.closeSinkIfEmptyLocked()
		conn.subMu.Unlock()
		return nil, err
	}
	return sink, nil
}

func (conn *Connection) unsubscribe(ctx context.Context, cmd string, kind subKind, names []string) error {
	conn.subMu.Lock()
	acks := len(names)
	if acks == 0 {
		// an argument-less unsubscribe is acknowledged once per active
		// subscription of that kind, or once when there is none
		conn.subs.Range(func(k subKey, _ struct{}) bool {
			if k.kind == kind {
				acks++
			}
			return true
		})
		if acks == 0 {
			acks = 1
		}
	}
	ack := newSubAck(conn, acks)
	conn.sendSub(subRequest(cmd, names), ack, acks)
	conn.subMu.Unlock()

	select {
	case <-ctx.Done():
		return redis.ErrRequestCancelled.WrapWithNoMessage(ctx.Err())
	case <-ack.done:
	}
	return ack.firstErr()
}

func subRequest(cmd string, names []string) redis.Request {
	args := make([]interface{}, len(names))
	for i, name := range names {
		args[i] = name
	}
	return redis.Request{Cmd: cmd, Args: args}
}

// sendSub writes one subscription command that will be acknowledged acks
// times, consuming acks pending-request slots.
func (conn *Connection) sendSub(req redis.Request, cb redis.Future, acks int) {
	shardn, shard := conn.getShard()
	shard.Lock()
	defer shard.Unlock()

	if err := conn.stateErr(); err != nil {
		resolveAcks(cb, err, acks)
		return
	}
	buf, err := resp.AppendRequest(shard.buf, req)
	if err != nil {
		resolveAcks(cb, err, acks)
		return
	}
	if len(shard.buf) == 0 {
		conn.dirtyShard <- shardn
	}
	shard.buf = buf
	for i := 0; i < acks; i++ {
		shard.futures = append(shard.futures, future{cb, uint64(i)})
	}
}

func resolveAcks(cb redis.Future, err error, acks int) {
	if cb == nil {
		return
	}
	internal.Go(func() {
		for i := 0; i < acks; i++ {
			cb.Resolve(err, uint64(i))
		}
	})
}

// resubscribe replays the active subscriptions on a fresh socket, so a
// sink survives reconnects (messages published while disconnected are
// lost, as they are on any resubscription).
func (conn *Connection) resubscribe() {
	byKind := map[subKind][]string{}
	conn.subs.Range(func(k subKey, _ struct{}) bool {
		byKind[k.kind] = append(byKind[k.kind], k.name)
		return true
	})
	for kind, names := range byKind {
		conn.sendSub(subRequest(kind.subscribeCmd(), names), nil, len(names))
	}
}

// routeMessage delivers a message-kind push frame to the sink.
func (conn *Connection) routeMessage(kind string, arr []interface{}) {
	sink := conn.sink.Load()
	if sink == nil {
		conn.report(LogPushDropped, "no subscription sink")
		return
	}
	m, ok := parsePushMessage(kind, arr)
	if !ok {
		conn.report(LogPushDropped, "malformed push frame")
		return
	}
	sink.push(m)
}

// closeSinkIfEmptyLocked tears the sink down once the last subscription is
// gone. Callers must hold subMu.
func (conn *Connection) closeSinkIfEmptyLocked() {
	if conn.subs.Size() != 0 {
		return
	}
	if sink := conn.sink.Load(); sink != nil {
		sink.closeWith(nil)
		conn.sink.Store(nil)
	}
}

// subAck waits for the expected number of subscription acknowledgments.
// Unsubscribe acks also retire registry entries, keyed by the channel name
// the server reports, which makes argument-less unsubscribes work.
type subAck struct {
	conn   *Connection
	remain int32
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func newSubAck(conn *Connection, n int) *subAck {
	return &subAck{conn: conn, remain: int32(n), done: make(chan struct{})}
}

func (a *subAck) Cancelled() bool { return false }

func (a *subAck) Resolve(res interface{}, _ uint64) {
	if err := redis.AsError(res); err != nil {
		a.mu.Lock()
		if a.err == nil {
			a.err = err
		}
		a.mu.Unlock()
	} else if arr, ok := res.([]interface{}); ok {
		if kind, got := arrayKind(arr); got && isAckKind(kind) && len(arr) >= 2 {
			if name, ok := arr[1].([]byte); ok {
				switch kind {
				case resp.PushUnsubscribe, resp.PushPUnsubscribe, resp.PushSUnsubscribe:
					a.conn.subMu.Lock()
					a.conn.subs.Delete(subKey{ackSubKind(kind), string(name)})
					a.conn.closeSinkIfEmptyLocked()
					a.conn.subMu.Unlock()
				}
			}
		}
	}
	if atomic.AddInt32(&a.remain, -1) == 0 {
		close(a.done)
	}
}

func (a *subAck) firstErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}
