package redisconn

import (
	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/resp"
)

// SendTransaction wraps reqs in MULTI/EXEC and submits the whole frame as
// one contiguous batch on a single shard, so no other request can slip in
// between. cb is resolved exactly once, at position off, with the EXEC
// reply: the array of per-command results, nil when the transaction was
// aborted, or an error.
func (conn *Connection) SendTransaction(reqs []redis.Request, cb redis.Future, off uint64) {
	for _, req := range reqs {
		if redis.Forbidden(req.Cmd, conn.opts.ScriptMode) {
			resolveAsync(cb, conn.forbiddenErr(req), off)
			return
		}
	}
	if len(reqs) == 0 {
		// MULTI/EXEC with no body is a pointless round trip
		resolveAsync(cb, []interface{}{}, off)
		return
	}

	tf := &transFuture{cb: cb, off: off, last: uint64(len(reqs)) + 1}

	shardn, shard := conn.getShard()
	shard.Lock()
	defer shard.Unlock()

	if err := conn.stateErr(); err != nil {
		resolveAsync(cb, err, off)
		return
	}

	// build on local copies; the shard is only touched once the frame
	// encoded cleanly
	buf := shard.buf
	futures := shard.futures
	buf, _ = resp.AppendRequest(buf, redis.Req("MULTI"))
	futures = append(futures, future{tf, 0})
	for i, req := range reqs {
		var err error
		buf, err = resp.AppendRequest(buf, req)
		if err != nil {
			rerr := withNewProperty(redis.AsErrorx(err), EKConnection, conn).
				WithProperty(redis.EKRequests, reqs)
			resolveAsync(cb, rerr, off)
			return
		}
		futures = append(futures, future{tf, uint64(i) + 1})
	}
	buf, _ = resp.AppendRequest(buf, redis.Req("EXEC"))
	futures = append(futures, future{tf, tf.last})

	if len(shard.buf) == 0 {
		conn.dirtyShard <- shardn
	}
	shard.buf = buf
	shard.futures = futures
}

// transFuture absorbs the MULTI ack and the per-command QUEUED acks, and
// hands the EXEC reply to the caller. All its slots belong to one shard
// batch, so they are resolved sequentially by a single goroutine, either
// the reader or the error drain.
type transFuture struct {
	cb   redis.Future
	off  uint64
	last uint64
	err  error
}

func (t *transFuture) Cancelled() bool { return false }

func (t *transFuture) Resolve(res interface{}, n uint64) {
	if n < t.last {
		// MULTI ack or a QUEUED ack; remember the first refusal, the
		// server will abort EXEC anyway and this error says why
		if err := redis.AsError(res); err != nil && t.err == nil {
			t.err = err
		}
		return
	}
	// a connection error on EXEC itself outranks a queueing refusal
	if t.err != nil && !redis.HardError(redis.AsErrorx(res)) {
		res = t.err
	}
	if t.cb != nil {
		t.cb.Resolve(res, t.off)
	}
}
