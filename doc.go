/*
Package redmux - Redis connection multiplexer with implicit pipelining.

https://redis.io/topics/pipelining

Pipelining improves the maximum throughput redis can serve and reduces CPU
usage both on the redis server and on the client. But explicit pipelining
is often impossible: the usual workload is dozens of concurrent goroutines
each sending one request at a time. To help such workloads, pipelining has
to be implicit.

This connector multiplexes all requests onto a single connection: requests
are encoded and enqueued under a shard lock, one goroutine writes
coalesced batches to the socket, and another continuously reads replies
and hands each one to exactly the caller whose turn it is. Pub/sub push
traffic is recognized on the same socket and routed to a subscription sink
instead of consuming request slots, so one connection serves both regular
commands and subscriptions, in RESP3 or RESP2.

Note that it trades a bit of latency for throughput, and therefore may be
not optimal for non-concurrent usage.

# Capabilities

- thread-safe: no need to lock around the connection, no need to "return
to pool", etc,

- pipelining is implicit,

- transactions supported (but without WATCH),

- pub/sub supported on the same multiplexed connection, surviving
reconnects,

- RESP3 by default with transparent RESP2 fallback,

- hook for custom logging.

# Limitations

- by default, blocking calls are not allowed because they would block the
whole pipeline: BLPOP, BRPOP, BRPOPLPUSH, BZPOPMIN, BZPOPMAX, BLMOVE,
BLMPOP, WAIT, XREAD, XREADGROUP, SAVE. Use redissimple for those, or set
ScriptMode: true when the connection is used from a single goroutine.

- WATCH is also forbidden: it is useless and even harmful when concurrent
goroutines share the connection. redissimple supports it.

- cluster and sentinel topologies are out of scope; redispool gives a
fixed set of connections to one server.

# Structure

- the root package is empty,

- common functionality is in the redis subpackage,

- the RESP wire codec is in the resp subpackage,

- a single multiplexed connection is in the redisconn subpackage,

- a fixed connection set is in the redispool subpackage,

- a plain exclusive connection is in the redissimple subpackage,

- testbed runs an in-process server for tests.

# Usage

Simplest is through the redis.Sync or redis.SyncCtx wrappers:

	conn, err := redisconn.Connect(ctx, "127.0.0.1:6379", redisconn.Opts{})
	if err != nil {
		// handle connection error
	}
	sync := redis.SyncCtx{conn}
	res := sync.Do(ctx, "SET", "key", "value")
	if err := redis.AsError(res); err != nil {
		// handle command error
	}
*/
package redmux
