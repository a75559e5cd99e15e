// Package redispool keeps a fixed set of multiplexed connections to one
// server and spreads requests over them. A single Connection already
// pipelines concurrent requests; a small pool on top of it helps when one
// socket becomes the bottleneck, and it masks a reconnecting socket as
// long as a sibling is alive.
package redispool

import (
	"context"
	"sync/atomic"

	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/redisconn"
)

// Policy tells how a connection is picked for a request.
type Policy int

const (
	// PreferFirst uses the first healthy connection. Later connections
	// warm up only when earlier ones fail.
	PreferFirst Policy = iota
	// RoundRobin spreads requests over all healthy connections.
	RoundRobin
)

const (
	needConnected = iota
	mayBeConnected
)

// Opts is the configuration of a Pool.
type Opts struct {
	// Size - number of connections. Default is 2.
	Size int
	// Policy - connection selection policy. Default is RoundRobin.
	Policy Policy
	// ConnOpts is passed to every underlying connection.
	ConnOpts redisconn.Opts
	// Logger overrides ConnOpts.Logger.
	Logger redisconn.Logger
}

// Pool is a fixed set of connections to a single address. It implements
// redis.Sender.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	addr   string
	conns  []*redisconn.Connection
	rr     uint32
	opts   Opts
}

// New establishes a pool of connections to addr. All connections but the
// first are dialed asynchronously: one live socket is enough to start.
func New(ctx context.Context, addr string, opts Opts) (*Pool, error) {
	if ctx == nil {
		return nil, redis.ErrContextIsNil.NewWithNoMessage()
	}
	if addr == "" {
		return nil, redis.ErrNoAddressProvided.NewWithNoMessage()
	}
	if opts.Size <= 0 {
		opts.Size = 2
	}
	if opts.Logger != nil {
		opts.ConnOpts.Logger = opts.Logger
	}

	pool := &Pool{
		addr:  addr,
		conns: make([]*redisconn.Connection, opts.Size),
		opts:  opts,
	}
	pool.ctx, pool.cancel = context.WithCancel(ctx)

	connOpts := opts.ConnOpts
	for i := range pool.conns {
		connOpts.Async = i > 0
		connOpts.Handle = poolHandle{opts.ConnOpts.Handle, i}
		conn, err := redisconn.Connect(pool.ctx, addr, connOpts)
		if err != nil {
			pool.cancel()
			return nil, err
		}
		pool.conns[i] = conn
	}
	return pool, nil
}

// poolHandle is set as Opts.Handle on underlying connections.
type poolHandle struct {
	Handle interface{}
	N      int
}

// Get returns a healthy connection, preferring established ones, or nil
// when every connection is down.
func (p *Pool) Get() *redisconn.Connection {
	if conn := p.getNeed(needConnected); conn != nil {
		return conn
	}
	return p.getNeed(mayBeConnected)
}

func (p *Pool) getNeed(liveness int) *redisconn.Connection {
	switch p.opts.Policy {
	case PreferFirst:
		for _, conn := range p.conns {
			if connHealthy(conn, liveness) {
				return conn
			}
		}
	case RoundRobin:
		off := atomic.AddUint32(&p.rr, 1)
		l := uint32(len(p.conns))
		for i := uint32(0); i < l; i++ {
			conn := p.conns[(off+i)%l]
			if connHealthy(conn, liveness) {
				return conn
			}
		}
	}
	return nil
}

func connHealthy(c *redisconn.Connection, liveness int) bool {
	if liveness == needConnected {
		return c.ConnectedNow()
	}
	return c.MayBeConnected()
}

// Addr returns the address the pool is connected to.
func (p *Pool) Addr() string {
	return p.addr
}

// Send implements redis.Sender.
func (p *Pool) Send(req redis.Request, cb redis.Future, n uint64) {
	conn := p.Get()
	if conn == nil {
		if cb != nil {
			go cb.Resolve(p.downErr(), n)
		}
		return
	}
	conn.Send(req, cb, n)
}

// SendMany implements redis.Sender. The whole batch lands on a single
// connection, so it occupies a contiguous stretch of that socket's order.
func (p *Pool) SendMany(reqs []redis.Request, cb redis.Future, start uint64) {
	conn := p.Get()
	if conn == nil {
		err := p.downErr()
		go func() {
			for i := range reqs {
				cb.Resolve(err, start+uint64(i))
			}
		}()
		return
	}
	conn.SendMany(reqs, cb, start)
}

// SendTransaction implements redis.Sender.
func (p *Pool) SendTransaction(reqs []redis.Request, cb redis.Future, off uint64) {
	conn := p.Get()
	if conn == nil {
		if cb != nil {
			go cb.Resolve(p.downErr(), off)
		}
		return
	}
	conn.SendTransaction(reqs, cb, off)
}

// Scanner implements redis.Sender. The iteration is pinned to one
// connection: SCAN cursors are valid on any server connection, but
// pinning keeps the rounds ordered.
func (p *Pool) Scanner(opts redis.ScanOpts) redis.Scanner {
	conn := p.Get()
	if conn == nil {
		return downScanner{p.downErr()}
	}
	return conn.Scanner(opts)
}

func (p *Pool) downErr() error {
	return redis.ErrNotConnected.New("no alive connection to %s", p.addr)
}

// EachConn calls f for every connection in the pool.
func (p *Pool) EachConn(f func(*redisconn.Connection)) {
	for _, conn := range p.conns {
		f(conn)
	}
}

// Close shuts down every connection in the pool.
func (p *Pool) Close() {
	p.cancel()
}

type downScanner struct {
	err error
}

func (s downScanner) Next(cb redis.Future) {
	cb.Resolve(s.err, 0)
}
