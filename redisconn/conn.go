package redisconn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/joomcode/errorx"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/redmux/redmux/internal"
	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/resp"
)

const (
	connDisconnected = 0
	connConnecting   = 1
	connConnected    = 2
	connClosed       = 3

	defaultReconnectPause = 500 * time.Millisecond
	defaultKeepAlive      = 300 * time.Millisecond
	defaultIOTimeout      = 1 * time.Second
)

// Opts is the configuration of a Connection. The zero value is usable.
type Opts struct {
	// ReconnectPause is a pause after failed connection attempt before the
	// next one, growing exponentially up to 10x.
	// If ReconnectPause < 0, then no reconnection will be performed.
	// If ReconnectPause == 0, then the default pause is used (500ms).
	// ReconnectPause/2 is used as the timeout for Dial.
	ReconnectPause time.Duration
	// DialTimeout is the timeout for net.Dialer.
	// If not set, ReconnectPause/2 is used.
	DialTimeout time.Duration
	// DB - database number for SELECT.
	DB int
	// Username for AUTH. Defaults to "default" when a password is set.
	Username string
	// Password for AUTH.
	Password string
	// Protocol2 forces RESP2: no HELLO is sent at setup. By default a
	// HELLO 3 handshake is attempted, falling back to RESP2 when the
	// server does not know the command.
	Protocol2 bool
	// ScriptMode allows blocking and connection-mode commands through the
	// generic submission path. Set it only when the connection is used
	// from a single goroutine.
	ScriptMode bool
	// Handle is returned with Connection.Handle().
	Handle interface{}
	// Concurrency - number of write shards. Default is GOMAXPROCS*2.
	Concurrency uint32
	// IOTimeout - timeout on read/write to the socket.
	// If IOTimeout == 0, it is set to 1 second.
	// If IOTimeout < 0, the timeout is disabled.
	IOTimeout time.Duration
	// TCPKeepAlive - KeepAlive parameter for net.Dialer.
	TCPKeepAlive time.Duration
	// Logger for connection events.
	Logger Logger
	// Async - do not establish the connection before Connect returns.
	Async bool
}

// Connection is a single multiplexed connection to a Redis server.
//
// Arbitrarily many goroutines may submit requests concurrently: each
// request is encoded and its reply slot enqueued under one shard lock, so
// the order replies are matched to callers is exactly the order commands
// reach the socket. One background goroutine owns the read half of the
// socket and demultiplexes ordinary replies from pub/sub push traffic.
//
// Connection is cheap to share: cloneable handles are plain copies of the
// pointer; the socket, queue and sink are never duplicated.
type Connection struct {
	ctx      context.Context
	cancel   context.CancelFunc
	state    uint32
	resp3    uint32
	closeErr error

	addr  string
	c     net.Conn
	mutex sync.Mutex

	shardid    uint32
	shard      []connShard
	dirtyShard chan uint32

	subs *xsync.MapOf[subKey, struct{}]
	// subMu serializes subscription-state changes so that ack counting for
	// argument-less unsubscribes is correct.
	subMu sync.Mutex
	sink  atomic.Pointer[PubSub]

	opts Opts
}

// future is one pending-request slot. A nil redis.Future is "forget" mode:
// the slot still consumes its queue position, the delivered reply is
// merely discarded.
type future struct {
	f redis.Future
	n uint64
}

func (f future) resolve(res interface{}) {
	if f.f != nil {
		f.f.Resolve(res, f.n)
	}
}

type connShard struct {
	sync.Mutex
	buf     []byte
	futures []future
	_pad    [16]uint64 //nolint:unused // prevents false sharing between shards
}

// oneconn is the state of one established socket. Reconnects produce a
// fresh oneconn; futures in flight on the old one are drained with its
// error.
type oneconn struct {
	c       net.Conn
	futures chan []future
	control chan struct{}
	resp3   bool
	err     error
	erronce sync.Once
}

// Connect establishes a Connection to addr. The context controls the whole
// lifetime of the connection, not only the dial.
func Connect(ctx context.Context, addr string, opts Opts) (conn *Connection, err error) {
	if ctx == nil {
		return nil, redis.ErrContextIsNil.NewWithNoMessage()
	}
	if addr == "" {
		return nil, redis.ErrNoAddressProvided.NewWithNoMessage()
	}
	conn = &Connection{
		addr: addr,
		opts: opts,
		subs: xsync.NewMapOf[subKey, struct{}](),
	}
	conn.ctx, conn.cancel = context.WithCancel(ctx)

	maxprocs := uint32(runtime.GOMAXPROCS(-1))
	if opts.Concurrency == 0 || opts.Concurrency > maxprocs*128 {
		conn.opts.Concurrency = maxprocs * 2
	}

	conn.shard = make([]connShard, conn.opts.Concurrency)
	conn.dirtyShard = make(chan uint32, conn.opts.Concurrency*2)

	if conn.opts.ReconnectPause == 0 {
		conn.opts.ReconnectPause = defaultReconnectPause
	}

	if conn.opts.TCPKeepAlive == 0 {
		conn.opts.TCPKeepAlive = defaultKeepAlive
	} else if conn.opts.TCPKeepAlive < 0 {
		conn.opts.TCPKeepAlive = 0
	}

	if conn.opts.IOTimeout == 0 {
		conn.opts.IOTimeout = defaultIOTimeout
	} else if conn.opts.IOTimeout < 0 {
		conn.opts.IOTimeout = 0
	}

	if conn.opts.Logger == nil {
		conn.opts.Logger = defaultLogger{}
	}

	if !conn.opts.Async {
		if err = conn.createConnection(false, nil); err != nil {
			if opts.ReconnectPause < 0 {
				return nil, err
			}
			if rerr := redis.AsErrorx(err); rerr != nil && rerr.IsOfType(redis.ErrAuth) {
				return nil, err
			}
		}
	}

	if conn.opts.Async || err != nil {
		var ch chan struct{}
		if conn.opts.Async {
			ch = make(chan struct{})
		}
		go func() {
			conn.mutex.Lock()
			defer conn.mutex.Unlock()
			conn.createConnection(true, ch)
		}()
		// in async mode we are still waiting for the state to become
		// connConnecting, so that Send will put requests into the queue
		if conn.opts.Async {
			<-ch
		}
	}

	go conn.control()

	return conn, nil
}

// ConnectedNow reports whether the connection is certainly established.
func (conn *Connection) ConnectedNow() bool {
	return atomic.LoadUint32(&conn.state) == connConnected
}

// MayBeConnected reports whether the connection is established or being
// established.
func (conn *Connection) MayBeConnected() bool {
	s := atomic.LoadUint32(&conn.state)
	return s == connConnected || s == connConnecting
}

// RESP3 reports whether the current connection negotiated RESP3.
func (conn *Connection) RESP3() bool {
	return atomic.LoadUint32(&conn.resp3) == 1
}

// Close shuts the connection down forever.
func (conn *Connection) Close() {
	conn.cancel()
}

// RemoteAddr is the address of the server socket.
func (conn *Connection) RemoteAddr() string {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	if conn.c == nil {
		return ""
	}
	return conn.c.RemoteAddr().String()
}

// LocalAddr is the outgoing socket address.
func (conn *Connection) LocalAddr() string {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	if conn.c == nil {
		return ""
	}
	return conn.c.LocalAddr().String()
}

// Addr is the address the connection was created with.
func (conn *Connection) Addr() string {
	return conn.addr
}

// Ctx returns the context of this connection, derived from the one passed
// to Connect.
func (conn *Connection) Ctx() context.Context {
	return conn.ctx
}

// Handle returns the custom data set with Opts.Handle.
func (conn *Connection) Handle() interface{} {
	return conn.opts.Handle
}

// Ping checks the connection with a round trip.
func (conn *Connection) Ping() error {
	var wg sync.WaitGroup
	var res interface{}

	wg.Add(1)
	conn.Send(redis.Req("PING"), redis.FuncFuture(func(r interface{}, _ uint64) {
		res = r
		wg.Done()
	}), 0)
	wg.Wait()

	if err := redis.AsError(res); err != nil {
		return err
	}
	if !pingOK(res) {
		return redis.ErrPing.NewWithNoMessage().
			WithProperty(EKConnection, conn).
			WithProperty(redis.EKResponse, res)
	}
	return nil
}

// In subscribed RESP2 mode the server answers PING with ["pong", ""].
func pingOK(res interface{}) bool {
	if s, ok := res.(string); ok {
		return strings.EqualFold(s, "PONG")
	}
	if arr, ok := res.([]interface{}); ok && len(arr) >= 1 {
		s, err := redis.ToString(arr[0])
		return err == nil && strings.EqualFold(s, "PONG")
	}
	return false
}

func (conn *Connection) getShard() (uint32, *connShard) {
	shardn := atomic.AddUint32(&conn.shardid, 1) % conn.opts.Concurrency
	return shardn, &conn.shard[shardn]
}

func resolveAsync(cb redis.Future, res interface{}, n uint64) {
	if cb != nil {
		internal.Go(func() { cb.Resolve(res, n) })
	}
}

// Send submits a request. cb may be nil to discard the reply; the queue
// slot is consumed either way, so forget-mode can never desynchronize the
// reply stream.
func (conn *Connection) Send(req redis.Request, cb redis.Future, n uint64) {
	if redis.Forbidden(req.Cmd, conn.opts.ScriptMode) {
		resolveAsync(cb, conn.forbiddenErr(req), n)
		return
	}
	conn.send(req, cb, n)
}

func (conn *Connection) forbiddenErr(req redis.Request) *errorx.Error {
	return redis.ErrCommandForbidden.New("command %s is not allowed on a multiplexed connection", req.Cmd).
		WithProperty(EKConnection, conn).
		WithProperty(redis.EKRequest, req)
}

func (conn *Connection) send(req redis.Request, cb redis.Future, n uint64) {
	shardn, shard := conn.getShard()
	shard.Lock()
	defer shard.Unlock()

	if err := conn.stateErr(); err != nil {
		resolveAsync(cb, err, n)
		return
	}
	buf, err := resp.AppendRequest(shard.buf, req)
	if err != nil {
		resolveAsync(cb, withNewProperty(redis.AsErrorx(err), EKConnection, conn), n)
		return
	}
	if len(shard.buf) == 0 {
		conn.dirtyShard <- shardn
	}
	shard.buf = buf
	shard.futures = append(shard.futures, future{cb, n})
}

// SendMany submits requests as one contiguous batch: the batch occupies a
// contiguous stretch of the connection's total write order, and cb is
// resolved once per request in that order.
func (conn *Connection) SendMany(requests []redis.Request, cb redis.Future, start uint64) {
	if len(requests) == 0 {
		return
	}
	for _, req := range requests {
		if redis.Forbidden(req.Cmd, conn.opts.ScriptMode) {
			err := conn.forbiddenErr(req)
			internal.Go(func() {
				for i := range requests {
					cb.Resolve(err, start+uint64(i))
				}
			})
			return
		}
	}

	shardn, shard := conn.getShard()
	shard.Lock()
	defer shard.Unlock()

	if err := conn.stateErr(); err != nil {
		internal.Go(func() {
			for i := range requests {
				cb.Resolve(err, start+uint64(i))
			}
		})
		return
	}

	buf := shard.buf
	futures := shard.futures
	for i, req := range requests {
		var err error
		buf, err = resp.AppendRequest(buf, req)
		if err != nil {
			ferr := redis.AsErrorx(err)
			internal.Go(func() {
				err := withNewProperty(ferr, EKConnection, conn)
				commonErr := redis.ErrBatchFormat.WrapWithNoMessage(err).
					WithProperty(redis.EKRequests, requests).
					WithProperty(EKConnection, conn)
				for j := range requests {
					if j == i {
						cb.Resolve(err, start+uint64(i))
					} else {
						cb.Resolve(commonErr, start+uint64(j))
					}
				}
			})
			return
		}
		futures = append(futures, future{cb, start + uint64(i)})
	}

	if len(shard.buf) == 0 {
		conn.dirtyShard <- shardn
	}
	shard.buf = buf
	shard.futures = futures
}

// stateErr must be called under a shard lock.
func (conn *Connection) stateErr() error {
	switch atomic.LoadUint32(&conn.state) {
	case connClosed:
		return redis.ErrContextClosed.WrapWithNoMessage(conn.ctx.Err()).
			WithProperty(EKConnection, conn)
	case connDisconnected:
		return redis.ErrNotConnected.NewWithNoMessage().
			WithProperty(EKConnection, conn)
	}
	return nil
}

func (conn *Connection) String() string {
	return fmt.Sprintf("*redisconn.Connection{addr: %s}", conn.addr)
}

/********** private api **************/

func (conn *Connection) report(event LogKind, v ...interface{}) {
	conn.opts.Logger.Report(event, conn, v...)
}

func (conn *Connection) lockShards() {
	for i := range conn.shard {
		conn.shard[i].Lock()
	}
}

func (conn *Connection) unlockShards() {
	for i := range conn.shard {
		conn.shard[i].Unlock()
	}
}

func (conn *Connection) dial() error {
	var connection net.Conn
	var err error
	network := "tcp"
	address := conn.addr
	timeout := conn.opts.DialTimeout
	if timeout <= 0 {
		timeout = conn.opts.ReconnectPause / 2
	}
	if timeout <= 0 {
		timeout = defaultReconnectPause / 2
	} else if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	if address[0] == '.' || address[0] == '/' {
		network = "unix"
	} else if strings.HasPrefix(address, "unix://") {
		network = "unix"
		address = address[7:]
	} else if strings.HasPrefix(address, "tcp://") {
		network = "tcp"
		address = address[6:]
	}
	dialer := net.Dialer{
		Timeout:       timeout,
		DualStack:     true,
		FallbackDelay: timeout / 2,
		KeepAlive:     conn.opts.TCPKeepAlive,
	}
	connection, err = dialer.DialContext(conn.ctx, network, address)
	if err != nil {
		return redis.ErrDial.WrapWithNoMessage(err).
			WithProperty(EKAddress, conn.addr)
	}
	dc := newDeadlineIO(connection, conn.opts.IOTimeout)
	r := bufio.NewReaderSize(dc, 128*1024)
	w := bufio.NewWriterSize(dc, 128*1024)

	resp3, err := conn.setup(dc, r)
	if err != nil {
		connection.Close()
		return err
	}

	conn.lockShards()
	conn.c = connection
	atomic.StoreUint32(&conn.resp3, b2u(resp3))
	conn.unlockShards()

	one := &oneconn{
		c:       connection,
		futures: make(chan []future, conn.opts.Concurrency*8),
		control: make(chan struct{}),
		resp3:   resp3,
	}

	go conn.writer(w, one)
	go conn.reader(r, one)

	conn.resubscribe()

	return nil
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// setup performs the handshake on a fresh socket: HELLO 3 (with inline
// AUTH) unless RESP2 is forced, then PING, then SELECT. All setup requests
// are written as one packet and their replies consumed in order.
func (conn *Connection) setup(dc io.Writer, r *bufio.Reader) (resp3 bool, err error) {
	var req []byte
	sendHello := !conn.opts.Protocol2
	if sendHello {
		helloArgs := []interface{}{3}
		if conn.opts.Password != "" {
			user := conn.opts.Username
			if user == "" {
				user = "default"
			}
			helloArgs = append(helloArgs, "AUTH", user, conn.opts.Password)
		}
		req, _ = resp.AppendRequest(req, redis.Req("HELLO", helloArgs...))
	} else if conn.opts.Password != "" {
		if conn.opts.Username != "" {
			req, _ = resp.AppendRequest(req, redis.Req("AUTH", conn.opts.Username, conn.opts.Password))
		} else {
			req, _ = resp.AppendRequest(req, redis.Req("AUTH", conn.opts.Password))
		}
	}
	req, _ = resp.AppendRequest(req, redis.Req("PING"))
	if conn.opts.DB != 0 {
		req, _ = resp.AppendRequest(req, redis.Req("SELECT", conn.opts.DB))
	}
	if _, err = dc.Write(req); err != nil {
		return false, redis.ErrConnSetup.WrapWithNoMessage(err).
			WithProperty(EKConnection, conn)
	}

	if sendHello {
		res := resp.Read(r)
		switch rerr := redis.AsErrorx(res); {
		case rerr == nil:
			// map reply: RESP3 from here on
			resp3 = true
		case redis.HardError(rerr):
			return false, withNewProperty(rerr, EKConnection, conn)
		default:
			// server does not know HELLO; stay on RESP2
			if conn.opts.Password != "" {
				if strings.Contains(rerr.Message(), "password") || strings.Contains(rerr.Message(), "WRONGPASS") {
					return false, redis.ErrAuth.WrapWithNoMessage(rerr).WithProperty(EKConnection, conn)
				}
				return false, redis.ErrConnSetup.Wrap(rerr,
					"HELLO failed on a password-protected server; set Opts.Protocol2 for pre-RESP3 servers")
			}
		}
	} else if conn.opts.Password != "" {
		res := resp.Read(r)
		if rerr := redis.AsErrorx(res); rerr != nil {
			if redis.HardError(rerr) {
				return false, withNewProperty(rerr, EKConnection, conn)
			}
			if strings.Contains(rerr.Message(), "password") {
				return false, redis.ErrAuth.WrapWithNoMessage(rerr).WithProperty(EKConnection, conn)
			}
			return false, redis.ErrConnSetup.WrapWithNoMessage(rerr).WithProperty(EKConnection, conn)
		}
	}

	// PING response
	res := resp.Read(r)
	if rerr := redis.AsErrorx(res); rerr != nil {
		return false, redis.ErrConnSetup.WrapWithNoMessage(rerr).WithProperty(EKConnection, conn)
	}
	if !pingOK(res) {
		return false, redis.ErrConnSetup.New("ping response mismatch").
			WithProperty(EKConnection, conn).
			WithProperty(redis.EKResponse, res)
	}

	// SELECT response
	if conn.opts.DB != 0 {
		res = resp.Read(r)
		if rerr := redis.AsErrorx(res); rerr != nil {
			return false, redis.ErrConnSetup.WrapWithNoMessage(rerr).
				WithProperty(EKConnection, conn).
				WithProperty(EKDb, conn.opts.DB)
		}
		if str, ok := res.(string); !ok || str != "OK" {
			return false, redis.ErrConnSetup.New("SELECT db response mismatch").
				WithProperty(EKConnection, conn).
				WithProperty(EKDb, conn.opts.DB).
				WithProperty(redis.EKResponse, res)
		}
	}

	return resp3, nil
}

func (conn *Connection) createConnection(reconnect bool, ch chan struct{}) error {
	var err error
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = conn.opts.ReconnectPause
	eb.MaxInterval = conn.opts.ReconnectPause * 10
	for conn.c == nil && atomic.LoadUint32(&conn.state) == connDisconnected {
		conn.report(LogConnecting)
		now := time.Now()
		// start accepting requests
		atomic.StoreUint32(&conn.state, connConnecting)
		if ch != nil {
			close(ch)
			ch = nil
		}
		err = conn.dial()
		if err == nil {
			atomic.StoreUint32(&conn.state, connConnected)
			conn.report(LogConnected,
				conn.c.LocalAddr().String(),
				conn.c.RemoteAddr().String())
			return nil
		}

		conn.report(LogConnectFailed, err)
		atomic.StoreUint32(&conn.state, connDisconnected)
		conn.lockShards()
		conn.dropShardFutures(err)
		conn.unlockShards()

		if !reconnect {
			return err
		}
		conn.mutex.Unlock()
		time.Sleep(time.Until(now.Add(eb.NextBackOff())))
		conn.mutex.Lock()
	}
	if ch != nil {
		close(ch)
	}
	if atomic.LoadUint32(&conn.state) == connClosed {
		err = conn.ctx.Err()
	}
	return err
}

// dropShardFutures must be called with all shards locked.
func (conn *Connection) dropShardFutures(err error) {
Loop:
	for {
		select {
		case <-conn.dirtyShard:
		default:
			break Loop
		}
	}
	for i := range conn.shard {
		sh := &conn.shard[i]
		for _, fut := range sh.futures {
			fut.resolve(err)
		}
		sh.buf = sh.buf[:0]
		sh.futures = sh.futures[:0]
	}
}

func (conn *Connection) closeConnection(neterr error, forever bool) error {
	if forever {
		atomic.StoreUint32(&conn.state, connClosed)
		conn.report(LogContextClosed)
	} else {
		atomic.StoreUint32(&conn.state, connDisconnected)
		conn.report(LogDisconnected, neterr)
	}

	if forever {
		if sink := conn.sink.Load(); sink != nil {
			sink.closeWith(neterr)
			conn.sink.Store(nil)
		}
	}

	var err error

	conn.lockShards()
	defer conn.unlockShards()
	if conn.c != nil {
		err = conn.c.Close()
		conn.c = nil
	}

	conn.dropShardFutures(neterr)
	return err
}

func (conn *Connection) control() {
	timeout := conn.opts.IOTimeout / 3
	if timeout <= 0 {
		timeout = time.Second
	}
	t := time.NewTicker(timeout)
	defer t.Stop()
	for {
		select {
		case <-conn.ctx.Done():
			conn.mutex.Lock()
			defer conn.mutex.Unlock()
			conn.closeErr = redis.ErrContextClosed.WrapWithNoMessage(conn.ctx.Err()).
				WithProperty(EKConnection, conn)
			conn.closeConnection(conn.closeErr, true)
			return
		case <-t.C:
		}
		if err := conn.Ping(); err != nil {
			if rerr := redis.AsErrorx(err); rerr != nil && rerr.IsOfType(redis.ErrPing) {
				// states about a serious error in our code
				panic(err)
			}
		}
	}
}

func (one *oneconn) setErr(neterr error, conn *Connection) {
	one.erronce.Do(func() {
		one.err = neterr
		close(one.control)
	})
	go conn.reconnect(neterr, one)
}

func (conn *Connection) reconnect(neterr error, one *oneconn) {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	if atomic.LoadUint32(&conn.state) == connClosed {
		return
	}
	if conn.opts.ReconnectPause < 0 {
		conn.Close()
		return
	}
	if conn.c == one.c {
		conn.closeConnection(neterr, false)
		conn.createConnection(true, nil)
	}
}

// writer coalesces dirty shards into contiguous socket writes. The futures
// batch is published to the reader before the corresponding bytes are
// written: that ordering is what keeps every reply attributable to exactly
// its request.
func (conn *Connection) writer(w *bufio.Writer, one *oneconn) {
	var shardn uint32
	var packet []byte
	var futures []future
	defer close(one.futures)
	round := 1023
	for {
		select {
		case shardn = <-conn.dirtyShard:
		case <-conn.ctx.Done():
			return
		case <-one.control:
			return
		default:
			runtime.Gosched()
			if len(conn.dirtyShard) == 0 {
				if err := w.Flush(); err != nil {
					one.setErr(err, conn)
					return
				}
			}
			select {
			case shardn = <-conn.dirtyShard:
			case <-conn.ctx.Done():
				return
			case <-one.control:
				return
			}
		}

		shard := &conn.shard[shardn]
		shard.Lock()
		packet, shard.buf = shard.buf, packet
		futures, shard.futures = shard.futures, futures
		shard.Unlock()

		if len(packet) == 0 {
			if len(futures) != 0 {
				panic("empty packet with pending futures")
			}
			continue
		}

		select {
		case one.futures <- futures:
		default:
			if err := w.Flush(); err != nil {
				one.futures <- futures
				one.setErr(err, conn)
				return
			}
			one.futures <- futures
		}

		l, err := w.Write(packet)
		if err != nil {
			one.setErr(err, conn)
			return
		}
		if l != len(packet) {
			panic("wrong length written")
		}

		if round--; round == 0 {
			// occasionally free the buffer
			round = 1023
			packet = nil
		} else {
			packet = packet[0:0]
		}
		capa := 1
		for ; capa < len(futures); capa *= 2 {
		}
		futures = make([]future, 0, capa)
	}
}

// reader owns the read half of the socket: it decodes frames continuously,
// routes pub/sub traffic to the sink and matches everything else to the
// oldest pending future. It never blocks on caller-side waits.
func (conn *Connection) reader(r *bufio.Reader, one *oneconn) {
	var batch []future
	var bi int
	for {
		res := resp.Read(r)
		if rerr := redis.AsErrorx(res); rerr != nil && redis.HardError(rerr) {
			one.setErr(withNewProperty(rerr, EKConnection, conn), conn)
			break
		}

		if push, ok := res.(resp.Push); ok {
			kind, _ := push.Kind()
			if isMessageKind(kind) {
				conn.routeMessage(kind, []interface{}(push))
				continue
			}
			if !isAckKind(kind) {
				// server-initiated frame we have no consumer for
				conn.report(LogPushDropped, kind)
				continue
			}
			// subscription acks are ordinary correlated replies
			res = []interface{}(push)
		} else if !one.resp3 && conn.sink.Load() != nil {
			// RESP2 delivers pushes as plain arrays while subscribed
			if arr, ok := res.([]interface{}); ok {
				if kind, got := arrayKind(arr); got && isMessageKind(kind) {
					conn.routeMessage(kind, arr)
					continue
				}
			}
		}

		if bi == len(batch) {
			batch, bi = nil, 0
			select {
			case batch = <-one.futures:
			default:
			}
			if len(batch) == 0 {
				one.setErr(redis.ErrDesync.New("reply arrived with no request pending").
					WithProperty(EKConnection, conn).
					WithProperty(redis.EKResponse, res), conn)
				break
			}
		}
		batch[bi].resolve(res)
		batch[bi] = future{}
		bi++
	}

	for _, fut := range batch[bi:] {
		fut.resolve(one.err)
	}
	for batch := range one.futures {
		for _, fut := range batch {
			fut.resolve(one.err)
		}
	}
}
