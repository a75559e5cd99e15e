// Package redissimple is a deliberately plain Redis connection: one
// socket, one request in flight, replies read in place. It exists for
// what a multiplexed connection must refuse: blocking commands (BLPOP,
// WAIT, XREAD BLOCK) and optimistic WATCH/MULTI/EXEC transactions, both
// of which need a socket that belongs to a single caller.
//
// Conn is not safe for concurrent use.
package redissimple

import (
	"bufio"
	"net"
	"time"

	"github.com/joomcode/errorx"

	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/resp"
)

// DefaultTimeout is used when Conn.Timeout is zero.
var DefaultTimeout = 5 * time.Second

// Conn is a single exclusive connection. The zero value with Addr set is
// usable: the socket is dialed on first use and redialed after errors.
type Conn struct {
	Addr string
	C    net.Conn
	R    *bufio.Reader

	// Timeout bounds every dial/read/write. Zero means DefaultTimeout;
	// negative disables the deadline, which is what long blocking
	// commands want.
	Timeout time.Duration

	Username string
	Password string
	DB       int
}

func (c *Conn) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Conn) dial() *errorx.Error {
	timeout := c.timeout()
	if timeout < 0 {
		timeout = DefaultTimeout
	}
	conn, err := net.DialTimeout("tcp", c.Addr, timeout)
	if err != nil {
		return redis.ErrDial.WrapWithNoMessage(err).
			WithProperty(redis.EKAddress, c.Addr)
	}
	c.C = conn
	c.R = bufio.NewReader(conn)

	if c.Password != "" {
		user := c.Username
		if user == "" {
			user = "default"
		}
		if rerr := redis.AsErrorx(c.roundTrip(redis.Req("AUTH", user, c.Password))); rerr != nil {
			c.Close()
			return redis.ErrAuth.WrapWithNoMessage(rerr).
				WithProperty(redis.EKAddress, c.Addr)
		}
	}
	if c.DB != 0 {
		if rerr := redis.AsErrorx(c.roundTrip(redis.Req("SELECT", c.DB))); rerr != nil {
			c.Close()
			return redis.ErrConnSetup.WrapWithNoMessage(rerr).
				WithProperty(redis.EKAddress, c.Addr)
		}
	}
	return nil
}

func (c *Conn) roundTrip(req redis.Request) interface{} {
	if c.Timeout >= 0 {
		c.C.SetDeadline(time.Now().Add(c.timeout()))
	}
	buf, rerr := resp.AppendRequest(nil, req)
	if rerr != nil {
		return rerr
	}
	if _, err := c.C.Write(buf); err != nil {
		return redis.ErrIO.WrapWithNoMessage(err).
			WithProperty(redis.EKAddress, c.Addr)
	}
	return resp.Read(c.R)
}

// Do executes one command and returns its reply value, which is an error
// value when the server said so or the connection failed. A request on a
// previously used socket is retried once on a fresh one: the old socket
// could have been closed by an idle timeout long ago.
func (c *Conn) Do(cmd string, args ...interface{}) interface{} {
	return c.DoReq(redis.Req(cmd, args...))
}

// DoReq is Do for an already built request.
func (c *Conn) DoReq(req redis.Request) interface{} {
	try := 1
	if c.C != nil {
		try = 2
	}
	var res interface{}
	for i := 0; i < try; i++ {
		if c.C == nil {
			if rerr := c.dial(); rerr != nil {
				return rerr
			}
		}
		res = c.roundTrip(req)
		rerr := redis.AsErrorx(res)
		if !redis.HardError(rerr) {
			return res
		}
		if rerr.HasTrait(redis.ErrTraitNotSent) {
			// never reached the socket, a redial won't help
			return res
		}
		c.Close()
	}
	return res
}

// SendTransaction runs reqs as a MULTI/EXEC block and returns the
// per-command results. Unlike a multiplexed connection this one may be
// primed with WATCH first; an aborted EXEC comes back as ErrExecAborted.
func (c *Conn) SendTransaction(reqs []redis.Request) ([]interface{}, error) {
	if len(reqs) == 0 {
		return []interface{}{}, nil
	}
	if res := c.DoReq(redis.Req("MULTI")); redis.AsError(res) != nil {
		return nil, redis.AsError(res)
	}
	for _, req := range reqs {
		res := c.roundTrip(req)
		if rerr := redis.AsErrorx(res); rerr != nil {
			if redis.HardError(rerr) {
				c.Close()
				return nil, rerr
			}
			// the command was refused at queueing; EXEC will abort, but
			// this error carries the reason
			c.roundTrip(redis.Req("DISCARD"))
			return nil, rerr.WithProperty(redis.EKRequests, reqs)
		}
	}
	res := c.roundTrip(redis.Req("EXEC"))
	if rerr := redis.AsErrorx(res); redis.HardError(rerr) {
		c.Close()
	}
	return redis.TransactionResponse(res)
}

// Close closes the socket. The next request dials anew.
func (c *Conn) Close() {
	if c.C != nil {
		c.C.Close()
		c.C = nil
		c.R = nil
	}
}

// Do executes a single command over a throwaway connection.
func Do(addr string, cmd string, args ...interface{}) interface{} {
	c := Conn{Addr: addr}
	defer c.Close()
	return c.Do(cmd, args...)
}
