package redisconn

import (
	"github.com/redmux/redmux/redis"
)

// Scanner iterates a SCAN-family cursor over this connection.
type Scanner struct {
	redis.ScannerBase

	c *Connection
}

// Scanner implements redis.Sender.Scanner.
func (conn *Connection) Scanner(opts redis.ScanOpts) redis.Scanner {
	return &Scanner{
		ScannerBase: redis.ScannerBase{ScanOpts: opts},
		c:           conn,
	}
}

// Next resolves cb with the next batch of keys, or with redis.ScanEOF when
// the cursor is exhausted.
func (s *Scanner) Next(cb redis.Future) {
	if s.Err != nil {
		cb.Resolve(s.Err, 0)
		return
	}
	if s.IterLast() {
		cb.Resolve(redis.ScanEOF, 0)
		return
	}
	s.DoNext(cb, s.c)
}
