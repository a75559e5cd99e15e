package redis

import (
	"errors"
)

// Sender is the asynchronous submission interface implemented by every
// connection flavour. Implementations guarantee that futures are resolved
// exactly once, in the order requests were written to the socket.
type Sender interface {
	// Send submits a single request. cb may be nil: the request is still
	// written and its queue slot is still consumed, but the reply is
	// discarded ("forget" mode).
	Send(r Request, cb Future, n uint64)
	// SendMany submits requests as one contiguous batch. cb is resolved
	// once per request with indices start..start+len(r)-1.
	SendMany(r []Request, cb Future, start uint64)
	// SendTransaction wraps requests in MULTI/EXEC and resolves cb once
	// with the EXEC reply (array of per-command results, or nil when the
	// transaction was aborted).
	SendTransaction(r []Request, cb Future, start uint64)
	// Scanner iterates a SCAN-family command.
	Scanner(opts ScanOpts) Scanner
	Close()
}

// Scanner is an iterator over SCAN cursors.
type Scanner interface {
	Next(Future)
}

// ScanEOF signals the end of a scan iteration.
var ScanEOF = errors.New("iteration finished")

// ScanOpts describes a SCAN-family invocation.
type ScanOpts struct {
	// Cmd is SCAN, SSCAN, HSCAN or ZSCAN. Default is SCAN.
	Cmd string
	// Key for SSCAN/HSCAN/ZSCAN.
	Key string
	// Match pattern.
	Match string
	// Count hint per round trip.
	Count int
}

// Request builds the request for the given cursor position.
func (s ScanOpts) Request(it []byte) Request {
	if it == nil {
		it = []byte("0")
	}
	args := []interface{}{it}
	if s.Cmd == "" {
		s.Cmd = "SCAN"
	}
	if s.Cmd != "SCAN" {
		args = append([]interface{}{s.Key}, args...)
	}
	if s.Match != "" {
		args = append(args, "MATCH", s.Match)
	}
	if s.Count > 0 {
		args = append(args, "COUNT", s.Count)
	}
	return Request{s.Cmd, args}
}

// ScannerBase is the common part of Scanner implementations.
type ScannerBase struct {
	ScanOpts
	Iter []byte
	Err  error
	cb   Future
}

// DoNext sends the next SCAN round through snd, resolving cb with the keys.
func (s *ScannerBase) DoNext(cb Future, snd Sender) {
	s.cb = cb
	snd.Send(s.ScanOpts.Request(s.Iter), s, 0)
}

// IterLast reports whether the cursor reached "0".
func (s *ScannerBase) IterLast() bool {
	return len(s.Iter) == 1 && s.Iter[0] == '0'
}

// Cancelled implements Future.
func (s *ScannerBase) Cancelled() bool {
	return s.cb.Cancelled()
}

// Resolve implements Future.
func (s *ScannerBase) Resolve(res interface{}, _ uint64) {
	var keys []string
	s.Iter, keys, s.Err = ScanResponse(res)
	cb := s.cb
	s.cb = nil
	if s.Err != nil {
		cb.Resolve(s.Err, 0)
	} else {
		cb.Resolve(keys, 0)
	}
}
