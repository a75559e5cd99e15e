package redis

import (
	"strconv"
)

// Req is a convenient constructor for Request.
func Req(cmd string, args ...interface{}) Request {
	return Request{cmd, args}
}

// Request is a command name together with its ordered arguments.
// It is immutable once built: the core only serializes and correlates it,
// never interprets its semantics.
type Request struct {
	Cmd  string
	Args []interface{}
}

func (req Request) String() string {
	s := req.Cmd
	for i, a := range req.Args {
		if i >= 2 {
			s += " ..."
			break
		}
		if arg, ok := ArgToString(a); ok {
			s += " " + arg
		} else {
			s += " <unserializable>"
		}
	}
	return s
}

// Key returns the first command key, if any.
func (req Request) Key() (string, bool) {
	if req.Cmd == "RANDOMKEY" {
		return "RANDOMKEY", false
	}
	n := 0
	if req.Cmd == "EVAL" || req.Cmd == "EVALSHA" || req.Cmd == "BITOP" {
		n = 1
	}
	if len(req.Args) <= n {
		return "", false
	}
	return ArgToString(req.Args[n])
}

// ArgToString renders an argument the way it would appear on the wire.
func ArgToString(arg interface{}) (string, bool) {
	switch v := arg.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case int:
		return strconv.FormatInt(int64(v), 10), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		if v {
			return "1", true
		}
		return "0", true
	case nil:
		return "", true
	default:
		return "", false
	}
}

// Future is the delivery slot for a reply. Resolve is called exactly once
// per submitted request, either with the decoded reply or with a connection
// error. Cancelled lets the core skip work for callers that stopped waiting;
// the queue position is consumed regardless, so cancellation never
// desynchronizes the reply stream.
type Future interface {
	Resolve(res interface{}, n uint64)
	Cancelled() bool
}

// FuncFuture adapts a plain function to the Future interface.
type FuncFuture func(res interface{}, n uint64)

// Cancelled implements Future.
func (f FuncFuture) Cancelled() bool { return false }

// Resolve implements Future.
func (f FuncFuture) Resolve(res interface{}, n uint64) { f(res, n) }
