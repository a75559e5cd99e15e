package redisconn

import (
	"log"

	"go.uber.org/zap"
)

// LogKind is the kind of event reported to a Logger.
type LogKind int

const (
	// LogConnecting - connection attempt started.
	LogConnecting LogKind = iota
	// LogConnected - connection established. v = [localAddr, remoteAddr].
	LogConnected
	// LogConnectFailed - connection attempt failed. v = [error].
	LogConnectFailed
	// LogDisconnected - connection broke. v = [error].
	LogDisconnected
	// LogContextClosed - connection was explicitly shut down.
	LogContextClosed
	// LogPushDropped - a push frame arrived with no subscription sink to
	// consume it, or could not be parsed. v = [reason].
	LogPushDropped
	// LogMAX is a guard for custom loggers.
	LogMAX
)

// Logger is a hook for custom logging of connection events.
type Logger interface {
	Report(event LogKind, conn *Connection, v ...interface{})
}

// NoopLogger discards all events.
type NoopLogger struct{}

// Report implements Logger.
func (NoopLogger) Report(LogKind, *Connection, ...interface{}) {}

type defaultLogger struct{}

func (d defaultLogger) Report(event LogKind, conn *Connection, v ...interface{}) {
	switch event {
	case LogConnecting:
		log.Printf("redis: connecting to %s", conn.Addr())
	case LogConnected:
		localAddr := v[0].(string)
		remoteAddr := v[1].(string)
		log.Printf("redis: connected to %s (localAddr: %s, remote addr: %s)",
			conn.Addr(), localAddr, remoteAddr)
	case LogConnectFailed:
		err := v[0].(error)
		log.Printf("redis: connection to %s failed: %s", conn.Addr(), err.Error())
	case LogDisconnected:
		err := v[0].(error)
		log.Printf("redis: connection to %s broken: %s", conn.Addr(), err.Error())
	case LogContextClosed:
		log.Printf("redis: connect to %s explicitly closed", conn.Addr())
	case LogPushDropped:
		log.Printf("redis: push message from %s dropped: %v", conn.Addr(), v[0])
	default:
		args := []interface{}{"redis: unexpected event:", event, conn}
		args = append(args, v...)
		log.Print(args...)
	}
}

// ZapLogger adapts a zap logger to the Logger interface.
type ZapLogger struct {
	L *zap.Logger
}

// Report implements Logger.
func (z ZapLogger) Report(event LogKind, conn *Connection, v ...interface{}) {
	l := z.L.With(zap.String("addr", conn.Addr()))
	switch event {
	case LogConnecting:
		l.Info("connecting")
	case LogConnected:
		l.Info("connected",
			zap.String("local_addr", v[0].(string)),
			zap.String("remote_addr", v[1].(string)))
	case LogConnectFailed:
		l.Warn("connection failed", zap.Error(v[0].(error)))
	case LogDisconnected:
		l.Warn("connection broken", zap.Error(v[0].(error)))
	case LogContextClosed:
		l.Info("connection closed")
	case LogPushDropped:
		l.Warn("push message dropped", zap.Any("reason", v[0]))
	default:
		l.Error("unexpected event", zap.Int("event", int(event)), zap.Any("args", v))
	}
}
