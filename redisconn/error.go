package redisconn

import (
	"github.com/joomcode/errorx"

	"github.com/redmux/redmux/redis"
)

var (
	// EKConnection - key for the connection that handled the request.
	EKConnection = errorx.RegisterProperty("connection")
	// EKAddress - address of the server.
	EKAddress = redis.EKAddress
	// EKDb - db number to select.
	EKDb = errorx.RegisterPrintableProperty("db")
)

func withNewProperty(err *errorx.Error, p errorx.Property, v interface{}) *errorx.Error {
	if _, ok := err.Property(p); ok {
		return err
	}
	return err.WithProperty(p, v)
}
