package redisconn_test

import (
	"context"
	"runtime"
	. "testing"

	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/redisconn"
	"github.com/redmux/redmux/redissimple"
	"github.com/redmux/redmux/testbed"
)

func benchServer() (*testbed.Server, func()) {
	s := &testbed.Server{}
	s.Start()
	return s, s.Stop
}

func benchConn(b *B, srv *testbed.Server) redis.Sync {
	conn, err := redisconn.Connect(context.Background(), srv.Addr(), redisconn.Opts{
		Logger: redisconn.NoopLogger{},
	})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(conn.Close)
	return redis.Sync{S: conn}
}

func BenchmarkSerialGetSet(b *B) {
	srv, stop := benchServer()
	defer stop()

	b.Run("simple", func(b *B) {
		c := redissimple.Conn{Addr: srv.Addr()}
		defer c.Close()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if res := c.Do("SET", "foo", "bar"); redis.AsError(res) != nil {
				b.Fatal(res)
			}
			if res := c.Do("GET", "foo"); redis.AsError(res) != nil {
				b.Fatal(res)
			}
		}
	})

	b.Run("multiplexed", func(b *B) {
		sync := benchConn(b, srv)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if res := sync.Do("SET", "foo", "bar"); redis.AsError(res) != nil {
				b.Fatal(res)
			}
			if res := sync.Do("GET", "foo"); redis.AsError(res) != nil {
				b.Fatal(res)
			}
		}
	})
}

func BenchmarkParallelGetSet(b *B) {
	srv, stop := benchServer()
	defer stop()

	sync := benchConn(b, srv)
	b.SetParallelism(runtime.GOMAXPROCS(0) * 8)
	b.ResetTimer()
	b.RunParallel(func(pb *PB) {
		for pb.Next() {
			if res := sync.Do("SET", "foo", "bar"); redis.AsError(res) != nil {
				b.Fatal(res)
			}
			if res := sync.Do("GET", "foo"); redis.AsError(res) != nil {
				b.Fatal(res)
			}
		}
	})
}

func BenchmarkSendMany(b *B) {
	srv, stop := benchServer()
	defer stop()

	sync := benchConn(b, srv)
	reqs := make([]redis.Request, 100)
	for i := range reqs {
		reqs[i] = redis.Req("ECHO", "payload")
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, res := range sync.SendMany(reqs) {
			if redis.AsError(res) != nil {
				b.Fatal(res)
			}
		}
	}
}
