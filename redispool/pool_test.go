package redispool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/redisconn"
	"github.com/redmux/redmux/redispool"
	"github.com/redmux/redmux/testbed"
)

func startServer(t *testing.T) *testbed.Server {
	srv := &testbed.Server{}
	srv.Start()
	t.Cleanup(srv.Stop)
	return srv
}

func newPool(t *testing.T, srv *testbed.Server, opts redispool.Opts) (*redispool.Pool, redis.SyncCtx) {
	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Second)
	t.Cleanup(cancel)
	if opts.ConnOpts.IOTimeout == 0 {
		opts.ConnOpts.IOTimeout = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = redisconn.NoopLogger{}
	}
	p, err := redispool.New(ctx, srv.Addr(), opts)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p, redis.SyncCtx{S: p}
}

func TestNew_Validation(t *testing.T) {
	srv := startServer(t)

	_, err := redispool.New(nil, srv.Addr(), redispool.Opts{})
	require.Error(t, err)
	assert.True(t, redis.AsErrorx(err).IsOfType(redis.ErrContextIsNil))

	_, err = redispool.New(context.Background(), "", redispool.Opts{})
	require.Error(t, err)
	assert.True(t, redis.AsErrorx(err).IsOfType(redis.ErrNoAddressProvided))
}

func TestPool_Basic(t *testing.T) {
	srv := startServer(t)
	p, sync := newPool(t, srv, redispool.Opts{})
	ctx := context.Background()

	assert.Equal(t, srv.Addr(), p.Addr())
	assert.Equal(t, "OK", sync.Do(ctx, "SET", "k", "v"))
	assert.Equal(t, []byte("v"), sync.Do(ctx, "GET", "k"))

	res := sync.SendMany(ctx, []redis.Request{
		redis.Req("ECHO", "a"),
		redis.Req("ECHO", "b"),
	})
	require.Len(t, res, 2)
	assert.Equal(t, []byte("a"), res[0])
	assert.Equal(t, []byte("b"), res[1])

	tres, err := sync.SendTransaction(ctx, []redis.Request{
		redis.Req("SET", "t", "1"),
		redis.Req("INCR", "t"),
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"OK", int64(2)}, tres)
}

func TestPool_RoundRobinSpreads(t *testing.T) {
	srv := startServer(t)
	p, sync := newPool(t, srv, redispool.Opts{
		Size:   3,
		Policy: redispool.RoundRobin,
	})
	ctx := context.Background()

	seen := map[*redisconn.Connection]int{}
	deadline := time.Now().Add(5 * time.Second)
	for len(seen) < 3 && time.Now().Before(deadline) {
		if conn := p.Get(); conn != nil && conn.ConnectedNow() {
			seen[conn]++
		}
		// async siblings may still be dialing the first few rounds
		time.Sleep(time.Millisecond)
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, "PONG", sync.Do(ctx, "PING"))
}

func TestPool_PreferFirstSticks(t *testing.T) {
	srv := startServer(t)
	p, _ := newPool(t, srv, redispool.Opts{
		Size:   2,
		Policy: redispool.PreferFirst,
	})

	first := p.Get()
	require.NotNil(t, first)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, p.Get())
	}
}

func TestPool_DownResolvesWithError(t *testing.T) {
	srv := startServer(t)
	p, sync := newPool(t, srv, redispool.Opts{
		ConnOpts: redisconn.Opts{
			IOTimeout:      200 * time.Millisecond,
			ReconnectPause: 100 * time.Millisecond,
		},
	})
	ctx := context.Background()

	assert.Equal(t, "PONG", sync.Do(ctx, "PING"))

	srv.Stop()
	deadline := time.Now().Add(5 * time.Second)
	for p.Get() != nil && time.Now().Before(deadline) {
		sync.Do(ctx, "PING")
		time.Sleep(10 * time.Millisecond)
	}
	require.Nil(t, p.Get())

	// a request may land on the pool's down path or on a sibling caught
	// mid-redial; either way it fails with a connectivity error
	res := sync.Do(ctx, "PING")
	rerr := redis.AsErrorx(redis.AsError(res))
	require.NotNil(t, rerr)
	assert.True(t, rerr.HasTrait(redis.ErrTraitConnectivity))

	_, err := sync.SendTransaction(ctx, []redis.Request{redis.Req("PING")})
	require.Error(t, err)
	assert.True(t, redis.AsErrorx(err).HasTrait(redis.ErrTraitConnectivity))

	var scanErr error
	iter := sync.Scanner(ctx, redis.ScanOpts{})
	_, scanErr = iter.Next()
	require.Error(t, scanErr)

	// service resumes once the server is back
	srv.Start()
	deadline = time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if res := sync.Do(ctx, "PING"); res == "PONG" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("pool did not recover after server restart")
}

func TestPool_EachConn(t *testing.T) {
	srv := startServer(t)
	p, _ := newPool(t, srv, redispool.Opts{Size: 3})

	n := 0
	p.EachConn(func(c *redisconn.Connection) {
		require.NotNil(t, c)
		n++
	})
	assert.Equal(t, 3, n)
}
