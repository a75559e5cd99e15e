package resp_test

import (
	"bufio"
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmux/redmux/redis"
	. "github.com/redmux/redmux/resp"
)

func TestAppendRequest(t *testing.T) {
	check := func(req redis.Request, wire string) {
		buf, err := AppendRequest(nil, req)
		require.NoError(t, err)
		assert.Equal(t, wire, string(buf))
	}

	check(redis.Req("PING"), "*1\r\n$4\r\nPING\r\n")
	check(redis.Req("SET", "k", "v"),
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")
	check(redis.Req("SET", "k", []byte{1, 2, 3}),
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$3\r\n\x01\x02\x03\r\n")
	check(redis.Req("INCRBY", "k", 123),
		"*3\r\n$6\r\nINCRBY\r\n$1\r\nk\r\n$3\r\n123\r\n")
	check(redis.Req("INCRBY", "k", int64(-7)),
		"*3\r\n$6\r\nINCRBY\r\n$1\r\nk\r\n$2\r\n-7\r\n")
	check(redis.Req("EXPIRE", "k", uint16(60)),
		"*3\r\n$6\r\nEXPIRE\r\n$1\r\nk\r\n$2\r\n60\r\n")
	check(redis.Req("INCRBYFLOAT", "k", 0.5),
		"*3\r\n$11\r\nINCRBYFLOAT\r\n$1\r\nk\r\n$3\r\n0.5\r\n")
	check(redis.Req("SET", "k", true),
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\n1\r\n")
	check(redis.Req("SET", "k", false),
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\n0\r\n")
	check(redis.Req("SET", "k", nil),
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$0\r\n\r\n")
}

func TestAppendRequest_UnsupportedArgument(t *testing.T) {
	for _, arg := range []interface{}{
		struct{}{},
		map[string]string{"a": "b"},
		[]string{"a"},
		make(chan int),
	} {
		_, err := AppendRequest(nil, redis.Req("SET", "k", arg))
		require.Error(t, err)
		assert.True(t, redis.AsErrorx(err).IsOfType(redis.ErrArgumentType))
	}
}

func TestAppendRequest_AppendsToPrefix(t *testing.T) {
	buf, err := AppendRequest([]byte("prefix"), redis.Req("PING"))
	require.NoError(t, err)
	assert.Equal(t, "prefix*1\r\n$4\r\nPING\r\n", string(buf))
}

func readBack(t *testing.T, buf []byte) interface{} {
	r := bufio.NewReader(bytes.NewReader(buf))
	res := Read(r)
	if err := redis.AsErrorx(res); err != nil {
		require.False(t, redis.HardError(err), "decode failed: %v", err)
	}
	_, err := r.ReadByte()
	require.Error(t, err, "trailing garbage after reply")
	return res
}

func TestAppendReply_RoundTrip(t *testing.T) {
	bignum, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	for _, v := range []interface{}{
		nil,
		"OK",
		[]byte("payload"),
		int64(-42),
		3.25,
		true,
		false,
		bignum,
		[]interface{}{int64(1), "two", []byte("three")},
		map[string]interface{}{"a": int64(1), "b": true},
		Push{[]byte("message"), []byte("ch"), []byte("body")},
	} {
		assert.Equal(t, v, readBack(t, AppendReply(nil, v)))
	}

	// int collapses to int64 on the way back
	assert.Equal(t, int64(5), readBack(t, AppendReply(nil, 5)))
}

func TestAppendReply_Errors(t *testing.T) {
	res := readBack(t, AppendReply(nil, redis.ServerError("ERR something")))
	err := redis.AsErrorx(res)
	require.NotNil(t, err)
	assert.True(t, err.IsOfType(redis.ErrResultError))
	assert.Equal(t, "ERR something", err.Message())
}

func TestAppendReply2(t *testing.T) {
	assert.Equal(t, "$-1\r\n", string(AppendReply2(nil, nil)))
	assert.Equal(t, ":1\r\n", string(AppendReply2(nil, true)))
	assert.Equal(t, ":0\r\n", string(AppendReply2(nil, false)))
	assert.Equal(t, "$4\r\n3.25\r\n", string(AppendReply2(nil, 3.25)))
	assert.Equal(t, "+OK\r\n", string(AppendReply2(nil, "OK")))
	assert.Equal(t, ":7\r\n", string(AppendReply2(nil, int64(7))))

	// maps flatten to field-value arrays
	buf := AppendReply2(nil, map[string]interface{}{"k": int64(1)})
	assert.Equal(t, "*2\r\n$1\r\nk\r\n:1\r\n", string(buf))

	// push frames degrade to plain arrays, nested values convert too
	buf = AppendReply2(nil, Push{[]byte("message"), []byte("ch"), nil})
	assert.Equal(t, "*3\r\n$7\r\nmessage\r\n$2\r\nch\r\n$-1\r\n", string(buf))
}
