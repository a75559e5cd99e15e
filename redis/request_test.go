package redis_test

import (
	"testing"

	. "github.com/redmux/redmux/redis"
	"github.com/stretchr/testify/assert"
)

func TestRequestKey(t *testing.T) {
	var k string
	var ok bool

	k, ok = Req("GET", 1).Key()
	assert.Equal(t, "1", k)
	assert.True(t, ok)

	k, ok = Req("GET").Key()
	assert.False(t, ok)

	k, ok = Req("SET", 1, 2).Key()
	assert.Equal(t, "1", k)
	assert.True(t, ok)

	k, ok = Req("RANDOMKEY").Key()
	assert.Equal(t, "RANDOMKEY", k)
	assert.False(t, ok)

	k, ok = Req("EVAL", 1, 2, 3).Key()
	assert.Equal(t, "2", k)
	assert.True(t, ok)

	k, ok = Req("EVALSHA", 1, 2, 3).Key()
	assert.Equal(t, "2", k)
	assert.True(t, ok)

	k, ok = Req("BITOP", "AND", 1, 2).Key()
	assert.Equal(t, "1", k)
	assert.True(t, ok)
}

func TestRequestString(t *testing.T) {
	assert.Equal(t, "PING", Req("PING").String())
	assert.Equal(t, "SET k v", Req("SET", "k", "v").String())
	assert.Equal(t, "DEL a b ...", Req("DEL", "a", "b", "c", "d").String())
	assert.Equal(t, "SET k <unserializable>", Req("SET", "k", make(chan int)).String())
}

func TestArgToString(t *testing.T) {
	var k string
	var ok bool

	k, ok = ArgToString(int(0))
	assert.Equal(t, "0", k)
	assert.True(t, ok)

	k, ok = ArgToString(uint(1))
	assert.Equal(t, "1", k)
	assert.True(t, ok)

	k, ok = ArgToString(int8(-31))
	assert.Equal(t, "-31", k)
	assert.True(t, ok)

	k, ok = ArgToString(uint8(156))
	assert.Equal(t, "156", k)
	assert.True(t, ok)

	k, ok = ArgToString(int16(-3906))
	assert.Equal(t, "-3906", k)
	assert.True(t, ok)

	k, ok = ArgToString(uint16(19351))
	assert.Equal(t, "19351", k)
	assert.True(t, ok)

	k, ok = ArgToString(int32(-488281))
	assert.Equal(t, "-488281", k)
	assert.True(t, ok)

	k, ok = ArgToString(uint32(2441406))
	assert.Equal(t, "2441406", k)
	assert.True(t, ok)

	k, ok = ArgToString(int64(-9223372036854775808))
	assert.Equal(t, "-9223372036854775808", k)
	assert.True(t, ok)

	k, ok = ArgToString(uint64(18446744073709551615))
	assert.Equal(t, "18446744073709551615", k)
	assert.True(t, ok)

	k, ok = ArgToString(float32(0.25))
	assert.Equal(t, "0.25", k)
	assert.True(t, ok)

	k, ok = ArgToString(float64(-10000.25))
	assert.Equal(t, "-10000.25", k)
	assert.True(t, ok)

	k, ok = ArgToString(true)
	assert.Equal(t, "1", k)
	assert.True(t, ok)

	k, ok = ArgToString(false)
	assert.Equal(t, "0", k)
	assert.True(t, ok)

	k, ok = ArgToString(nil)
	assert.Equal(t, "", k)
	assert.True(t, ok)

	k, ok = ArgToString("asdf")
	assert.Equal(t, "asdf", k)
	assert.True(t, ok)

	k, ok = ArgToString([]byte("asdf"))
	assert.Equal(t, "asdf", k)
	assert.True(t, ok)

	k, ok = ArgToString(make(chan int))
	assert.Equal(t, "", k)
	assert.False(t, ok)
}
