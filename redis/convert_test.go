package redis_test

import (
	"math/big"
	"testing"

	. "github.com/redmux/redmux/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertConversion(t *testing.T, err error) {
	require.Error(t, err)
	assert.True(t, AsErrorx(err).IsOfType(ErrConversion), "%v", err)
}

func TestToString(t *testing.T) {
	s, err := ToString("OK")
	assert.NoError(t, err)
	assert.Equal(t, "OK", s)

	s, err = ToString([]byte("value"))
	assert.NoError(t, err)
	assert.Equal(t, "value", s)

	s, err = ToString(nil)
	assert.NoError(t, err)
	assert.Equal(t, "", s)

	s, err = ToString(int64(42))
	assert.NoError(t, err)
	assert.Equal(t, "42", s)

	s, err = ToString(0.5)
	assert.NoError(t, err)
	assert.Equal(t, "0.5", s)

	_, err = ToString([]interface{}{})
	assertConversion(t, err)

	serr := ServerError("ERR boom")
	_, err = ToString(serr)
	assert.Equal(t, error(serr), err)
}

func TestToBytes(t *testing.T) {
	b, err := ToBytes([]byte("raw"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("raw"), b)

	b, err = ToBytes("str")
	assert.NoError(t, err)
	assert.Equal(t, []byte("str"), b)

	b, err = ToBytes(nil)
	assert.NoError(t, err)
	assert.Nil(t, b)

	_, err = ToBytes(int64(1))
	assertConversion(t, err)
}

func TestToInt(t *testing.T) {
	i, err := ToInt(int64(7))
	assert.NoError(t, err)
	assert.Equal(t, int64(7), i)

	i, err = ToInt([]byte("-13"))
	assert.NoError(t, err)
	assert.Equal(t, int64(-13), i)

	i, err = ToInt("99")
	assert.NoError(t, err)
	assert.Equal(t, int64(99), i)

	i, err = ToInt(big.NewInt(1 << 40))
	assert.NoError(t, err)
	assert.Equal(t, int64(1<<40), i)

	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	_, err = ToInt(huge)
	assertConversion(t, err)

	_, err = ToInt([]byte("1.5"))
	assertConversion(t, err)

	_, err = ToInt(nil)
	assertConversion(t, err)
}

func TestToFloat(t *testing.T) {
	f, err := ToFloat(0.25)
	assert.NoError(t, err)
	assert.Equal(t, 0.25, f)

	f, err = ToFloat(int64(3))
	assert.NoError(t, err)
	assert.Equal(t, 3.0, f)

	f, err = ToFloat([]byte("-1.5"))
	assert.NoError(t, err)
	assert.Equal(t, -1.5, f)

	_, err = ToFloat([]byte("nope"))
	assertConversion(t, err)
}

func TestToBool(t *testing.T) {
	b, err := ToBool(true)
	assert.NoError(t, err)
	assert.True(t, b)

	b, err = ToBool(int64(0))
	assert.NoError(t, err)
	assert.False(t, b)

	b, err = ToBool(int64(1))
	assert.NoError(t, err)
	assert.True(t, b)

	b, err = ToBool("OK")
	assert.NoError(t, err)
	assert.True(t, b)

	b, err = ToBool(nil)
	assert.NoError(t, err)
	assert.False(t, b)

	_, err = ToBool([]byte("OK"))
	assertConversion(t, err)
}

func TestToStrings(t *testing.T) {
	strs, err := ToStrings([]interface{}{[]byte("a"), "b", int64(3)})
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "3"}, strs)

	_, err = ToStrings("not an array")
	assertConversion(t, err)

	_, err = ToStrings([]interface{}{[]interface{}{}})
	assertConversion(t, err)
}

func TestToStringMap(t *testing.T) {
	m, err := ToStringMap(map[string]interface{}{"a": int64(1), "b": []byte("x")})
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x"}, m)

	// RESP2 shape: flat field-value array
	m, err = ToStringMap([]interface{}{[]byte("a"), []byte("1"), "b", "x"})
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x"}, m)

	_, err = ToStringMap([]interface{}{[]byte("a")})
	assertConversion(t, err)

	_, err = ToStringMap(int64(1))
	assertConversion(t, err)
}
