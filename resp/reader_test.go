package resp_test

import (
	"bufio"
	"bytes"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"

	"github.com/redmux/redmux/redis"
	. "github.com/redmux/redmux/resp"
)

func lines2bufio(lines ...string) *bufio.Reader {
	buf := []byte(strings.Join(lines, ""))
	return bufio.NewReader(bytes.NewReader(buf))
}

func readLines(lines ...string) interface{} {
	return Read(lines2bufio(lines...))
}

func checkErr(t *testing.T, res interface{}, typ *errorx.Type) bool {
	if assert.IsType(t, (*errorx.Error)(nil), res) {
		return assert.True(t, res.(*errorx.Error).IsOfType(typ), "%v is not %v", res, typ)
	}
	return false
}

func TestRead_IOAndFormatErrors(t *testing.T) {
	var res interface{}

	res = readLines("")
	checkErr(t, res, redis.ErrIO)

	res = readLines("\n")
	checkErr(t, res, redis.ErrHeaderlineEmpty)

	res = readLines("\r\n")
	checkErr(t, res, redis.ErrHeaderlineEmpty)

	res = readLines("$\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines("/\r\n")
	checkErr(t, res, redis.ErrUnknownHeaderType)

	res = readLines("+" + strings.Repeat("A", 1024*1024) + "\r\n")
	checkErr(t, res, redis.ErrHeaderlineTooLarge)

	res = readLines(":\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines(":1.1\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines(":a\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines(":-\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines("$a\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines("*a\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines("$0\r\n")
	checkErr(t, res, redis.ErrIO)

	res = readLines("$1\r\n")
	checkErr(t, res, redis.ErrIO)

	res = readLines("$1\r\na")
	checkErr(t, res, redis.ErrIO)

	res = readLines("$1\r\nabc")
	checkErr(t, res, redis.ErrNoFinalRN)

	res = readLines("*1\r\n")
	checkErr(t, res, redis.ErrIO)

	res = readLines("*1\r\n$1\r\n")
	checkErr(t, res, redis.ErrIO)

	res = readLines("*1\r\n$1\r\nabc")
	checkErr(t, res, redis.ErrNoFinalRN)

	res = readLines(",nan?\r\n")
	checkErr(t, res, redis.ErrResponseFormat)

	res = readLines("#x\r\n")
	checkErr(t, res, redis.ErrResponseFormat)

	res = readLines("#true\r\n")
	checkErr(t, res, redis.ErrResponseFormat)

	res = readLines("(12z\r\n")
	checkErr(t, res, redis.ErrIntegerParsing)

	res = readLines("=5\r\n", "hello\r\n")
	checkErr(t, res, redis.ErrResponseFormat)

	res = readLines("!-1\r\n")
	checkErr(t, res, redis.ErrResponseFormat)

	res = readLines(">-1\r\n")
	checkErr(t, res, redis.ErrResponseFormat)

	res = readLines("%1\r\n", "*1\r\n", ":1\r\n", "+v\r\n")
	checkErr(t, res, redis.ErrResponseFormat)
}

func TestRead_Correct(t *testing.T) {
	var res interface{}

	res = readLines("+\r\n")
	assert.Equal(t, "", res)

	res = readLines("+asdf\r\n")
	assert.Equal(t, "asdf", res)

	res = readLines("-\r\n")
	if checkErr(t, res, redis.ErrResultError) {
		assert.Equal(t, "", res.(*errorx.Error).Message())
	}

	res = readLines("-ERR asdf\r\n")
	if checkErr(t, res, redis.ErrResultError) {
		err := res.(*errorx.Error)
		assert.Equal(t, "ERR asdf", err.Message())
		assert.False(t, redis.HardError(err))
		code, _ := err.Property(redis.EKErrorCode)
		assert.Equal(t, "ERR", code)
	}

	res = readLines("-LOADING Redis is loading the dataset in memory\r\n")
	if checkErr(t, res, redis.ErrLoading) {
		assert.False(t, redis.HardError(res.(*errorx.Error)))
	}

	for i := -1000; i <= 1000; i++ {
		res = readLines(fmt.Sprintf(":%d\r\n", i))
		assert.Equal(t, int64(i), res)
	}

	res = readLines(":9223372036854775807\r\n")
	assert.Equal(t, int64(9223372036854775807), res)

	res = readLines(":-9223372036854775808\r\n")
	assert.Equal(t, int64(-9223372036854775808), res)

	res = readLines("$0\r\n", "\r\n")
	assert.Equal(t, []byte(""), res)
	assert.Equal(t, len(res.([]byte)), cap(res.([]byte)))

	res = readLines("$4\r\n", "asdf\r\n")
	assert.Equal(t, []byte("asdf"), res)
	assert.Equal(t, len(res.([]byte)), cap(res.([]byte)))

	big := strings.Repeat("a", 1024*1024)
	res = readLines(fmt.Sprintf("$%d\r\n", len(big)), big, "\r\n")
	assert.Equal(t, []byte(big), res)

	res = readLines("*0\r\n")
	assert.Equal(t, []interface{}{}, res)

	res = readLines("*2\r\n", "+OK\r\n", "*2\r\n", ":1\r\n", "+OK\r\n")
	assert.Equal(t, []interface{}{"OK", []interface{}{int64(1), "OK"}}, res)

	res = readLines("$-1\r\n")
	assert.Nil(t, res)

	res = readLines("*-1\r\n")
	assert.Nil(t, res)
}

func TestRead_RESP3(t *testing.T) {
	var res interface{}

	res = readLines("_\r\n")
	assert.Nil(t, res)

	res = readLines(",3.1415\r\n")
	assert.Equal(t, 3.1415, res)

	res = readLines(",-0.5\r\n")
	assert.Equal(t, -0.5, res)

	res = readLines("#t\r\n")
	assert.Equal(t, true, res)

	res = readLines("#f\r\n")
	assert.Equal(t, false, res)

	n, _ := new(big.Int).SetString("3492890328409238509324850943850943825024385", 10)
	res = readLines("(3492890328409238509324850943850943825024385\r\n")
	assert.Equal(t, n, res)

	// verbatim strings come back with the format prefix stripped
	res = readLines("=15\r\n", "txt:Some string\r\n")
	assert.Equal(t, []byte("Some string"), res)

	res = readLines("=8\r\n", "mkd:*hi*\r\n")
	assert.Equal(t, []byte("*hi*"), res)

	// sets decode like arrays
	res = readLines("~2\r\n", ":1\r\n", ":2\r\n")
	assert.Equal(t, []interface{}{int64(1), int64(2)}, res)

	res = readLines("%2\r\n", "+key\r\n", ":7\r\n", "$5\r\nother\r\n", "#t\r\n")
	assert.Equal(t, map[string]interface{}{"key": int64(7), "other": true}, res)

	res = readLines("%-1\r\n")
	assert.Nil(t, res)

	// attributes are decoded and discarded
	res = readLines("|1\r\n", "+ttl\r\n", ":3600\r\n", ":42\r\n")
	assert.Equal(t, int64(42), res)

	res = readLines("!10\r\n", "ERR oopsie\r\n")
	if checkErr(t, res, redis.ErrResultError) {
		assert.Equal(t, "ERR oopsie", res.(*errorx.Error).Message())
	}

	res = readLines(">3\r\n", "$7\r\nmessage\r\n", "$2\r\nch\r\n", "$5\r\nhello\r\n")
	if assert.IsType(t, Push(nil), res) {
		p := res.(Push)
		kind, ok := p.Kind()
		assert.True(t, ok)
		assert.Equal(t, "message", kind)
		assert.Equal(t, Push{[]byte("message"), []byte("ch"), []byte("hello")}, p)
	}
}

func TestRead_NestedHardErrorAbortsAggregate(t *testing.T) {
	res := readLines("*2\r\n", "/\r\n", ":1\r\n")
	checkErr(t, res, redis.ErrUnknownHeaderType)

	res = readLines("%1\r\n", "+k\r\n", "$1\r\nabc")
	checkErr(t, res, redis.ErrNoFinalRN)

	// a server error element is not a decoding failure
	res = readLines("*2\r\n", "-ERR nope\r\n", ":1\r\n")
	arr, ok := res.([]interface{})
	if assert.True(t, ok) {
		checkErr(t, arr[0], redis.ErrResultError)
		assert.Equal(t, int64(1), arr[1])
	}
}
