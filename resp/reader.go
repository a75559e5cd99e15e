package resp

import (
	"bufio"
	"io"
	"math/big"
	"strconv"

	"github.com/joomcode/errorx"

	"github.com/redmux/redmux/redis"
)

// Push is a server-initiated frame (RESP3 '>'). It is never matched to a
// pending request: the reader loop routes it to the subscription sink.
type Push []interface{}

// Kind returns the push kind ("message", "subscribe", ...), if well-formed.
func (p Push) Kind() (string, bool) {
	if len(p) == 0 {
		return "", false
	}
	switch v := p[0].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

// Read decodes one reply from b.
//
// Decoding is driven by the blocking reader: a partially received frame
// simply blocks until the rest arrives, so the decoder is trivially
// restartable across successive socket reads. Replies map to plain Go
// values:
//
//	simple string        string
//	bulk string          []byte
//	verbatim string      []byte (format prefix stripped)
//	integer              int64
//	double               float64
//	boolean              bool
//	big number           *big.Int
//	null                 nil
//	array, set           []interface{}
//	map                  map[string]interface{}
//	error, blob error    *errorx.Error (result kind)
//	push                 Push
//
// Attributes are decoded and discarded; the value they annotate is
// returned. IO and framing problems are returned as error values carrying
// the connectivity trait, so the caller can tell them apart from ordinary
// server error replies.
func Read(b *bufio.Reader) interface{} {
	line, isPrefix, err := b.ReadLine()
	if err != nil {
		return redis.ErrIO.WrapWithNoMessage(err)
	}

	if isPrefix {
		return redis.ErrHeaderlineTooLarge.NewWithNoMessage().WithProperty(redis.EKLine, string(line))
	}

	if len(line) == 0 {
		return redis.ErrHeaderlineEmpty.NewWithNoMessage()
	}

	var v int64
	switch line[0] {
	case TypeSimpleString:
		return string(line[1:])
	case TypeError:
		return redis.ServerError(string(line[1:]))
	case TypeInteger:
		if v, err = parseInt(line[1:]); err != nil {
			return err
		}
		return v
	case TypeBulkString:
		if v, err = parseInt(line[1:]); err != nil {
			return err
		}
		if v < 0 {
			return nil
		}
		return readBody(b, v)
	case TypeVerbatim:
		if v, err = parseInt(line[1:]); err != nil {
			return err
		}
		if v < 0 {
			return nil
		}
		body := readBody(b, v)
		buf, ok := body.([]byte)
		if !ok {
			return body
		}
		// strip the "txt:"/"mkd:" format prefix
		if len(buf) < 4 || buf[3] != ':' {
			return redis.ErrResponseFormat.New("verbatim string without format prefix")
		}
		return buf[4:]
	case TypeBlobError:
		if v, err = parseInt(line[1:]); err != nil {
			return err
		}
		if v < 0 {
			return redis.ErrResponseFormat.New("blob error with negative length")
		}
		body := readBody(b, v)
		buf, ok := body.([]byte)
		if !ok {
			return body
		}
		return redis.ServerError(string(buf))
	case TypeNull:
		return nil
	case TypeDouble:
		f, perr := strconv.ParseFloat(string(line[1:]), 64)
		if perr != nil {
			return redis.ErrResponseFormat.New("malformed double").WithProperty(redis.EKLine, string(line))
		}
		return f
	case TypeBoolean:
		if len(line) == 2 {
			switch line[1] {
			case 't':
				return true
			case 'f':
				return false
			}
		}
		return redis.ErrResponseFormat.New("malformed boolean").WithProperty(redis.EKLine, string(line))
	case TypeBigNumber:
		n, ok := new(big.Int).SetString(string(line[1:]), 10)
		if !ok {
			return redis.ErrIntegerParsing.NewWithNoMessage().WithProperty(redis.EKLine, string(line))
		}
		return n
	case TypeArray, TypeSet:
		if v, err = parseInt(line[1:]); err != nil {
			return err
		}
		if v < 0 {
			return nil
		}
		return readElements(b, v)
	case TypePush:
		if v, err = parseInt(line[1:]); err != nil {
			return err
		}
		if v < 0 {
			return redis.ErrResponseFormat.New("push frame with negative length")
		}
		elems := readElements(b, v)
		arr, ok := elems.([]interface{})
		if !ok {
			return elems
		}
		return Push(arr)
	case TypeMap:
		if v, err = parseInt(line[1:]); err != nil {
			return err
		}
		if v < 0 {
			return nil
		}
		return readMap(b, v)
	case TypeAttribute:
		if v, err = parseInt(line[1:]); err != nil {
			return err
		}
		if attrs := readMap(b, v); hardErr(attrs) {
			return attrs
		}
		return Read(b)
	default:
		return redis.ErrUnknownHeaderType.NewWithNoMessage().WithProperty(redis.EKLine, string(line))
	}
}

func readBody(b *bufio.Reader, n int64) interface{} {
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(b, buf); err != nil {
		return redis.ErrIO.WrapWithNoMessage(err)
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return redis.ErrNoFinalRN.NewWithNoMessage()
	}
	return buf[:n:n]
}

func readElements(b *bufio.Reader, n int64) interface{} {
	result := make([]interface{}, n)
	for i := int64(0); i < n; i++ {
		result[i] = Read(b)
		if hardErr(result[i]) {
			return result[i]
		}
	}
	return result
}

func readMap(b *bufio.Reader, pairs int64) interface{} {
	result := make(map[string]interface{}, pairs)
	for i := int64(0); i < pairs; i++ {
		k := Read(b)
		if hardErr(k) {
			return k
		}
		key, err := redis.ToString(k)
		if err != nil {
			return redis.ErrResponseFormat.New("unhashable map key").WithProperty(redis.EKResponse, k)
		}
		v := Read(b)
		if hardErr(v) {
			return v
		}
		result[key] = v
	}
	return result
}

// hardErr reports whether a nested value is a connection-fatal error that
// must abort decoding of the enclosing aggregate.
func hardErr(v interface{}) bool {
	if e, ok := v.(*errorx.Error); ok {
		return redis.HardError(e)
	}
	return false
}

func parseInt(buf []byte) (int64, error) {
	if len(buf) == 0 {
		return 0, redis.ErrIntegerParsing.NewWithNoMessage()
	}

	neg := buf[0] == '-'
	if neg {
		buf = buf[1:]
	}
	if len(buf) == 0 {
		return 0, redis.ErrIntegerParsing.NewWithNoMessage()
	}
	v := int64(0)
	for _, b := range buf {
		if b < '0' || b > '9' {
			return 0, redis.ErrIntegerParsing.NewWithNoMessage()
		}
		v *= 10
		v += int64(b - '0')
	}
	if neg {
		v = -v
	}
	return v, nil
}
