package resp

import (
	"math/big"
	"strconv"

	"github.com/joomcode/errorx"

	"github.com/redmux/redmux/redis"
)

// AppendRequest appends the wire form of a request to buf.
// It never fails for requests built from the supported argument types;
// any other argument yields ErrArgumentType without touching the socket.
func AppendRequest(buf []byte, req redis.Request) ([]byte, error) {
	buf = appendHead(buf, TypeArray, int64(len(req.Args)+1))
	buf = appendHead(buf, TypeBulkString, int64(len(req.Cmd)))
	buf = append(buf, req.Cmd...)
	buf = append(buf, '\r', '\n')
	for _, val := range req.Args {
		switch v := val.(type) {
		case string:
			buf = appendHead(buf, TypeBulkString, int64(len(v)))
			buf = append(buf, v...)
		case []byte:
			buf = appendHead(buf, TypeBulkString, int64(len(v)))
			buf = append(buf, v...)
		case int:
			buf = appendBulkInt(buf, int64(v))
		case uint:
			buf = appendBulkInt(buf, int64(v))
		case int64:
			buf = appendBulkInt(buf, v)
		case uint64:
			buf = appendBulkInt(buf, int64(v))
		case int32:
			buf = appendBulkInt(buf, int64(v))
		case uint32:
			buf = appendBulkInt(buf, int64(v))
		case int8:
			buf = appendBulkInt(buf, int64(v))
		case uint8:
			buf = appendBulkInt(buf, int64(v))
		case int16:
			buf = appendBulkInt(buf, int64(v))
		case uint16:
			buf = appendBulkInt(buf, int64(v))
		case float32:
			buf = appendBulkString(buf, strconv.FormatFloat(float64(v), 'f', -1, 32))
		case float64:
			buf = appendBulkString(buf, strconv.FormatFloat(v, 'f', -1, 64))
		case bool:
			if v {
				buf = appendBulkString(buf, "1")
			} else {
				buf = appendBulkString(buf, "0")
			}
		case nil:
			buf = appendBulkString(buf, "")
		default:
			return nil, redis.ErrArgumentType.New("argument type %T is not supported", val).
				WithProperty(redis.EKRequest, req)
		}
		buf = append(buf, '\r', '\n')
	}
	return buf, nil
}

// AppendReply appends the RESP3 wire form of a decoded reply value to buf.
// It is the inverse of Read for every representable reply variant, which is
// what the in-process test server runs on.
func AppendReply(buf []byte, v interface{}) []byte {
	switch r := v.(type) {
	case nil:
		return append(buf, TypeNull, '\r', '\n')
	case string:
		buf = append(buf, TypeSimpleString)
		buf = append(buf, r...)
		return append(buf, '\r', '\n')
	case []byte:
		buf = appendHead(buf, TypeBulkString, int64(len(r)))
		buf = append(buf, r...)
		return append(buf, '\r', '\n')
	case int:
		return appendLine(buf, TypeInteger, strconv.FormatInt(int64(r), 10))
	case int64:
		return appendLine(buf, TypeInteger, strconv.FormatInt(r, 10))
	case float64:
		return appendLine(buf, TypeDouble, strconv.FormatFloat(r, 'f', -1, 64))
	case bool:
		if r {
			return append(buf, TypeBoolean, 't', '\r', '\n')
		}
		return append(buf, TypeBoolean, 'f', '\r', '\n')
	case *big.Int:
		return appendLine(buf, TypeBigNumber, r.String())
	case []interface{}:
		buf = appendHead(buf, TypeArray, int64(len(r)))
		for _, el := range r {
			buf = AppendReply(buf, el)
		}
		return buf
	case map[string]interface{}:
		buf = appendHead(buf, TypeMap, int64(len(r)))
		for k, el := range r {
			buf = AppendReply(buf, []byte(k))
			buf = AppendReply(buf, el)
		}
		return buf
	case Push:
		buf = appendHead(buf, TypePush, int64(len(r)))
		for _, el := range r {
			buf = AppendReply(buf, el)
		}
		return buf
	case *errorx.Error:
		return appendLine(buf, TypeError, r.Message())
	case error:
		return appendLine(buf, TypeError, r.Error())
	default:
		return appendLine(buf, TypeError, "ERR unencodable reply value")
	}
}

// AppendReply2 appends the RESP2 wire form of a decoded reply value:
// nulls become empty bulk strings, doubles and big numbers become bulk
// strings, booleans become integers, maps flatten to field-value arrays
// and push frames are plain arrays.
func AppendReply2(buf []byte, v interface{}) []byte {
	switch r := v.(type) {
	case nil:
		return append(buf, TypeBulkString, '-', '1', '\r', '\n')
	case float64:
		return AppendReply2(buf, []byte(strconv.FormatFloat(r, 'f', -1, 64)))
	case bool:
		if r {
			return appendLine(buf, TypeInteger, "1")
		}
		return appendLine(buf, TypeInteger, "0")
	case *big.Int:
		return AppendReply2(buf, []byte(r.String()))
	case []interface{}:
		buf = appendHead(buf, TypeArray, int64(len(r)))
		for _, el := range r {
			buf = AppendReply2(buf, el)
		}
		return buf
	case map[string]interface{}:
		buf = appendHead(buf, TypeArray, int64(len(r)*2))
		for k, el := range r {
			buf = AppendReply2(buf, []byte(k))
			buf = AppendReply2(buf, el)
		}
		return buf
	case Push:
		return AppendReply2(buf, []interface{}(r))
	default:
		return AppendReply(buf, v)
	}
}

func appendLine(b []byte, t byte, s string) []byte {
	b = append(b, t)
	b = append(b, s...)
	return append(b, '\r', '\n')
}

func appendBulkString(b []byte, s string) []byte {
	b = appendHead(b, TypeBulkString, int64(len(s)))
	return append(b, s...)
}

func appendInt(b []byte, i int64) []byte {
	return strconv.AppendInt(b, i, 10)
}

func appendHead(b []byte, t byte, i int64) []byte {
	b = append(b, t)
	b = appendInt(b, i)
	return append(b, '\r', '\n')
}

func appendBulkInt(b []byte, i int64) []byte {
	s := strconv.FormatInt(i, 10)
	b = appendHead(b, TypeBulkString, int64(len(s)))
	return append(b, s...)
}
