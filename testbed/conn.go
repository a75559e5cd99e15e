package testbed

import (
	"bufio"
	"net"
	"strconv"

	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/resp"
)

// requestReader decodes inbound command frames. Commands arrive as RESP
// arrays of bulk strings, which the reply decoder parses just as well.
type requestReader struct {
	r *bufio.Reader
}

func newRequestReader(c net.Conn) *requestReader {
	return &requestReader{r: bufio.NewReader(c)}
}

func (rr *requestReader) next() ([]string, error) {
	v := resp.Read(rr.r)
	if err := redis.AsError(v); err != nil {
		return nil, err
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, redis.ErrResponseFormat.New("command frame is not an array")
	}
	args := make([]string, len(arr))
	for i, el := range arr {
		switch b := el.(type) {
		case []byte:
			args[i] = string(b)
		case string:
			args[i] = b
		case int64:
			args[i] = strconv.FormatInt(b, 10)
		default:
			return nil, redis.ErrResponseFormat.New("command argument %d is not a string", i)
		}
	}
	return args, nil
}
