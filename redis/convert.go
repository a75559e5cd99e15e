package redis

import (
	"math/big"
	"strconv"
)

// Typed conversion layer above the decoded reply representation.
// Replies are plain Go values (see package resp); these helpers extract the
// semantic type a caller wants and return ErrConversion when the shape does
// not fit. Conversion failures are local to the caller and never affect the
// connection.

// ToString converts simple and bulk string replies (and numbers) to string.
// A nil reply converts to the empty string.
func ToString(res interface{}) (string, error) {
	if err := AsError(res); err != nil {
		return "", err
	}
	switch v := res.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", ErrConversion.New("not a string reply").WithProperty(EKResponse, res)
	}
}

// ToBytes converts a bulk or simple string reply to its raw bytes.
// A nil reply yields nil without error.
func ToBytes(res interface{}) ([]byte, error) {
	if err := AsError(res); err != nil {
		return nil, err
	}
	switch v := res.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, ErrConversion.New("not a string reply").WithProperty(EKResponse, res)
	}
}

// ToInt converts integer replies, and string replies holding decimal
// integers, to int64.
func ToInt(res interface{}) (int64, error) {
	if err := AsError(res); err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case *big.Int:
		if v.IsInt64() {
			return v.Int64(), nil
		}
	case []byte:
		if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return i, nil
		}
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, nil
		}
	}
	return 0, ErrConversion.New("not an integer reply").WithProperty(EKResponse, res)
}

// ToFloat converts double, integer and numeric string replies to float64.
func ToFloat(res interface{}) (float64, error) {
	if err := AsError(res); err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case []byte:
		if f, err := strconv.ParseFloat(string(v), 64); err == nil {
			return f, nil
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, nil
		}
	}
	return 0, ErrConversion.New("not a double reply").WithProperty(EKResponse, res)
}

// ToBool converts boolean replies and the common integer/OK conventions.
func ToBool(res interface{}) (bool, error) {
	if err := AsError(res); err != nil {
		return false, err
	}
	switch v := res.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case string:
		return v == "OK", nil
	case nil:
		return false, nil
	}
	return false, ErrConversion.New("not a boolean reply").WithProperty(EKResponse, res)
}

// ToStrings converts an array reply of strings to []string.
func ToStrings(res interface{}) ([]string, error) {
	if err := AsError(res); err != nil {
		return nil, err
	}
	arr, ok := res.([]interface{})
	if !ok {
		return nil, ErrConversion.New("not an array reply").WithProperty(EKResponse, res)
	}
	strs := make([]string, len(arr))
	for i, el := range arr {
		s, err := ToString(el)
		if err != nil {
			return nil, err
		}
		strs[i] = s
	}
	return strs, nil
}

// ToStringMap converts a map reply (RESP3), or a flat field-value array
// reply (RESP2), to map[string]string.
func ToStringMap(res interface{}) (map[string]string, error) {
	if err := AsError(res); err != nil {
		return nil, err
	}
	switch v := res.(type) {
	case map[string]interface{}:
		m := make(map[string]string, len(v))
		for k, el := range v {
			s, err := ToString(el)
			if err != nil {
				return nil, err
			}
			m[k] = s
		}
		return m, nil
	case []interface{}:
		if len(v)%2 != 0 {
			return nil, ErrConversion.New("flat map reply with odd length").WithProperty(EKResponse, res)
		}
		m := make(map[string]string, len(v)/2)
		for i := 0; i < len(v); i += 2 {
			k, err := ToString(v[i])
			if err != nil {
				return nil, err
			}
			val, err := ToString(v[i+1])
			if err != nil {
				return nil, err
			}
			m[k] = val
		}
		return m, nil
	}
	return nil, ErrConversion.New("not a map reply").WithProperty(EKResponse, res)
}
