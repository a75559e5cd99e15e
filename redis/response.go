package redis

// TransactionResponse interprets the reply to EXEC.
// An array holds the per-command results in queuing order (each may itself
// be an error reply). A nil reply means the transaction was aborted because
// a watched key changed: that is surfaced as ErrExecAborted, not as a
// server error.
func TransactionResponse(res interface{}) ([]interface{}, error) {
	if arr, ok := res.([]interface{}); ok {
		return arr, nil
	}
	if res == nil {
		return nil, ErrExecAborted.NewWithNoMessage()
	}
	if err, ok := res.(error); ok {
		return nil, err
	}
	return nil, ErrResponseUnexpected.New("EXEC returned non-array").WithProperty(EKResponse, res)
}

// ScanResponse parses the reply of a SCAN-family command into the next
// cursor and the page of keys.
func ScanResponse(res interface{}) ([]byte, []string, error) {
	if err := AsError(res); err != nil {
		return nil, nil, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return nil, nil, ErrResponseUnexpected.New("SCAN returned non-pair").WithProperty(EKResponse, res)
	}
	it, ok := arr[0].([]byte)
	if !ok {
		return nil, nil, ErrResponseUnexpected.New("SCAN cursor is not a string").WithProperty(EKResponse, res)
	}
	keys, ok := arr[1].([]interface{})
	if !ok {
		return nil, nil, ErrResponseUnexpected.New("SCAN page is not an array").WithProperty(EKResponse, res)
	}
	strs := make([]string, len(keys))
	for i, k := range keys {
		b, ok := k.([]byte)
		if !ok {
			return nil, nil, ErrResponseUnexpected.New("SCAN key is not a string").WithProperty(EKResponse, res)
		}
		strs[i] = string(b)
	}
	return it, strs, nil
}
