package redis

// ChanFutured provides a future-returning API above a Sender, where
// completion is signalled by closing a channel.
type ChanFutured struct {
	S Sender
}

// Send submits a request and returns its future.
func (s ChanFutured) Send(r Request) *ChanFuture {
	f := &ChanFuture{wait: make(chan struct{})}
	s.S.Send(r, f, 0)
	return f
}

// SendMany submits a contiguous batch and returns one future per request.
func (s ChanFutured) SendMany(reqs []Request) ChanFutures {
	futures := make(ChanFutures, len(reqs))
	for i := range futures {
		futures[i] = &ChanFuture{wait: make(chan struct{})}
	}
	s.S.SendMany(reqs, futures, 0)
	return futures
}

// SendTransaction submits a MULTI/EXEC transaction and returns its future.
func (s ChanFutured) SendTransaction(r []Request) *ChanTransaction {
	future := &ChanTransaction{
		ChanFuture: ChanFuture{wait: make(chan struct{})},
	}
	s.S.SendTransaction(r, future, 0)
	return future
}

// ChanFuture is a single one-shot reply slot.
type ChanFuture struct {
	r    interface{}
	wait chan struct{}
}

// Value blocks until the reply is delivered and returns it.
func (f *ChanFuture) Value() interface{} {
	<-f.wait
	return f.r
}

// Done is closed once the reply is delivered.
func (f *ChanFuture) Done() <-chan struct{} {
	return f.wait
}

// Cancelled implements Future.
func (f *ChanFuture) Cancelled() bool { return false }

// Resolve implements Future.
func (f *ChanFuture) Resolve(res interface{}, _ uint64) {
	f.r = res
	close(f.wait)
}

// ChanFutures is a set of reply slots for a batch, resolved by index.
type ChanFutures []*ChanFuture

// Cancelled implements Future.
func (f ChanFutures) Cancelled() bool { return false }

// Resolve implements Future.
func (f ChanFutures) Resolve(res interface{}, i uint64) {
	f[i].Resolve(res, i)
}

// ChanTransaction is the future of a MULTI/EXEC transaction.
type ChanTransaction struct {
	ChanFuture
}

// Results blocks until EXEC completes and returns the per-command results.
func (f *ChanTransaction) Results() ([]interface{}, error) {
	<-f.wait
	return TransactionResponse(f.r)
}
