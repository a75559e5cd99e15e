package redis

import (
	"context"
)

// Pipeline accumulates requests without writing them, then flushes them as
// one contiguous batch and collects the replies in submission order.
//
// The batch shares the connection's total write order with everything else
// submitted concurrently: it occupies one contiguous stretch of it. An error
// reply at position i occupies its slot; it does not abort the rest of the
// batch, since each command is independent at the protocol level.
//
// A Pipeline is not safe for concurrent use; build one per flush cycle.
type Pipeline struct {
	s    Sender
	reqs []Request
}

// NewPipeline creates an empty pipeline above snd.
func NewPipeline(snd Sender) *Pipeline {
	return &Pipeline{s: snd}
}

// Queue appends a request to the batch without sending it.
func (p *Pipeline) Queue(r Request) {
	p.reqs = append(p.reqs, r)
}

// Do builds a request and queues it.
func (p *Pipeline) Do(cmd string, args ...interface{}) {
	p.Queue(Request{cmd, args})
}

// Len returns the number of queued requests.
func (p *Pipeline) Len() int {
	return len(p.reqs)
}

// Exec flushes the queued requests and waits for every reply, or for ctx
// cancellation. It returns exactly one result per queued request, in
// submission order, and resets the pipeline for reuse.
func (p *Pipeline) Exec(ctx context.Context) []interface{} {
	reqs := p.reqs
	p.reqs = nil
	if len(reqs) == 0 {
		return nil
	}
	return SyncCtx{p.s}.SendMany(ctx, reqs)
}
