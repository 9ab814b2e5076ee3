package audit

import (
	"context"
	"sync"
)

// Fake is a deterministic Submitter. When Gate is non-nil each call blocks
// until Gate is closed or the context ends.
type Fake struct {
	Result *Result
	Err    error
	Gate   chan struct{}

	mu       sync.Mutex
	requests []Request
}

// SubmitAudit implements Submitter.
func (f *Fake) SubmitAudit(ctx context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Result.Clone(), nil
}

// Requests returns the requests received so far.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}
