// Package backendtest provides a scripted in-memory backend for tests.
package backendtest

import (
	"context"
	"sync"

	"github.com/PetersonGuo/HTN25/internal/backend"
)

// Reply is one scripted response.
type Reply struct {
	Output *string
	Usage  map[string]any
	Err    error
}

// Backend replays scripted replies in order; the last reply repeats once the
// script is exhausted.
type Backend struct {
	mu      sync.Mutex
	replies []Reply
	calls   []backend.Request
	images  bool
}

var _ backend.Backend = (*Backend)(nil)

// New scripts plain text replies.
func New(outputs ...string) *Backend {
	replies := make([]Reply, 0, len(outputs))
	for _, output := range outputs {
		replies = append(replies, Reply{Output: Text(output), Usage: map[string]any{"total_tokens": len(output)}})
	}
	return &Backend{replies: replies}
}

// NewReplies scripts full replies.
func NewReplies(replies ...Reply) *Backend {
	return &Backend{replies: replies}
}

// WithImages marks the backend as image-capable.
func (b *Backend) WithImages() *Backend {
	b.images = true
	return b
}

// Text returns a pointer to s.
func Text(s string) *string {
	return &s
}

func (b *Backend) SupportsImages() bool {
	return b.images
}

func (b *Backend) Generate(ctx context.Context, req backend.Request) (backend.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, req)
	if err := ctx.Err(); err != nil {
		return backend.Result{}, backend.TransportError("backendtest", err)
	}
	if len(b.replies) == 0 {
		return backend.Result{Usage: map[string]any{}}, nil
	}

	reply := b.replies[0]
	if len(b.replies) > 1 {
		b.replies = b.replies[1:]
	}
	if reply.Err != nil {
		return backend.Result{}, reply.Err
	}
	usage := reply.Usage
	if usage == nil {
		usage = map[string]any{}
	}
	return backend.Result{Output: reply.Output, Usage: usage}, nil
}

// Calls returns the requests received so far.
func (b *Backend) Calls() []backend.Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	calls := make([]backend.Request, len(b.calls))
	copy(calls, b.calls)
	return calls
}
