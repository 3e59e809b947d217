package settlement

import (
	"context"
	"sync"
	"time"
)

// MemoryEnvironment settles in process. FailNext and Latency let tests
// simulate an unreliable environment.
type MemoryEnvironment struct {
	mu       sync.Mutex
	seq      uint64
	receipts map[string]Receipt
	events   []Event
	failNext int

	Latency time.Duration
	now     func() time.Time
}

func NewMemoryEnvironment() *MemoryEnvironment {
	return &MemoryEnvironment{
		receipts: make(map[string]Receipt),
		now:      time.Now,
	}
}

// FailNext makes the next n submissions fail with ErrTransient.
func (e *MemoryEnvironment) FailNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = n
}

func (e *MemoryEnvironment) Submit(ctx context.Context, req Request) (Receipt, error) {
	if err := req.Validate(); err != nil {
		return Receipt{}, err
	}

	if e.Latency > 0 {
		select {
		case <-time.After(e.Latency):
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.receipts[req.Key]; ok {
		return r, nil
	}
	if e.failNext > 0 {
		e.failNext--
		return Receipt{}, ErrTransient
	}

	e.seq++
	r := Receipt{Reference: reference(e.seq), Sequence: e.seq, AcceptedAt: e.now()}
	e.receipts[req.Key] = r
	e.events = append(e.events, Event{Request: req, Receipt: r})
	return r, nil
}

func (e *MemoryEnvironment) Events(ctx context.Context, account string) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Event
	for _, ev := range e.events {
		if ev.involves(account) {
			out = append(out, ev)
		}
	}
	return out, nil
}
