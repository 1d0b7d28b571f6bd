package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBusy is returned by Bounded when no slot frees up before the deadline.
var ErrBusy = errors.New("generator busy")

// Serialized wraps a generator that is not safe for concurrent use so that
// at most one call runs at a time.
type Serialized struct {
	mu  sync.Mutex
	gen Generator
}

// NewSerialized wraps gen with a mutex.
func NewSerialized(gen Generator) *Serialized {
	return &Serialized{gen: gen}
}

// Generate implements Generator.
func (s *Serialized) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen.Generate(ctx, prompt, p)
}

// Bounded limits a generator to a fixed number of concurrent calls and a
// per-call timeout. A call that times out returns immediately; its slot is
// released only when the underlying call actually finishes.
type Bounded struct {
	gen     Generator
	slots   chan struct{}
	timeout time.Duration
}

// NewBounded wraps gen. maxConcurrent below 1 is treated as 1; a zero
// timeout disables the deadline.
func NewBounded(gen Generator, maxConcurrent int, timeout time.Duration) *Bounded {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Bounded{
		gen:     gen,
		slots:   make(chan struct{}, maxConcurrent),
		timeout: timeout,
	}
}

type result struct {
	text string
	err  error
}

// Generate implements Generator.
func (b *Bounded) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	select {
	case b.slots <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrBusy, ctx.Err())
	}

	done := make(chan result, 1)
	go func() {
		defer func() { <-b.slots }()
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("generator panicked: %v", r)}
			}
		}()
		text, err := b.gen.Generate(ctx, prompt, p)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("generate: %w", ctx.Err())
	}
}

// InFlight returns the number of calls currently holding a slot.
func (b *Bounded) InFlight() int {
	return len(b.slots)
}

var (
	_ Generator = (*Serialized)(nil)
	_ Generator = (*Bounded)(nil)
)
