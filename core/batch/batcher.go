// Package batch groups derived actions into bounded-size transaction
// batches and submits each batch with bounded retry.
package batch

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Batcher accumulates items in arrival order and flushes synchronously
// whenever the buffer reaches its limit. The buffer is cleared before the
// flush callback runs: a failed flush never retains its batch, so a batch
// handed to the submitter is never resubmitted.
type Batcher[T any] struct {
	limit int
	flush func(ctx context.Context, items []T) error
	buf   []T
}

func NewBatcher[T any](limit int, flush func(ctx context.Context, items []T) error) *Batcher[T] {
	if limit < 1 {
		limit = 1
	}
	return &Batcher[T]{
		limit: limit,
		flush: flush,
		buf:   make([]T, 0, limit),
	}
}

// Add appends one item, flushing if the buffer reaches the batch limit.
func (b *Batcher[T]) Add(ctx context.Context, item T) error {
	b.buf = append(b.buf, item)
	if len(b.buf) >= b.limit {
		return b.flushNow(ctx)
	}
	return nil
}

// Close flushes a non-empty remainder at end of stream.
func (b *Batcher[T]) Close(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	return b.flushNow(ctx)
}

// Pending returns the number of buffered, not yet flushed items.
func (b *Batcher[T]) Pending() int {
	return len(b.buf)
}

func (b *Batcher[T]) flushNow(ctx context.Context) error {
	items := b.buf
	b.buf = make([]T, 0, b.limit)
	return errors.WithStack(b.flush(ctx, items))
}
