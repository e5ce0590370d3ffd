package ingest

import (
	"context"
	"time"

	"authguard/internal/model"
)

// Batcher groups events from the shared ingestion channel into batches
// for the engine. A batch flushes when it reaches the size limit or
// when the timeout expires, whichever comes first, so detection latency
// stays bounded even under low traffic.
type Batcher struct {
	in      <-chan model.AuthEvent
	out     chan<- []model.AuthEvent
	size    int
	timeout time.Duration
}

func NewBatcher(in <-chan model.AuthEvent, out chan<- []model.AuthEvent, size int, timeout time.Duration) *Batcher {
	if size <= 0 {
		size = 100
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Batcher{in: in, out: out, size: size, timeout: timeout}
}

// Run forwards batches until the context is cancelled, flushing any
// buffered remainder on the way out.
func (b *Batcher) Run(ctx context.Context) {
	buf := make([]model.AuthEvent, 0, b.size)
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	flush := func() {
		if len(buf) == 0 {
			return
		}
		batch := make([]model.AuthEvent, len(buf))
		copy(batch, buf)
		buf = buf[:0]
		select {
		case b.out <- batch:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case ev := <-b.in:
			buf = append(buf, ev)
			if len(buf) >= b.size {
				flush()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(b.timeout)
			}
		case <-timer.C:
			flush()
			timer.Reset(b.timeout)
		case <-ctx.Done():
			// Best effort: hand off the remainder if the engine can
			// still take it, never block shutdown on it.
			if len(buf) > 0 {
				select {
				case b.out <- append([]model.AuthEvent(nil), buf...):
				default:
				}
			}
			return
		}
	}
}
