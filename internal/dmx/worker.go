package dmx

import (
	"context"
	"time"
)

// flushRequest is a snapshot carrying the tick's wall-clock for rate
// limiting, enqueued to the worker rather than flushed inline so a slow
// or stalled transport never blocks the engine's tick.
type flushRequest struct {
	now time.Time
}

// Worker drains flush requests on its own goroutine, so a transport
// stall is confined to DmxEngine's own worker rather than stalling the
// core tick, per spec.md §5's "short-lived worker threads owned by their
// respective engines" rule. Its queue is bounded and drops the oldest
// pending request when full -- only the most recent buffer state matters,
// grounded on the transmit-queue idiom in the teacher's src/tq.go
// (generalized there from AX.25 frames to DMX buffer snapshots).
type Worker struct {
	engine *Engine
	queue  chan flushRequest
	done   chan struct{}
}

// NewWorker builds a Worker with a bounded queue of depth.
func NewWorker(engine *Engine, depth int) *Worker {
	if depth < 1 {
		depth = 1
	}
	return &Worker{
		engine: engine,
		queue:  make(chan flushRequest, depth),
		done:   make(chan struct{}),
	}
}

// Start launches the drain goroutine; it exits when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-w.queue:
				w.engine.Flush(req.now)
			}
		}
	}()
}

// Wait blocks until the drain goroutine has exited after Start's context
// is cancelled.
func (w *Worker) Wait() {
	<-w.done
}

// Enqueue requests a flush at now, dropping the oldest pending request if
// the queue is full. Never blocks.
func (w *Worker) Enqueue(now time.Time) {
	req := flushRequest{now: now}
	select {
	case w.queue <- req:
		return
	default:
	}

	select {
	case <-w.queue:
	default:
	}

	select {
	case w.queue <- req:
	default:
	}
}
