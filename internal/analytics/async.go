package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Async wraps a Sink with a bounded queue and a single delivery worker.
// Record never blocks: when the queue is full the event is dropped and
// counted. Delivery runs on the worker's own context, so cancelling a
// pricing request does not cancel events it already dispatched.
type Async struct {
	next    Sink
	lg      *zap.Logger
	queue   chan Event
	done    chan struct{}
	timeout time.Duration
}

// NewAsync starts an Async sink delivering to next with the given queue
// capacity. Call Close to drain and stop the worker.
func NewAsync(next Sink, lg *zap.Logger, capacity int) *Async {
	if capacity <= 0 {
		capacity = 256
	}
	a := &Async{
		next:    next,
		lg:      lg,
		queue:   make(chan Event, capacity),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
	go a.worker()
	return a
}

// Record enqueues the event for delivery. A full queue drops the event.
func (a *Async) Record(_ context.Context, ev Event) error {
	select {
	case a.queue <- ev:
	default:
		a.lg.Warn("analytics queue full, dropping event", zap.String("event", ev.Name))
	}
	return nil
}

// Close stops accepting events and drains the queue.
func (a *Async) Close() {
	close(a.queue)
	<-a.done
}

func (a *Async) worker() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Record(ctx, ev); err != nil {
			a.lg.Warn("record event failed",
				zap.String("event", ev.Name),
				zap.Error(err),
			)
		}
		cancel()
	}
}
