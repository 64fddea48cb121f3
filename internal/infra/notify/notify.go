// Package notify dispatches user notifications after committed state
// transitions. Delivery is strictly best-effort: a full queue drops the
// event with a log line, and a failing sink never propagates back into
// the transition that produced the event.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/barterdeck/barterdeck/internal/domain"
)

// Sink is the delivery backend (email, push, webhook). The core never
// talks to a sink directly — always through the Dispatcher.
type Sink interface {
	Deliver(ctx context.Context, n domain.Notification) error
}

// Dispatcher is an asynchronous fan-out queue in front of a Sink.
type Dispatcher struct {
	sink    Sink
	queue   chan domain.Notification
	timeout time.Duration

	wg      sync.WaitGroup
	mu      sync.Mutex
	dropped int64
	sent    int64
	failed  int64
}

// NewDispatcher creates a dispatcher with a bounded queue and starts
// its delivery worker.
func NewDispatcher(sink Sink, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan domain.Notification, queueSize),
		timeout: 10 * time.Second,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Notify enqueues an event. Never blocks: a full queue drops the event.
func (d *Dispatcher) Notify(_ context.Context, n domain.Notification) error {
	select {
	case d.queue <- n:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		log.Printf("[notify] queue full, dropped event %s txn=%s", n.Event, n.TxnID)
	}
	return nil
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sink.Deliver(ctx, n)
		cancel()

		d.mu.Lock()
		if err != nil {
			d.failed++
			log.Printf("[notify] deliver %s txn=%s failed: %v", n.Event, n.TxnID, err)
		} else {
			d.sent++
		}
		d.mu.Unlock()
	}
}

// Close drains the queue and stops the worker.
func (d *Dispatcher) Close() {
	close(d.queue)
	d.wg.Wait()
}

// Stats reports delivery counters.
func (d *Dispatcher) Stats() (sent, failed, dropped int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent, d.failed, d.dropped
}

// ─── Log Sink ───────────────────────────────────────────────────────────────

// LogSink writes notifications to the process log. The default wiring
// until a real email/push collaborator is configured.
type LogSink struct{}

// Deliver logs the notification.
func (LogSink) Deliver(_ context.Context, n domain.Notification) error {
	log.Printf("[notify] %s kind=%s txn=%s %s → %s", n.Event, n.Kind, n.TxnID, n.FromID, n.ToID)
	return nil
}
