package notify

import (
	"context"
	"sync"

	"medcore.org/internal/obs"
)

type notice struct {
	toEmail     string
	patientName string
	date        string
	timeOfDay   string
}

// Dispatcher hands notices to a background worker so delivery never sits in
// the request path. The queue is bounded; when it is saturated the notice is
// dropped rather than blocking the status update.
type Dispatcher struct {
	sink Notifier

	mu     sync.Mutex
	queue  chan notice
	done   chan struct{}
	closed bool
}

// NewDispatcher starts the delivery worker over the given sink.
func NewDispatcher(sink Notifier, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		sink:  sink,
		queue: make(chan notice, queueSize),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		// The request context is long gone by the time the worker picks
		// the notice up, so delivery runs under its own context.
		if err := d.sink.SendRejection(context.Background(), n.toEmail, n.patientName, n.date, n.timeOfDay); err != nil {
			obs.RejectionNotices.WithLabelValues("error").Inc()
			obs.LogEvent(map[string]any{
				"level": "warn",
				"msg":   "rejection notice delivery failed",
				"to":    n.toEmail,
				"error": err.Error(),
			})
			continue
		}
		obs.RejectionNotices.WithLabelValues("sent").Inc()
	}
}

// SendRejection enqueues the notice and returns immediately. It only errors
// on programmer misuse (closed dispatcher); a full queue drops the notice.
func (d *Dispatcher) SendRejection(ctx context.Context, toEmail, patientName, date, timeOfDay string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		obs.RejectionNotices.WithLabelValues("dropped").Inc()
		return nil
	}
	select {
	case d.queue <- notice{toEmail: toEmail, patientName: patientName, date: date, timeOfDay: timeOfDay}:
	default:
		obs.RejectionNotices.WithLabelValues("dropped").Inc()
		obs.LogEvent(map[string]any{
			"level": "warn",
			"msg":   "rejection notice dropped, queue full",
			"to":    toEmail,
		})
	}
	return nil
}

// Close stops accepting notices and waits for the worker to drain the queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}
