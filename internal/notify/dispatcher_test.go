package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"medcore.org/internal/obs"
)

type captureSink struct {
	mu      sync.Mutex
	notices []string
	fail    error
}

func (c *captureSink) SendRejection(ctx context.Context, toEmail, patientName, date, timeOfDay string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, toEmail)
	return c.fail
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notices)
}

// noticeOutcome reads the current value of the per-outcome counter; tests
// compare deltas because the counters are process-global.
func noticeOutcome(outcome string) float64 {
	return testutil.ToFloat64(obs.RejectionNotices.WithLabelValues(outcome))
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, 8)
	sentBefore := noticeOutcome("sent")

	for i := 0; i < 5; i++ {
		if err := d.SendRejection(context.Background(), "ada@example.test", "Ada", "2024-05-01", "09:00"); err != nil {
			t.Fatalf("SendRejection: %v", err)
		}
	}
	d.Close()

	if got := sink.count(); got != 5 {
		t.Fatalf("expected 5 deliveries after drain, got %d", got)
	}
	if got := noticeOutcome("sent") - sentBefore; got != 5 {
		t.Fatalf("expected sent counter +5, got %+v", got)
	}
}

func TestDispatcherSurvivesSinkFailures(t *testing.T) {
	sink := &captureSink{fail: errors.New("relay down")}
	d := NewDispatcher(sink, 8)
	errBefore := noticeOutcome("error")

	if err := d.SendRejection(context.Background(), "ada@example.test", "Ada", "2024-05-01", "09:00"); err != nil {
		t.Fatalf("SendRejection must not surface sink errors: %v", err)
	}
	d.Close()

	if got := sink.count(); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
	if got := noticeOutcome("error") - errBefore; got != 1 {
		t.Fatalf("expected error counter +1, got %+v", got)
	}
}

func TestDispatcherClosedIsNoop(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, 8)
	d.Close()
	droppedBefore := noticeOutcome("dropped")

	if err := d.SendRejection(context.Background(), "ada@example.test", "Ada", "2024-05-01", "09:00"); err != nil {
		t.Fatalf("closed dispatcher must drop silently: %v", err)
	}
	if got := sink.count(); got != 0 {
		t.Fatalf("expected 0 deliveries, got %d", got)
	}
	if got := noticeOutcome("dropped") - droppedBefore; got != 1 {
		t.Fatalf("expected dropped counter +1, got %+v", got)
	}
}

func TestRejectionBody(t *testing.T) {
	body := RejectionBody("Ada", "2024-05-01", "09:00")
	for _, want := range []string{"Dear Ada,", "2024-05-01 at 09:00", "DECLINED by the doctor"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}
