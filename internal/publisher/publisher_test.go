package publisher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/event"
	"github.com/barkwatch/barkwatch/internal/telemetry"
)

func testSettings(queueSize int) *conf.PublishSettings {
	return &conf.PublishSettings{
		QueueSize:      queueSize,
		BackoffInitial: time.Millisecond,
		BackoffMax:     10 * time.Millisecond,
		DrainTimeout:   time.Second,
	}
}

func testPublisher(t *testing.T, settings *conf.PublishSettings, sinks ...Sink) *Publisher {
	t.Helper()
	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)

	p := New(settings, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics)
	p.sinks = sinks
	return p
}

func testEvent(id string) *event.BarkEvent {
	e := event.New(0.9, time.Now(), "test-mic", event.SourceML)
	e.ID = id
	return e
}

// recordingSink remembers every event it accepts and can be told to fail
// a number of times first.
type recordingSink struct {
	mu        sync.Mutex
	delivered []string
	failures  int
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, e *event.BarkEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("transient sink failure")
	}
	s.delivered = append(s.delivered, e.ID)
	return nil
}

func (s *recordingSink) Close() {}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.delivered))
	copy(out, s.delivered)
	return out
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	sink := &recordingSink{}
	p := testPublisher(t, testSettings(2), sink)

	// Fill the queue past capacity before the delivery loop runs.
	p.Publish(testEvent("a"))
	p.Publish(testEvent("b"))
	p.Publish(testEvent("c"))
	p.Publish(testEvent("d"))

	p.Start()
	p.Stop()

	// The two oldest were dropped, the two newest delivered in order.
	assert.Equal(t, []string{"c", "d"}, sink.ids())
}

func TestEventsDeliveredInOrder(t *testing.T) {
	sink := &recordingSink{}
	p := testPublisher(t, testSettings(8), sink)
	p.Start()

	for i := range 5 {
		p.Publish(testEvent(fmt.Sprintf("e%d", i)))
	}
	p.Stop()

	assert.Equal(t, []string{"e0", "e1", "e2", "e3", "e4"}, sink.ids())
}

func TestTransientFailureDeliversExactlyOnce(t *testing.T) {
	// Sink fails three times, then recovers. The event must arrive
	// exactly once, with no duplicates from the retries.
	sink := &recordingSink{failures: 3}
	p := testPublisher(t, testSettings(8), sink)
	p.Start()

	p.Publish(testEvent("flaky"))
	p.Publish(testEvent("after"))
	p.Stop()

	assert.Equal(t, []string{"flaky", "after"}, sink.ids())
}

func TestPartialSinkFailureDoesNotRedeliver(t *testing.T) {
	// The healthy sink accepts immediately; the flaky one needs retries.
	// The healthy sink must not see the event again.
	healthy := &recordingSink{}
	flaky := &recordingSink{failures: 2}
	p := testPublisher(t, testSettings(8), healthy, flaky)
	p.Start()

	p.Publish(testEvent("x"))
	p.Stop()

	assert.Equal(t, []string{"x"}, healthy.ids())
	assert.Equal(t, []string{"x"}, flaky.ids())
}

func TestDryRunOpensNoSinks(t *testing.T) {
	settings := testSettings(8)
	settings.DryRun = true
	settings.MQTT = conf.MQTTSettings{Enabled: true, Broker: "tcp://localhost:1883"}
	settings.Webhook = conf.WebhookSettings{Enabled: true, URL: "http://localhost/hook"}

	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)
	p := New(settings, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics)

	assert.Empty(t, p.sinks)

	p.Start()
	p.Publish(testEvent("logged-only"))
	p.Stop()
}

func TestPublishAfterStopIsNoOp(t *testing.T) {
	sink := &recordingSink{}
	p := testPublisher(t, testSettings(8), sink)
	p.Start()
	p.Stop()

	p.Publish(testEvent("late"))
	assert.Empty(t, sink.ids())
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := newBackoff(time.Second, 5*time.Minute)

	var delays []time.Duration
	for range 12 {
		delays = append(delays, b.Next())
	}

	assert.Equal(t, time.Second, delays[0])
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1])
		assert.LessOrEqual(t, delays[i], 5*time.Minute)
	}
	assert.Equal(t, 5*time.Minute, delays[len(delays)-1])

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}
