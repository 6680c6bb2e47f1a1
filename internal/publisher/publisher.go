// Package publisher delivers bark events to the configured sinks through
// a bounded queue, keeping the detection path non-blocking. Delivery
// retries with exponential backoff while the event stays at the head of
// the queue, so a transiently failing sink receives each event once.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/event"
	"github.com/barkwatch/barkwatch/internal/telemetry"
)

// Sink delivers a single event to one downstream destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e *event.BarkEvent) error
	Close()
}

// backoff produces exponentially growing retry delays, capped at max and
// reset to the initial delay after a fully successful delivery.
type backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max, next: initial}
}

// Next returns the current delay and doubles the one after it.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

func (b *backoff) Reset() {
	b.next = b.initial
}

// Publisher owns the event queue and the delivery goroutine.
type Publisher struct {
	settings *conf.PublishSettings
	sinks    []Sink
	queue    chan *event.BarkEvent
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	backoff  *backoff
	log      *slog.Logger
	metrics  *telemetry.Metrics
}

// New builds a publisher with the sinks enabled in the settings. In
// dry-run mode no sinks are constructed and no connections are opened.
func New(settings *conf.PublishSettings, log *slog.Logger, metrics *telemetry.Metrics) *Publisher {
	p := &Publisher{
		settings: settings,
		queue:    make(chan *event.BarkEvent, settings.QueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		backoff:  newBackoff(settings.BackoffInitial, settings.BackoffMax),
		log:      log,
		metrics:  metrics,
	}

	if settings.DryRun {
		log.Info("dry-run mode, events will be logged but not delivered")
		return p
	}

	if settings.MQTT.Enabled {
		p.sinks = append(p.sinks, newMQTTSink(&settings.MQTT, log))
	}
	if settings.Webhook.Enabled {
		p.sinks = append(p.sinks, newWebhookSink(&settings.Webhook, log))
	}
	if len(p.sinks) == 0 {
		log.Warn("no publish sinks enabled, events will be logged only")
	}
	return p
}

// Start launches the delivery goroutine.
func (p *Publisher) Start() {
	go p.deliveryLoop()
}

// Publish enqueues an event without blocking. When the queue is full the
// oldest queued event is dropped so recent events are favored.
func (p *Publisher) Publish(e *event.BarkEvent) {
	if p.stopped.Load() {
		return
	}

	for {
		select {
		case p.queue <- e:
			p.metrics.QueueDepth.Set(float64(len(p.queue)))
			return
		default:
			select {
			case old := <-p.queue:
				p.metrics.PublishDropped.Inc()
				p.log.Warn("publish queue full, dropping oldest event",
					"dropped_id", old.ID, "dropped_time", old.Time)
			default:
			}
		}
	}
}

// Stop drains the queue within the configured drain timeout, then closes
// the sinks. Safe to call more than once.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.quit)
		select {
		case <-p.done:
		case <-time.After(p.settings.DrainTimeout + time.Second):
			p.log.Warn("publisher did not drain in time")
		}
		for _, s := range p.sinks {
			s.Close()
		}
	})
}

func (p *Publisher) deliveryLoop() {
	defer close(p.done)

	for {
		select {
		case e := <-p.queue:
			p.metrics.QueueDepth.Set(float64(len(p.queue)))
			p.deliver(e, time.Time{})
		case <-p.quit:
			p.drain()
			return
		}
	}
}

// drain delivers the remaining queued events until the queue is empty or
// the drain deadline passes.
func (p *Publisher) drain() {
	deadline := time.Now().Add(p.settings.DrainTimeout)
	for {
		select {
		case e := <-p.queue:
			p.metrics.QueueDepth.Set(float64(len(p.queue)))
			if !p.deliver(e, deadline) {
				p.log.Warn("drain deadline reached, discarding queued events",
					"remaining", len(p.queue))
				return
			}
		default:
			return
		}
	}
}

// deliver attempts the event against every sink, retrying failed sinks
// with backoff. Sinks that already accepted the event are not retried, so
// each sink sees the event at most once on success. Returns false when
// the deadline passed before all sinks accepted the event.
func (p *Publisher) deliver(e *event.BarkEvent, deadline time.Time) bool {
	if len(p.sinks) == 0 {
		p.log.Info("bark event", "id", e.ID, "score", e.Score,
			"time", e.Time, "detector", e.Detector, "clip", e.CapturePath)
		return true
	}

	remaining := make([]Sink, len(p.sinks))
	copy(remaining, p.sinks)

	for {
		var failed []Sink
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		for _, s := range remaining {
			if err := s.Deliver(ctx, e); err != nil {
				p.log.Warn("sink delivery failed", "sink", s.Name(),
					"event_id", e.ID, "error", err)
				failed = append(failed, s)
				continue
			}
			p.metrics.PublishDelivered.WithLabelValues(s.Name()).Inc()
		}
		cancel()

		if len(failed) == 0 {
			p.backoff.Reset()
			return true
		}
		remaining = failed

		p.metrics.PublishRetries.Inc()
		wait := p.backoff.Next()
		if !deadline.IsZero() && time.Now().Add(wait).After(deadline) {
			return false
		}
		p.log.Info("retrying delivery", "event_id", e.ID,
			"sinks", len(remaining), "backoff", wait)

		timer := time.NewTimer(wait)
		if deadline.IsZero() {
			select {
			case <-timer.C:
			case <-p.quit:
				timer.Stop()
				// Finish this event within the drain window.
				deadline = time.Now().Add(p.settings.DrainTimeout)
			}
		} else {
			<-timer.C
		}
	}
}
