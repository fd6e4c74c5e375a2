// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package event

import (
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// DefaultQueueSize is the default bound on a subscriber's delivery channel
// (spec §4.7 "bounded queue, default 1024").
const DefaultQueueSize = 1024

// Handler consumes events delivered to a single subscription. Handlers for
// one subscriber are invoked strictly in publish order (spec §4.7
// "per-subscriber ordering"); handlers across different subscribers run
// concurrently.
type Handler func(Event)

type subscription struct {
	id      string
	pattern string
	queue   chan Event
	done    chan struct{}
}

// matches reports whether the subscription's pattern matches the given
// event type. A pattern is an exact type ("task.created"), a glob ending
// in ".*" ("task.*"), or any other path.Match pattern (so "*" matches
// every type).
func (s *subscription) matches(t Type) bool {
	if s.pattern == string(t) {
		return true
	}
	if strings.HasSuffix(s.pattern, ".*") {
		prefix := strings.TrimSuffix(s.pattern, "*")
		return strings.HasPrefix(string(t), prefix)
	}
	ok, err := path.Match(s.pattern, string(t))
	return err == nil && ok
}

// Bus is an in-process pub/sub event bus (spec §4.7). Publish never blocks
// on slow subscribers: a full subscriber queue drops its oldest pending
// event to make room, incrementing DroppedEvents, rather than backpressure
// the publisher or the other subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	rules  []AutoEmitRule
	source string

	queueSize int

	droppedEvents *prometheus.CounterVec

	group *errgroup.Group
}

// Config configures a Bus.
type Config struct {
	// Source tags every published Event's Source field (component name).
	Source string
	// QueueSize overrides DefaultQueueSize when > 0.
	QueueSize int
	// Registerer, if non-nil, is registered with the dropped-events counter.
	// Grounded on pkg/observability/metrics.go's NewMetrics(cfg), which
	// returns (nil, nil) when metrics are disabled - callers of New() pass
	// a nil registerer the same way.
	Registerer prometheus.Registerer
}

// New creates a Bus. If cfg.Registerer is nil, the DroppedEvents counter is
// created but never registered - Inc() still works, it simply won't be
// scraped, mirroring hector's NewMetrics(nil) "disabled" behavior without
// panicking on publish.
func New(cfg Config) *Bus {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conductor",
		Subsystem: "event_bus",
		Name:      "dropped_events_total",
		Help:      "Events dropped because a subscriber's queue was full.",
	}, []string{"pattern"})
	if cfg.Registerer != nil {
		cfg.Registerer.MustRegister(counter)
	}

	var g errgroup.Group
	return &Bus{
		subs:          make(map[string]*subscription),
		source:        cfg.Source,
		queueSize:     size,
		droppedEvents: counter,
		group:         &g,
	}
}

// Subscribe registers a handler for events whose type matches pattern (an
// exact type, a "prefix.*" glob, or another path.Match pattern such as "*"). Returns a subscription id usable with
// Unsubscribe. The handler runs on its own goroutine, receiving events in
// publish order; it must not block indefinitely or it will starve its own
// queue (which then drops oldest, not newest).
func (b *Bus) Subscribe(pattern string, h Handler) string {
	sub := &subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		queue:   make(chan Event, b.queueSize),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	b.group.Go(func() error {
		defer close(sub.done)
		for ev := range sub.queue {
			h(ev)
		}
		return nil
	})

	return sub.id
}

// Unsubscribe stops delivery to the given subscription and waits for its
// handler goroutine to drain any events already queued.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	close(sub.queue)
	<-sub.done
}

// Publish fans an event out to every matching subscriber without blocking:
// a subscriber whose queue is full has its oldest pending event evicted to
// make room (drop-oldest), and DroppedEvents is incremented for that
// subscriber's pattern. Publish also evaluates auto-emit rules and
// recursively publishes any events they produce.
func (b *Bus) Publish(ev Event) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Source == "" {
		ev.Source = b.source
	}

	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.matches(ev.Type) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		b.deliver(sub, ev)
	}

	for _, derived := range b.evaluateAutoEmit(ev) {
		b.Publish(derived)
	}
}

func (b *Bus) deliver(sub *subscription, ev Event) {
	select {
	case sub.queue <- ev:
		return
	default:
	}
	// Queue full: drop the oldest pending event, then retry once. The oldest
	// event is dropped whenever the queue is non-empty at that point, even
	// if a concurrent consumer has just drained a slot.
	select {
	case <-sub.queue:
		b.droppedEvents.WithLabelValues(sub.pattern).Inc()
	default:
	}
	select {
	case sub.queue <- ev:
	default:
		// Lost a race with another producer; count this event as dropped
		// too rather than block the publisher.
		b.droppedEvents.WithLabelValues(sub.pattern).Inc()
	}
}

// Close removes every subscription, closes every subscriber queue, and
// waits up to gracePeriod for the handlers to drain the events already
// queued. At the deadline Close returns; queued events are not discarded,
// and handlers still running go on draining them in the background.
func (b *Bus) Close(gracePeriod time.Duration) {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.queue)
	}

	deadline := time.After(gracePeriod)
	for _, sub := range subs {
		select {
		case <-sub.done:
		case <-deadline:
			return
		}
	}
}
