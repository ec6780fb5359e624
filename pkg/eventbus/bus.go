// Package eventbus is the in-memory publish/subscribe broker that mirrors
// job events to live observers. Every subscriber owns a bounded queue;
// Publish never waits on a subscriber and drops the event for that
// subscriber alone when its queue is full.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/events"
)

// Subscription is one subscriber's private delivery queue.
type Subscription struct {
	id      uint64
	ch      chan events.Event
	jobID   string
	dropped atomic.Uint64
	warned  atomic.Bool
	closed  bool // guarded by Bus.mu
}

// ID returns the subscription identifier.
func (s *Subscription) ID() uint64 { return s.id }

// Events returns the delivery channel. It is closed by Unsubscribe.
func (s *Subscription) Events() <-chan events.Event { return s.ch }

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// JobID returns the job filter, or "" for all jobs.
func (s *Subscription) JobID() string { return s.jobID }

func (s *Subscription) accepts(e events.Event) bool {
	return s.jobID == "" || s.jobID == e.JobID()
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	buffer int
	jobID  string
}

// WithBuffer sets the queue capacity.
func WithBuffer(n int) SubscribeOption {
	return func(c *subscribeConfig) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// ForJob restricts delivery to events of one job.
func ForJob(jobID string) SubscribeOption {
	return func(c *subscribeConfig) { c.jobID = jobID }
}

// Bus fans events out to subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	closed  bool
	nextID  atomic.Uint64
	buffer  int
	dropped atomic.Uint64
	log     logrus.FieldLogger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report slow subscribers.
func WithLogger(l logrus.FieldLogger) Option {
	return func(b *Bus) { b.log = l.WithField("component", "eventbus") }
}

// WithDefaultBuffer sets the queue capacity used when a subscriber does
// not ask for one.
func WithDefaultBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[uint64]*Subscription),
		buffer: defaults.SubscriberBuffer,
		log:    logrus.StandardLogger().WithField("component", "eventbus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new delivery queue and returns immediately.
// Subscribing to a closed bus yields an already-closed subscription.
func (b *Bus) Subscribe(opts ...SubscribeOption) *Subscription {
	cfg := subscribeConfig{buffer: b.buffer}
	for _, opt := range opts {
		opt(&cfg)
	}

	sub := &Subscription{
		id:    b.nextID.Add(1),
		ch:    make(chan events.Event, cfg.buffer),
		jobID: cfg.jobID,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it more than
// once, or on an undrained subscription, is safe.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	delete(b.subs, sub.id)
	sub.closed = true
	close(sub.ch)
}

// Publish offers e to every current subscriber without blocking.
// Sends happen under the read lock so Unsubscribe cannot close a channel
// mid-send; each send is a select with default and returns at once.
func (b *Bus) Publish(e events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.accepts(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
			if sub.warned.CompareAndSwap(false, true) {
				b.log.WithFields(logrus.Fields{
					"subscription": sub.id,
					"capacity":     cap(sub.ch),
				}).Warn("SLOW subscriber, dropping events")
			}
		}
	}
}

// Subscribers returns the number of registered subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the number of deliveries discarded across all subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close unsubscribes everyone. Later subscriptions are born closed and
// later publishes reach nobody.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.closed = true
		close(sub.ch)
	}
}

// Consume delivers every event of sub to fn until ctx is done or the
// subscription is closed. It is the loop shared by in-process consumers
// such as metrics, tracing and the NATS forwarder.
func Consume(ctx context.Context, sub *Subscription, fn func(events.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			fn(e)
		}
	}
}
