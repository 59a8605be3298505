// Package eventbus implements the in-process topic pub/sub described in
// spec §4.2: publishers never block, a slow subscriber's oldest buffered
// event is dropped in favor of a `lagged` marker, and delivery is FIFO
// per (topic, subscriber).
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/metrics"
)

// Well-known event types carried on the bus; domain payloads ride in Data.
const (
	TypeCallUpdated     = "call.updated"
	TypeTranscriptDelta = "transcript.delta"
	TypeCampaignUpdate  = "campaign.update"
	TypeQualityUpdate   = "quality.update"
	TypeLagged          = "lagged"
)

// Event is one message on the bus.
type Event struct {
	Topic     string
	Type      string
	Seq       uint64
	Timestamp time.Time
	Data      any
}

// Transport forwards a locally-published event to other processes sharing
// the same topic space (spec §4.2 "horizontally scaled Hub").
type Transport interface {
	Publish(ctx context.Context, topic, eventType string, data any) error
}

// Bus is a single-process topic bus. The zero value is not usable; use New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscription
	nextID      uint64
	seq         atomic.Uint64
	bufferSize  int
	log         logging.Logger
	transport   Transport
}

// SetTransport attaches an optional cross-process forwarder; every
// subsequent local Publish is mirrored onto it, best-effort.
func (b *Bus) SetTransport(t Transport) {
	b.mu.Lock()
	b.transport = t
	b.mu.Unlock()
}

type subscription struct {
	topic string
	ch    chan Event
}

// New creates a Bus whose per-subscriber channel holds bufferSize events
// before the drop-oldest-plus-lagged policy kicks in.
func New(bufferSize int, log logging.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{subscribers: make(map[uint64]*subscription), bufferSize: bufferSize, log: log}
}

// Subscribe registers a listener for an exact topic string (e.g.
// "call.updates", "call.<id>"). The returned cancel function unregisters
// the subscription; the channel is never closed, by cancel or by the bus.
func (b *Bus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufferSize)
	b.subscribers[id] = &subscription{topic: topic, ch: ch}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans eventType/data out to every subscriber of topic, then
// mirrors the event onto the attached Transport, if any. Never blocks the
// caller (spec §4.2).
func (b *Bus) Publish(topic, eventType string, data any) {
	b.publishLocal(topic, eventType, data)

	b.mu.RLock()
	t := b.transport
	b.mu.RUnlock()
	if t == nil {
		return
	}
	if err := t.Publish(context.Background(), topic, eventType, data); err != nil && b.log != nil {
		b.log.Warnw("eventbus: transport publish failed", "topic", topic, "error", err)
	}
}

// publishLocal delivers to this process's subscribers only. Used directly
// by RedisTransport when replaying a remotely-originated event, so it
// isn't re-mirrored back onto the transport.
func (b *Bus) publishLocal(topic, eventType string, data any) {
	ev := Event{
		Topic:     topic,
		Type:      eventType,
		Seq:       b.seq.Add(1),
		Timestamp: time.Now(),
		Data:      data,
	}
	metrics.EventBusPublishedTotal.WithLabelValues(topic).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.topic != topic {
			continue
		}
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub *subscription, ev Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}

	// Buffer full: drop the oldest queued event and notify the subscriber
	// with a lagged marker instead of delivering ev directly — the
	// subscriber is expected to resync via a fresh Hub snapshot rather
	// than trust a stream with a gap in it.
	select {
	case <-sub.ch:
	default:
	}
	lagged := Event{Topic: ev.Topic, Type: TypeLagged, Seq: b.seq.Add(1), Timestamp: ev.Timestamp}
	select {
	case sub.ch <- lagged:
	default:
	}
	metrics.EventBusLaggedTotal.WithLabelValues(ev.Topic).Inc()
	if b.log != nil {
		b.log.Warnw("eventbus: subscriber lagged", "topic", ev.Topic)
	}
}
