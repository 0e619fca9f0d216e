package sse

import (
	"context"
	"encoding/json"
	"sync"
)

// Event is one message delivered to subscribers of a topic.
type Event struct {
	Name string
	Data []byte
}

// Hub fans events out to the subscribers of each topic. All topic bookkeeping
// happens on the goroutine running Run; subscribers own their channels and
// the hub never closes them.
type Hub struct {
	topics   map[string]map[chan Event]bool
	critical map[string]bool

	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan topicEvent

	stopped  chan struct{}
	stopOnce sync.Once
}

type subscription struct {
	ch    chan Event
	topic string
}

type topicEvent struct {
	topic string
	event Event
}

// NewHub creates a hub. The publish queue is buffered so short bursts from
// pollers do not block on slow readers. Events named in critical are never
// dropped for a subscriber with a full buffer: its oldest queued event is
// discarded instead.
func NewHub(critical ...string) *Hub {
	names := make(map[string]bool, len(critical))
	for _, name := range critical {
		names[name] = true
	}
	return &Hub{
		topics:      make(map[string]map[chan Event]bool),
		critical:    names,
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan topicEvent, 100),
		stopped:     make(chan struct{}),
	}
}

// Run processes subscriptions and publishes until ctx is done.
//
//	hub := sse.NewHub()
//	go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.stopped) })
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.subscribe:
			subs, ok := h.topics[s.topic]
			if !ok {
				subs = make(map[chan Event]bool)
				h.topics[s.topic] = subs
			}
			subs[s.ch] = true
		case s := <-h.unsubscribe:
			if subs, ok := h.topics[s.topic]; ok {
				delete(subs, s.ch)
				if len(subs) == 0 {
					delete(h.topics, s.topic)
				}
			}
		case te := <-h.publish:
			for ch := range h.topics[te.topic] {
				h.deliver(ch, te.event)
			}
		}
	}
}

func (h *Hub) deliver(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	if !h.critical[ev.Name] {
		return
	}
	// Only the hub sends on ch, so one receive always frees a slot.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}

// Publish marshals payload as JSON and queues it for the topic's subscribers.
// It is a no-op once the hub has stopped.
func (h *Hub) Publish(topic, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	select {
	case h.publish <- topicEvent{topic: topic, event: Event{Name: name, Data: data}}:
	case <-h.stopped:
	}
	return nil
}

// Subscribe registers ch for topic. Callers should pass a buffered channel
// and Unsubscribe before dropping it.
func (h *Hub) Subscribe(ch chan Event, topic string) {
	select {
	case h.subscribe <- subscription{ch: ch, topic: topic}:
	case <-h.stopped:
	}
}

// Unsubscribe removes ch from topic.
func (h *Hub) Unsubscribe(ch chan Event, topic string) {
	select {
	case h.unsubscribe <- subscription{ch: ch, topic: topic}:
	case <-h.stopped:
	}
}
