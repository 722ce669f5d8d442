// Package notify fans events out to live subscribers, scoped by channel
// number so only sessions sharing a channel observe its traffic.
package notify

import "sync"

// Event kinds published by the ingest and session layers. Node event kinds
// come from the nodeinfo package.
const (
	KindMessage = "new_message"
)

// Event is one notification delivered to channel subscribers.
type Event struct {
	Channel uint32
	Kind    string
	Payload any
}

// Sink receives a copy of every published event, regardless of channel. Used
// for uplinks like the MQTT mirror.
type Sink interface {
	Publish(channel uint32, kind string, payload any)
}

// Notifier is an in-process publish/subscribe hub keyed by channel number.
// Subscriber channels are buffered and publishes never block: a subscriber
// that stops draining misses events rather than stalling the receive path.
type Notifier struct {
	mu    sync.RWMutex
	subs  map[uint32]map[chan Event]struct{}
	sinks []Sink
}

func New() *Notifier {
	return &Notifier{
		subs: make(map[uint32]map[chan Event]struct{}),
	}
}

// AttachSink registers a sink that mirrors every event.
func (n *Notifier) AttachSink(s Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, s)
}

// Subscribe returns a channel receiving events for the given channel number.
func (n *Notifier) Subscribe(channel uint32) chan Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan Event, 16)
	if n.subs[channel] == nil {
		n.subs[channel] = make(map[chan Event]struct{})
	}
	n.subs[channel][ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (n *Notifier) Unsubscribe(channel uint32, ch chan Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if subs, ok := n.subs[channel]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(n.subs, channel)
		}
	}
}

// Publish delivers an event to every subscriber of the channel and to all
// attached sinks.
func (n *Notifier) Publish(channel uint32, kind string, payload any) {
	ev := Event{Channel: channel, Kind: kind, Payload: payload}

	n.mu.RLock()
	defer n.mu.RUnlock()
	for ch := range n.subs[channel] {
		select {
		case ch <- ev:
		default:
			// Subscriber is full, drop rather than block the publisher.
		}
	}
	for _, s := range n.sinks {
		s.Publish(channel, kind, payload)
	}
}
