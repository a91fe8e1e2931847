package store

import (
	"context"
	"sync"
)

// Message is an in-memory stand-in for redis.Message when the cache runs
// without Redis.
type Message struct {
	Channel string
	Payload string
}

// Subscription receives messages for a set of channels from the in-memory
// hub.
type Subscription struct {
	channels map[string]bool
	msgs     chan *Message
	closeCh  chan struct{}
	closed   bool
	mu       sync.RWMutex
}

func newSubscription(channels []string) *Subscription {
	set := make(map[string]bool, len(channels))
	for _, ch := range channels {
		set[ch] = true
	}
	return &Subscription{
		channels: set,
		msgs:     make(chan *Message, 100),
		closeCh:  make(chan struct{}),
	}
}

// Channel returns the stream of messages.
func (s *Subscription) Channel() <-chan *Message {
	return s.msgs
}

func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.closeCh)
		close(s.msgs)
	}
	return nil
}

func (s *Subscription) deliver(msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || !s.channels[msg.Channel] {
		return
	}
	// Drop rather than block when the subscriber is slow.
	select {
	case s.msgs <- msg:
	default:
	}
}

// PubSubHub fans messages out to in-memory subscriptions. It only exists in
// the Redis-less cache mode.
type PubSubHub struct {
	mu          sync.RWMutex
	subscribers map[string][]*Subscription
}

func NewPubSubHub() *PubSubHub {
	return &PubSubHub{subscribers: make(map[string][]*Subscription)}
}

// Subscribe registers a subscription for the channels; it is torn down when
// the context ends or the subscription is closed.
func (h *PubSubHub) Subscribe(ctx context.Context, channels ...string) *Subscription {
	sub := newSubscription(channels)

	h.mu.Lock()
	for _, channel := range channels {
		h.subscribers[channel] = append(h.subscribers[channel], sub)
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closeCh:
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		for _, channel := range channels {
			subs := h.subscribers[channel]
			for i, candidate := range subs {
				if candidate == sub {
					h.subscribers[channel] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(h.subscribers[channel]) == 0 {
				delete(h.subscribers, channel)
			}
		}
	}()

	return sub
}

// Publish delivers the payload to every subscription of the channel.
func (h *PubSubHub) Publish(channel, payload string) {
	h.mu.RLock()
	subs := make([]*Subscription, len(h.subscribers[channel]))
	copy(subs, h.subscribers[channel])
	h.mu.RUnlock()

	msg := &Message{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.deliver(msg)
	}
}
