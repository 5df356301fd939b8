package broker

import "sync"

// Hub fans out published values to subscribers without blocking the
// publisher. It generalizes the daemon's single-purpose event broker
// to the broker process's topic fan-out.
type Hub[T any] struct {
	mu        sync.RWMutex
	subs      map[chan T]struct{}
	done      chan struct{}
	closeOnce sync.Once
	bufferCap int
}

// NewHub constructs a hub with the given per-subscriber buffer
// capacity; slow subscribers drop frames rather than block publishers.
func NewHub[T any](bufferCap int) *Hub[T] {
	if bufferCap <= 0 {
		bufferCap = 64
	}
	return &Hub[T]{
		subs:      make(map[chan T]struct{}),
		done:      make(chan struct{}),
		bufferCap: bufferCap,
	}
}

// Shutdown closes the hub and every subscriber channel. Safe to call
// more than once.
func (h *Hub[T]) Shutdown() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		for ch := range h.subs {
			close(ch)
		}
		clear(h.subs)
	})
}

// Subscribe registers a new channel. Call Unsubscribe to remove it;
// the returned channel is also closed automatically on Shutdown.
func (h *Hub[T]) Subscribe() chan T {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		ch := make(chan T)
		close(ch)
		return ch
	default:
	}

	ch := make(chan T, h.bufferCap)
	h.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes ch, if still registered.
func (h *Hub[T]) Unsubscribe(ch chan T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; !ok {
		return
	}
	delete(h.subs, ch)
	close(ch)
}

// Publish delivers payload to every subscriber on a best-effort basis:
// a subscriber whose buffer is full is skipped rather than blocking
// the publisher.
func (h *Hub[T]) Publish(payload T) {
	h.mu.RLock()
	select {
	case <-h.done:
		h.mu.RUnlock()
		return
	default:
	}
	subs := make([]chan T, 0, len(h.subs))
	for ch := range h.subs {
		subs = append(subs, ch)
	}
	h.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (h *Hub[T]) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
