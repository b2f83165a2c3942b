// Package events is the in-process pub/sub the client uses for toasts,
// logout and navigation, so views never call each other directly.
package events

import (
	"strings"
	"sync"
	"time"
)

type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	namespace string
	ch        chan Event
}

func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish never blocks: a subscriber with a full buffer misses the event.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe returns events whose kind starts with namespace, plus an unsubscribe func.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Bus) Error(title, message string) {
	b.Publish(Event{Kind: ToastError, Payload: Toast{Title: title, Message: message}})
}

func (b *Bus) Info(title, message string) {
	b.Publish(Event{Kind: ToastInfo, Payload: Toast{Title: title, Message: message}})
}
