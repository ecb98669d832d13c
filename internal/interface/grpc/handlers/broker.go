package handlers

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

type listener[T any] struct {
	id     string
	topics map[string]struct{}
	ch     chan T
}

// A listener without topics receives everything.
func (l *listener[T]) includes(topic string) bool {
	if len(l.topics) <= 0 {
		return true
	}
	_, ok := l.topics[topic]
	return ok
}

// broker fans out values to every subscribed listener. Slow listeners miss
// values instead of stalling the others.
type broker[T any] struct {
	lock      *sync.Mutex
	listeners []*listener[T]
}

func newBroker[T any]() *broker[T] {
	return &broker[T]{
		lock:      &sync.Mutex{},
		listeners: make([]*listener[T], 0),
	}
}

func (h *broker[T]) pushListener(l *listener[T]) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.listeners = append(h.listeners, l)
}

func (h *broker[T]) removeListener(id string) {
	h.lock.Lock()
	defer h.lock.Unlock()

	for i, listener := range h.listeners {
		if listener.id == id {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

func (h *broker[T]) countListeners() int {
	h.lock.Lock()
	defer h.lock.Unlock()

	return len(h.listeners)
}

func (h *broker[T]) dispatch(topic string, value T) {
	h.lock.Lock()
	defer h.lock.Unlock()

	for _, l := range h.listeners {
		if !l.includes(topic) {
			continue
		}
		select {
		case l.ch <- value:
		default:
			log.Warnf("listener %s is too slow, dropped value for topic %s", l.id, topic)
		}
	}
}
