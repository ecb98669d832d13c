package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const eventStoreDir = "round-events"

type eventBatch struct {
	topic  string
	events []domain.Event
}

// eventRepository is an append-only log of events, keyed by topic and
// aggregate id. Stored events are dispatched in order to the handlers
// registered for their topic.
type eventRepository struct {
	store     *badgerhold.Store
	lock      *sync.Mutex
	handlers  map[string][]func(events []domain.Event)
	chUpdates chan eventBatch
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	baseDir, logger, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, eventStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open round events store: %s", err)
	}
	repo := &eventRepository{
		store:     store,
		lock:      &sync.Mutex{},
		handlers:  make(map[string][]func(events []domain.Event)),
		chUpdates: make(chan eventBatch, 256),
		done:      make(chan struct{}),
	}
	repo.wg.Add(1)
	go repo.listen()
	return repo, nil
}

func (r *eventRepository) Save(
	_ context.Context, topic, id string, events []domain.Event,
) error {
	key := eventsKey(topic, id)
	if err := retry(func() error {
		allEvents, err := r.get(key)
		if err != nil {
			return err
		}
		allEvents = append(allEvents, events...)
		return r.upsert(key, allEvents)
	}); err != nil {
		return err
	}

	select {
	case <-r.done:
	case r.chUpdates <- eventBatch{topic, events}:
	}
	return nil
}

// Load returns every event stored for the given topic and id.
func (r *eventRepository) Load(
	_ context.Context, topic, id string,
) ([]domain.Event, error) {
	events, err := r.get(eventsKey(topic, id))
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = make([]domain.Event, 0)
	}
	return events, nil
}

func (r *eventRepository) RegisterEventsHandler(
	topic string, handler func(events []domain.Event),
) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.handlers[topic] = append(r.handlers[topic], handler)
}

func (r *eventRepository) ClearRegisteredHandlers(topics ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if len(topics) == 0 {
		r.handlers = make(map[string][]func(events []domain.Event))
		return
	}
	for _, topic := range topics {
		delete(r.handlers, topic)
	}
}

func (r *eventRepository) Close() {
	close(r.done)
	r.wg.Wait()
	r.store.Close()
}

func (r *eventRepository) get(key string) ([]domain.Event, error) {
	dto := eventsDTO{}
	if err := r.store.Get(key, &dto); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get events with key %s: %s", key, err)
	}

	return deserializeEvents(dto.Events)
}

func (r *eventRepository) upsert(key string, events []domain.Event) error {
	buf, err := serializeEvents(events)
	if err != nil {
		return err
	}
	if err := r.store.Upsert(key, buf); err != nil {
		if err == badger.ErrConflict {
			return err
		}
		return fmt.Errorf("failed to upsert events with key %s: %s", key, err)
	}
	return nil
}

func (r *eventRepository) listen() {
	defer r.wg.Done()

	for {
		select {
		case <-r.done:
			return
		case batch := <-r.chUpdates:
			r.runHandlers(batch)
		}
	}
}

func (r *eventRepository) runHandlers(batch eventBatch) {
	r.lock.Lock()
	handlers := append([]func([]domain.Event){}, r.handlers[batch.topic]...)
	r.lock.Unlock()

	for _, handler := range handlers {
		handler(batch.events)
	}
}

func eventsKey(topic, id string) string {
	return fmt.Sprintf("%s:%s", topic, id)
}
