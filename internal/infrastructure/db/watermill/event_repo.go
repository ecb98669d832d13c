package watermilldb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ark-network/raffle/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

const (
	metadataEventType = "event_type"
	metadataEventId   = "aggregate_id"
	subscriberBuffer  = 256
)

type subscriber struct {
	topic   string
	handler func(events []domain.Event)
}

// eventRepository publishes events on an in-process watermill bus. Handlers
// receive them through a subscription on the event topic.
type eventRepository struct {
	pubsub *gochannel.GoChannel

	subscribers    map[string][]subscriber // topic -> subscribers
	subscriberLock *sync.Mutex
	subscriptions  map[string]context.CancelFunc
	wg             sync.WaitGroup
}

// NewEventRepository accepts an optional debug flag enabling watermill's
// own logging.
func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	var logger watermill.LoggerAdapter = watermill.NopLogger{}
	if len(config) > 0 {
		debug, ok := config[0].(bool)
		if !ok {
			return nil, fmt.Errorf("invalid config, expected debug flag at 0")
		}
		if debug {
			logger = watermill.NewStdLogger(true, false)
		}
	}
	return NewWatermillEventRepository(logger), nil
}

func NewWatermillEventRepository(logger watermill.LoggerAdapter) domain.EventRepository {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: subscriberBuffer,
	}, logger)

	return &eventRepository{
		pubsub:         pubsub,
		subscribers:    make(map[string][]subscriber),
		subscriberLock: &sync.Mutex{},
		subscriptions:  make(map[string]context.CancelFunc),
	}
}

func (e *eventRepository) ClearRegisteredHandlers(topics ...string) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	if len(topics) == 0 {
		for topic := range e.subscribers {
			topics = append(topics, topic)
		}
	}

	for _, topic := range topics {
		delete(e.subscribers, topic)
		if cancel, ok := e.subscriptions[topic]; ok {
			cancel()
			delete(e.subscriptions, topic)
		}
	}
}

func (e *eventRepository) Close() {
	e.ClearRegisteredHandlers()
	//nolint:errcheck
	e.pubsub.Close()
	e.wg.Wait()
}

func (e *eventRepository) RegisterEventsHandler(topic string, handler func(events []domain.Event)) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	if _, ok := e.subscriptions[topic]; !ok {
		ctx, cancel := context.WithCancel(context.Background())
		messages, err := e.pubsub.Subscribe(ctx, topic)
		if err != nil {
			cancel()
			log.WithError(err).Warnf("failed to subscribe to topic %s", topic)
			return
		}
		e.subscriptions[topic] = cancel
		e.wg.Add(1)
		go e.listen(topic, messages)
	}

	e.subscribers[topic] = append(e.subscribers[topic], subscriber{
		topic:   topic,
		handler: handler,
	})
}

func (e *eventRepository) Save(ctx context.Context, topic string, id string, events []domain.Event) error {
	messages, err := toWatermillMessages(id, events)
	if err != nil {
		return err
	}
	return e.pubsub.Publish(topic, messages...)
}

// Load is not supported: the bus relays events but keeps no log.
func (e *eventRepository) Load(_ context.Context, topic, id string) ([]domain.Event, error) {
	return nil, fmt.Errorf("%w: %s:%s", domain.ErrHistoryUnavailable, topic, id)
}

func (e *eventRepository) listen(topic string, messages <-chan *message.Message) {
	defer e.wg.Done()

	for msg := range messages {
		event, err := fromWatermillMessage(msg)
		if err != nil {
			log.WithError(err).Warnf("dropping malformed message %s on topic %s", msg.UUID, topic)
			msg.Ack()
			continue
		}
		e.dispatch(topic, []domain.Event{event})
		msg.Ack()
	}
}

func (e *eventRepository) dispatch(topic string, events []domain.Event) {
	e.subscriberLock.Lock()
	subscribers := append([]subscriber{}, e.subscribers[topic]...)
	e.subscriberLock.Unlock()

	for _, subscriber := range subscribers {
		subscriber.handler(events)
	}
}

func toWatermillMessages(id string, events []domain.Event) ([]*message.Message, error) {
	watermillMessages := make([]*message.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s event: %w", event.GetType(), err)
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(metadataEventType, strconv.Itoa(int(event.GetType())))
		msg.Metadata.Set(metadataEventId, id)
		watermillMessages = append(watermillMessages, msg)
	}

	return watermillMessages, nil
}

func fromWatermillMessage(msg *message.Message) (domain.Event, error) {
	eventType, err := strconv.Atoi(msg.Metadata.Get(metadataEventType))
	if err != nil {
		return nil, fmt.Errorf("invalid event type: %w", err)
	}

	var event domain.Event
	switch domain.EventType(eventType) {
	case domain.EventTypeRoundOpened:
		var e domain.RoundOpened
		if err = json.Unmarshal(msg.Payload, &e); err == nil {
			event = e
		}
	case domain.EventTypeEntriesPurchased:
		var e domain.EntriesPurchased
		if err = json.Unmarshal(msg.Payload, &e); err == nil {
			event = e
		}
	case domain.EventTypeRoundClosed:
		var e domain.RoundClosed
		if err = json.Unmarshal(msg.Payload, &e); err == nil {
			event = e
		}
	case domain.EventTypeRandomnessRequested:
		var e domain.RandomnessRequested
		if err = json.Unmarshal(msg.Payload, &e); err == nil {
			event = e
		}
	case domain.EventTypeWinnerResolved:
		var e domain.WinnerResolved
		if err = json.Unmarshal(msg.Payload, &e); err == nil {
			event = e
		}
	default:
		return nil, fmt.Errorf("unknown event type %d", eventType)
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}
