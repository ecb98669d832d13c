package badgerdb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/timshannon/badgerhold/v4"
)

const maxRetries = 5

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
					if logger != nil {
						logger.Errorf("%s", err)
					}
				}
			}
		}()
	}

	return db, nil
}

func parseConfig(config []interface{}) (string, badger.Logger, error) {
	if len(config) != 2 {
		return "", nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("invalid base directory")
	}

	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return "", nil, fmt.Errorf("invalid logger")
		}
	}
	return baseDir, logger, nil
}

// retry re-runs fn while badger reports a write conflict.
func retry(fn func() error) (err error) {
	for i := 0; i < maxRetries; i++ {
		if err = fn(); err == nil || err != badger.ErrConflict {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	return
}

type eventDTO struct {
	Type domain.EventType
	Data []byte
}

type eventsDTO struct {
	Events []eventDTO
}

func serializeEvents(events []domain.Event) (*eventsDTO, error) {
	dtos := make([]eventDTO, 0, len(events))
	for _, event := range events {
		buf, err := json.Marshal(event)
		if err != nil {
			return nil, err
		}
		dtos = append(dtos, eventDTO{event.GetType(), buf})
	}
	return &eventsDTO{dtos}, nil
}

func deserializeEvents(dtos []eventDTO) ([]domain.Event, error) {
	events := make([]domain.Event, 0, len(dtos))
	for _, dto := range dtos {
		event, err := deserializeEvent(dto)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func deserializeEvent(dto eventDTO) (domain.Event, error) {
	switch dto.Type {
	case domain.EventTypeRoundOpened:
		var event domain.RoundOpened
		err := json.Unmarshal(dto.Data, &event)
		return event, err
	case domain.EventTypeEntriesPurchased:
		var event domain.EntriesPurchased
		err := json.Unmarshal(dto.Data, &event)
		return event, err
	case domain.EventTypeRoundClosed:
		var event domain.RoundClosed
		err := json.Unmarshal(dto.Data, &event)
		return event, err
	case domain.EventTypeRandomnessRequested:
		var event domain.RandomnessRequested
		err := json.Unmarshal(dto.Data, &event)
		return event, err
	case domain.EventTypeWinnerResolved:
		var event domain.WinnerResolved
		err := json.Unmarshal(dto.Data, &event)
		return event, err
	default:
		return nil, fmt.Errorf("unknown event type %d", dto.Type)
	}
}
