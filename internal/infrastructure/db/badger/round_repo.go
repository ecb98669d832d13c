package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const (
	roundStoreDir   = "rounds"
	roundCounterKey = "last_round_id"
)

type roundCounter struct {
	LastId uint64
}

type roundRepository struct {
	store *badgerhold.Store
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	baseDir, logger, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, roundStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open round store: %s", err)
	}

	return &roundRepository{store}, nil
}

func (r *roundRepository) AddOrUpdateRound(
	_ context.Context, round domain.Round,
) error {
	return retry(func() error {
		return r.store.Upsert(round.Id, round)
	})
}

func (r *roundRepository) GetRoundWithId(
	_ context.Context, id uint64,
) (*domain.Round, error) {
	var round domain.Round
	if err := r.store.Get(id, &round); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: round with id %d", domain.ErrRoundNotFound, id)
		}
		return nil, fmt.Errorf("failed to get round with id %d: %s", id, err)
	}
	if round.Entries == nil {
		round.Entries = make([]string, 0)
	}
	return &round, nil
}

func (r *roundRepository) GetRounds(
	_ context.Context, status ...domain.RoundStatus,
) ([]domain.Round, error) {
	var query *badgerhold.Query
	if len(status) > 0 {
		values := make([]interface{}, 0, len(status))
		for _, s := range status {
			values = append(values, s)
		}
		query = badgerhold.Where("Status").In(values...)
	}

	rounds, err := r.findRound(query)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rounds, func(i, j int) bool {
		return rounds[i].Id < rounds[j].Id
	})
	return rounds, nil
}

// ReserveRoundId records id as allocated, so that it is not handed out again
// after a restart even if the round itself was never stored.
func (r *roundRepository) ReserveRoundId(_ context.Context, id uint64) error {
	return retry(func() error {
		return r.store.Badger().Update(func(tx *badger.Txn) error {
			var counter roundCounter
			err := r.store.TxGet(tx, roundCounterKey, &counter)
			if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
				return err
			}
			if counter.LastId >= id {
				return nil
			}
			counter.LastId = id
			return r.store.TxUpsert(tx, roundCounterKey, counter)
		})
	})
}

func (r *roundRepository) GetLastRoundId(_ context.Context) (uint64, error) {
	var counter roundCounter
	if err := r.store.Get(roundCounterKey, &counter); err != nil &&
		!errors.Is(err, badgerhold.ErrNotFound) {
		return 0, fmt.Errorf("failed to get round counter: %s", err)
	}

	rounds, err := r.findRound(nil)
	if err != nil {
		return 0, err
	}

	lastId := counter.LastId
	for _, round := range rounds {
		if round.Id > lastId {
			lastId = round.Id
		}
	}
	return lastId, nil
}

func (r *roundRepository) Close() {
	r.store.Close()
}

func (r *roundRepository) findRound(query *badgerhold.Query) ([]domain.Round, error) {
	var rounds []domain.Round
	if err := r.store.Find(&rounds, query); err != nil {
		return nil, err
	}

	for i := range rounds {
		if rounds[i].Entries == nil {
			rounds[i].Entries = make([]string, 0)
		}
	}
	return rounds, nil
}
