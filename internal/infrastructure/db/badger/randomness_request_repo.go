package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const requestStoreDir = "randomness-requests"

type randomnessRequestRepository struct {
	store *badgerhold.Store
}

func NewRandomnessRequestRepository(
	config ...interface{},
) (domain.RandomnessRequestRepository, error) {
	baseDir, logger, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, requestStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open randomness request store: %s", err)
	}

	return &randomnessRequestRepository{store}, nil
}

func (r *randomnessRequestRepository) AddRequest(
	_ context.Context, request domain.RandomnessRequest,
) error {
	return retry(func() error {
		return r.store.Upsert(request.Id, request)
	})
}

func (r *randomnessRequestRepository) GetRequest(
	_ context.Context, id string,
) (*domain.RandomnessRequest, error) {
	var request domain.RandomnessRequest
	if err := r.store.Get(id, &request); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRequest, id)
		}
		return nil, fmt.Errorf("failed to get request %s: %s", id, err)
	}
	return &request, nil
}

func (r *randomnessRequestRepository) GetRequestForRound(
	_ context.Context, roundId uint64,
) (*domain.RandomnessRequest, error) {
	var requests []domain.RandomnessRequest
	query := badgerhold.Where("RoundId").Eq(roundId)
	if err := r.store.Find(&requests, query); err != nil {
		return nil, err
	}
	if len(requests) <= 0 {
		return nil, fmt.Errorf("%w: no request for round %d", domain.ErrUnknownRequest, roundId)
	}
	return &requests[0], nil
}

func (r *randomnessRequestRepository) ConsumeRequest(_ context.Context, id string) error {
	return retry(func() error {
		err := r.store.Delete(id, domain.RandomnessRequest{})
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrUnknownRequest, id)
		}
		return err
	})
}

func (r *randomnessRequestRepository) Close() {
	r.store.Close()
}
