package domain

import "context"

type RoundRepository interface {
	AddOrUpdateRound(ctx context.Context, round Round) error
	GetRoundWithId(ctx context.Context, id uint64) (*Round, error)
	GetRounds(ctx context.Context, status ...RoundStatus) ([]Round, error)
	// ReserveRoundId durably marks id as allocated. GetLastRoundId never
	// returns less than the highest reserved id.
	ReserveRoundId(ctx context.Context, id uint64) error
	GetLastRoundId(ctx context.Context) (uint64, error)
	Close()
}

type RandomnessRequestRepository interface {
	AddRequest(ctx context.Context, request RandomnessRequest) error
	GetRequest(ctx context.Context, id string) (*RandomnessRequest, error)
	GetRequestForRound(ctx context.Context, roundId uint64) (*RandomnessRequest, error)
	// ConsumeRequest deletes the request and fails with ErrUnknownRequest if
	// it does not exist anymore.
	ConsumeRequest(ctx context.Context, id string) error
	Close()
}
