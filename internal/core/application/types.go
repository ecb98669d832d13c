package application

import (
	"context"
	"math/big"
	"time"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
)

type Service interface {
	Start() error
	Stop()

	GetOperator() string

	// Round registry.
	OpenRound(ctx context.Context, caller string, params domain.RoundParams) (uint64, error)
	BuyEntries(ctx context.Context, caller string, roundId, count, payment uint64) error
	GetRound(ctx context.Context, roundId uint64) (*RoundInfo, error)
	GetRemainingEntries(ctx context.Context, roundId uint64) (uint64, error)
	GetPooledBalance(ctx context.Context, caller string) (uint64, error)
	ListRounds(ctx context.Context, status ...domain.RoundStatus) ([]RoundInfo, error)
	GetRoundHistory(ctx context.Context, roundId uint64) (*RoundHistory, error)
	GetAccountBalance(ctx context.Context, account string) (uint64, error)

	// Randomness coordinator.
	RequestRandomness(ctx context.Context, roundId uint64) (string, error)
	RetryRandomness(ctx context.Context, caller string, roundId uint64) (string, error)
	OnRandomnessReceived(ctx context.Context, requestId string, randomValue *big.Int) error

	GetEventsChannel(ctx context.Context) <-chan domain.Event
}

type Config struct {
	Operator          string
	OracleConfig      ports.OracleConfig
	RandomnessTimeout time.Duration
	AutoDraw          bool
}

// RoundInfo is a read-only projection of a round.
type RoundInfo struct {
	Id               uint64
	EntryPrice       uint64
	MaxEntries       uint64
	CommissionRate   uint64
	Expiration       int64
	Entries          []string
	Status           domain.RoundStatus
	PooledFunds      uint64
	RemainingEntries uint64
	OpenedAt         int64
	ClosedAt         int64
	RequestId        string
	Winner           string
	WinningIndex     uint64
	Payout           uint64
	Commission       uint64
	ResolvedAt       int64
}

func newRoundInfo(round domain.Round) RoundInfo {
	return RoundInfo{
		Id:               round.Id,
		EntryPrice:       round.EntryPrice,
		MaxEntries:       round.MaxEntries,
		CommissionRate:   round.CommissionRate,
		Expiration:       round.Expiration,
		Entries:          append([]string{}, round.Entries...),
		Status:           round.Status,
		PooledFunds:      round.PooledFunds,
		RemainingEntries: round.RemainingEntries(),
		OpenedAt:         round.OpenedAt,
		ClosedAt:         round.ClosedAt,
		RequestId:        round.RequestId,
		Winner:           round.Winner,
		WinningIndex:     round.WinningIndex,
		Payout:           round.Payout,
		Commission:       round.Commission,
		ResolvedAt:       round.ResolvedAt,
	}
}

// RoundHistory is the event log of a round together with the state obtained
// by replaying it.
type RoundHistory struct {
	Events     []domain.Event
	Replayed   RoundInfo
	Consistent bool
}
