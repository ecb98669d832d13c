package application

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/ark-network/raffle/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

func (s *service) OpenRound(
	ctx context.Context, caller string, params domain.RoundParams,
) (uint64, error) {
	if !s.isOperator(caller) {
		return 0, fmt.Errorf("%w: only the operator can open rounds", domain.ErrUnauthorized)
	}

	s.idLock.Lock()
	defer s.idLock.Unlock()

	now := s.scheduler.Now()
	roundId := s.lastRoundId + 1

	round := domain.NewRound(roundId)
	events, err := round.Open(params, now)
	if err != nil {
		return 0, err
	}

	if err := s.repoManager.Rounds().ReserveRoundId(ctx, roundId); err != nil {
		return 0, err
	}
	// The id is burned from here on, even if persisting fails.
	s.lastRoundId = roundId

	if err := s.saveRound(ctx, round, events); err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"round":      roundId,
		"price":      params.EntryPrice,
		"max":        params.MaxEntries,
		"commission": params.CommissionRate,
		"expiration": params.Expiration,
	}).Info("opened round")

	if s.autoDraw {
		s.scheduleDraw(roundId, params.Expiration)
	}

	return roundId, nil
}

func (s *service) BuyEntries(
	ctx context.Context, caller string, roundId, count, payment uint64,
) error {
	release := s.roundLocks.acquire(roundId)
	soldOut, err := func() (bool, error) {
		defer release()

		round, err := s.getRound(ctx, roundId)
		if err != nil {
			if errors.Is(err, domain.ErrRoundNotFound) {
				return false, fmt.Errorf("%w: round %d does not exist", domain.ErrRoundNotOpen, roundId)
			}
			return false, err
		}

		events, err := round.BuyEntries(caller, count, payment, s.scheduler.Now())
		if err != nil {
			return false, err
		}

		if err := s.saveRound(ctx, round, events); err != nil {
			return false, err
		}

		log.WithFields(log.Fields{
			"round":     roundId,
			"buyer":     caller,
			"count":     count,
			"remaining": round.RemainingEntries(),
		}).Debug("entries purchased")

		return round.IsSoldOut(), nil
	}()
	if err != nil {
		return err
	}

	if soldOut && s.autoDraw {
		log.Infof("round %d sold out, drawing", roundId)
		go s.autoDrawRound(roundId)
	}
	return nil
}

func (s *service) GetRound(ctx context.Context, roundId uint64) (*RoundInfo, error) {
	release := s.roundLocks.acquire(roundId)
	defer release()

	round, err := s.getRound(ctx, roundId)
	if err != nil {
		return nil, err
	}
	info := newRoundInfo(*round)
	return &info, nil
}

func (s *service) GetRemainingEntries(ctx context.Context, roundId uint64) (uint64, error) {
	release := s.roundLocks.acquire(roundId)
	defer release()

	round, err := s.getRound(ctx, roundId)
	if err != nil {
		return 0, err
	}
	return round.RemainingEntries(), nil
}

// GetPooledBalance returns the funds held in custody, summed over every round
// not yet disbursed. Each round is read under its lock, so a resolution in
// progress is either fully counted or not at all.
func (s *service) GetPooledBalance(ctx context.Context, caller string) (uint64, error) {
	if !s.isOperator(caller) {
		return 0, fmt.Errorf("%w: only the operator can read the balance", domain.ErrUnauthorized)
	}

	rounds, err := s.repoManager.Rounds().GetRounds(
		ctx, domain.OpenStatus, domain.AwaitingRandomnessStatus,
	)
	if err != nil {
		return 0, err
	}

	var balance uint64
	for _, r := range rounds {
		pooled, err := s.pooledFunds(ctx, r.Id)
		if err != nil {
			return 0, err
		}

		var carry uint64
		balance, carry = bits.Add64(balance, pooled, 0)
		if carry != 0 {
			return 0, fmt.Errorf("pooled balance overflows at round %d", r.Id)
		}
	}
	return balance, nil
}

func (s *service) pooledFunds(ctx context.Context, roundId uint64) (uint64, error) {
	release := s.roundLocks.acquire(roundId)
	defer release()

	round, err := s.getRound(ctx, roundId)
	if err != nil {
		return 0, err
	}
	if round.IsDisbursed() {
		return 0, nil
	}
	return round.PooledFunds, nil
}

// GetAccountBalance returns the funds credited to account by past payouts and
// commissions.
func (s *service) GetAccountBalance(ctx context.Context, account string) (uint64, error) {
	if len(account) <= 0 {
		return 0, fmt.Errorf("%w: missing account", domain.ErrInvalidParameters)
	}
	return s.treasury.Balance(ctx, account)
}

// GetRoundHistory rebuilds the round from its event log and reports whether
// the replayed state matches the stored one.
func (s *service) GetRoundHistory(ctx context.Context, roundId uint64) (*RoundHistory, error) {
	release := s.roundLocks.acquire(roundId)
	defer release()

	round, err := s.getRound(ctx, roundId)
	if err != nil {
		return nil, err
	}

	events, err := s.repoManager.Events().Load(ctx, domain.RoundTopic, formatRoundId(roundId))
	if err != nil {
		return nil, err
	}

	replayed := domain.NewRoundFromEvents(events)
	consistent := replayed.Id == round.Id &&
		replayed.Version == round.Version &&
		replayed.Status == round.Status &&
		replayed.PooledFunds == round.PooledFunds &&
		len(replayed.Entries) == len(round.Entries) &&
		replayed.Winner == round.Winner

	return &RoundHistory{
		Events:     events,
		Replayed:   newRoundInfo(*replayed),
		Consistent: consistent,
	}, nil
}

func (s *service) ListRounds(
	ctx context.Context, status ...domain.RoundStatus,
) ([]RoundInfo, error) {
	rounds, err := s.repoManager.Rounds().GetRounds(ctx, status...)
	if err != nil {
		return nil, err
	}

	list := make([]RoundInfo, 0, len(rounds))
	for _, round := range rounds {
		list = append(list, newRoundInfo(round))
	}
	return list, nil
}
