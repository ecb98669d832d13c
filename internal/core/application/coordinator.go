package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// RequestRandomness closes the round and asks the oracle for a random value.
// Nothing is persisted unless the oracle accepted the request.
func (s *service) RequestRandomness(ctx context.Context, roundId uint64) (string, error) {
	release := s.roundLocks.acquire(roundId)
	defer release()

	round, err := s.getRound(ctx, roundId)
	if err != nil {
		if errors.Is(err, domain.ErrRoundNotFound) {
			return "", fmt.Errorf("%w: round %d does not exist", domain.ErrRoundNotOpen, roundId)
		}
		return "", err
	}

	now := s.scheduler.Now()
	events, err := round.Close(now)
	if err != nil {
		return "", err
	}

	pending, err := s.repoManager.RandomnessRequests().GetRequestForRound(ctx, roundId)
	if err != nil && !errors.Is(err, domain.ErrUnknownRequest) {
		return "", err
	}
	if pending != nil {
		return "", fmt.Errorf(
			"%w: request %s for round %d", domain.ErrRequestAlreadyPending, pending.Id, roundId,
		)
	}

	requestId, requestEvents, err := s.issueRequest(ctx, round, now)
	if err != nil {
		return "", err
	}
	events = append(events, requestEvents...)

	if err := s.persistRequest(ctx, round, requestId, now, events); err != nil {
		return "", err
	}

	log.WithFields(log.Fields{
		"round":   roundId,
		"request": requestId,
		"entries": len(round.Entries),
	}).Info("requested randomness")

	return requestId, nil
}

// RetryRandomness replaces the pending request of a round that the oracle
// did not answer within the configured timeout.
func (s *service) RetryRandomness(
	ctx context.Context, caller string, roundId uint64,
) (string, error) {
	if !s.isOperator(caller) {
		return "", fmt.Errorf("%w: only the operator can retry requests", domain.ErrUnauthorized)
	}

	release := s.roundLocks.acquire(roundId)
	defer release()

	round, err := s.getRound(ctx, roundId)
	if err != nil {
		return "", err
	}
	switch round.Status {
	case domain.AwaitingRandomnessStatus:
	case domain.ResolvedStatus:
		return "", fmt.Errorf("%w: round %d", domain.ErrAlreadyResolved, roundId)
	default:
		return "", fmt.Errorf(
			"%w: round %d is not awaiting randomness", domain.ErrRoundNotOpen, roundId,
		)
	}

	now := s.scheduler.Now()
	stale, err := s.repoManager.RandomnessRequests().GetRequestForRound(ctx, roundId)
	if err != nil && !errors.Is(err, domain.ErrUnknownRequest) {
		return "", err
	}
	if stale != nil && !stale.IsStale(now.Unix(), s.randomnessTimeout) {
		return "", fmt.Errorf(
			"%w: request %s for round %d is not timed out yet",
			domain.ErrRequestAlreadyPending, stale.Id, roundId,
		)
	}

	requestId, events, err := s.issueRequest(ctx, round, now)
	if err != nil {
		return "", err
	}

	if stale != nil {
		if err := s.repoManager.RandomnessRequests().ConsumeRequest(ctx, stale.Id); err != nil {
			return "", fmt.Errorf("failed to drop stale request %s: %w", stale.Id, err)
		}
	}
	if err := s.persistRequest(ctx, round, requestId, now, events); err != nil {
		if stale != nil {
			s.restoreRequest(ctx, *stale)
		}
		return "", err
	}

	staleId := ""
	if stale != nil {
		staleId = stale.Id
	}
	log.WithFields(log.Fields{
		"round":   roundId,
		"request": requestId,
		"stale":   staleId,
	}).Info("retried randomness request")

	return requestId, nil
}

// OnRandomnessReceived resolves the round correlated with requestId. Either
// every effect is applied or none is: transfers are reverted and the pending
// request restored if anything after them fails. Disbursements are keyed by
// round, so a redelivery after a crash between transfer and persist does not
// pay twice.
func (s *service) OnRandomnessReceived(
	ctx context.Context, requestId string, randomValue *big.Int,
) error {
	request, err := s.repoManager.RandomnessRequests().GetRequest(ctx, requestId)
	if err != nil {
		return err
	}

	release := s.roundLocks.acquire(request.RoundId)
	defer release()

	// Another callback may have consumed the request while waiting for the lock.
	request, err = s.repoManager.RandomnessRequests().GetRequest(ctx, requestId)
	if err != nil {
		return err
	}

	round, err := s.getRound(ctx, request.RoundId)
	if err != nil {
		return err
	}
	if round.IsResolved() {
		return fmt.Errorf("%w: round %d", domain.ErrAlreadyResolved, round.Id)
	}
	if round.RequestId != requestId {
		return fmt.Errorf(
			"%w: request %s is not the live one for round %d",
			domain.ErrUnknownRequest, requestId, round.Id,
		)
	}

	events, err := round.Resolve(randomValue, s.scheduler.Now())
	if err != nil {
		return err
	}

	transfers := make([]ports.Transfer, 0, 2)
	memo := fmt.Sprintf("round %d", round.Id)
	if round.Payout > 0 {
		transfers = append(transfers, ports.Transfer{
			To: round.Winner, Amount: round.Payout, RoundId: round.Id,
			Kind: ports.PayoutTransfer, Memo: memo + " payout",
		})
	}
	if round.Commission > 0 {
		transfers = append(transfers, ports.Transfer{
			To: s.operator, Amount: round.Commission, RoundId: round.Id,
			Kind: ports.CommissionTransfer, Memo: memo + " commission",
		})
	}

	if err := s.treasury.Transfer(ctx, transfers...); err != nil {
		if !errors.Is(err, domain.ErrTransferFailed) {
			err = fmt.Errorf("%w: %s", domain.ErrTransferFailed, err)
		}
		log.WithError(err).Warnf("failed to disburse round %d, resolution rolled back", round.Id)
		return err
	}

	if err := s.repoManager.RandomnessRequests().ConsumeRequest(ctx, requestId); err != nil {
		s.revertTransfers(ctx, transfers)
		return err
	}

	if err := s.repoManager.Rounds().AddOrUpdateRound(ctx, *round); err != nil {
		s.revertTransfers(ctx, transfers)
		s.restoreRequest(ctx, *request)
		return fmt.Errorf("failed to persist round %d: %w", round.Id, err)
	}
	s.saveEvents(ctx, round.Id, events)

	log.WithFields(log.Fields{
		"round":      round.Id,
		"winner":     round.Winner,
		"index":      round.WinningIndex,
		"payout":     round.Payout,
		"commission": round.Commission,
	}).Info("resolved round")

	return nil
}

func (s *service) onFulfillment(
	ctx context.Context, requestId string, randomWords []*big.Int,
) error {
	if len(randomWords) <= 0 {
		return fmt.Errorf("%w: no random words for request %s", domain.ErrInvalidParameters, requestId)
	}
	return s.OnRandomnessReceived(ctx, requestId, randomWords[0])
}

func (s *service) issueRequest(
	ctx context.Context, round *domain.Round, now time.Time,
) (string, []domain.Event, error) {
	requestId, err := s.oracle.RequestRandomness(ctx, ports.RandomnessRequest{
		OracleConfig:   s.oracleConfig,
		CorrelationKey: formatRoundId(round.Id),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to request randomness for round %d: %w", round.Id, err)
	}

	events, err := round.RequestRandomness(requestId, now)
	if err != nil {
		return "", nil, err
	}
	return requestId, events, nil
}

func (s *service) persistRequest(
	ctx context.Context, round *domain.Round, requestId string,
	now time.Time, events []domain.Event,
) error {
	request, err := domain.NewRandomnessRequest(requestId, round.Id, now.Unix())
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRequest, err)
	}
	if err := s.repoManager.RandomnessRequests().AddRequest(ctx, *request); err != nil {
		return fmt.Errorf("failed to persist request %s: %w", requestId, err)
	}
	if err := s.saveRound(ctx, round, events); err != nil {
		if err := s.repoManager.RandomnessRequests().ConsumeRequest(ctx, requestId); err != nil {
			log.WithError(err).Warnf("failed to drop orphan request %s", requestId)
		}
		return err
	}
	return nil
}

func (s *service) restoreRequest(ctx context.Context, request domain.RandomnessRequest) {
	if err := s.repoManager.RandomnessRequests().AddRequest(ctx, request); err != nil {
		log.WithError(err).Errorf(
			"failed to restore request %s for round %d", request.Id, request.RoundId,
		)
	}
}

func (s *service) revertTransfers(ctx context.Context, transfers []ports.Transfer) {
	if err := s.treasury.Revert(ctx, transfers...); err != nil {
		log.WithError(err).Errorf("failed to revert %d transfers", len(transfers))
	}
}

func (s *service) scheduleDraw(roundId uint64, at int64) {
	if err := s.scheduler.ScheduleTaskOnce(at, func() {
		s.autoDrawRound(roundId)
	}); err != nil {
		log.WithError(err).Warnf("failed to schedule draw for round %d", roundId)
		return
	}
	log.Debugf("scheduled draw for round %d at %d", roundId, at)
}

func (s *service) autoDrawRound(roundId uint64) {
	ctx := context.Background()
	if round, err := s.getRound(ctx, roundId); err == nil && !round.IsOpen() {
		log.Debugf("round %d already drawn", roundId)
		return
	}

	requestId, err := s.RequestRandomness(ctx, roundId)
	if err != nil {
		// Sold out rounds are drawn before their deadline fires.
		if errors.Is(err, domain.ErrRoundNotOpen) {
			log.Debugf("round %d already drawn", roundId)
			return
		}
		log.WithError(err).Warnf("failed to draw round %d", roundId)
		return
	}
	log.Debugf("drew round %d with request %s", roundId, requestId)
}
