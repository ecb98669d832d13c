package application

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	"github.com/stretchr/testify/require"
)

const (
	operator = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	buyerB   = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	buyerC   = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

var (
	startTime = time.Unix(1701190270, 0)
	oracleCfg = ports.OracleConfig{
		KeyHash:              "0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c",
		SubscriptionId:       "1",
		RequestConfirmations: 3,
		CallbackGasLimit:     1000000,
		NumWords:             1,
	}
	defaultParams = domain.RoundParams{
		EntryPrice:     100,
		MaxEntries:     100,
		CommissionRate: 10,
		Expiration:     startTime.Add(600 * time.Second).Unix(),
	}
)

type testEnv struct {
	svc       *service
	repo      *MockRepoManager
	scheduler *MockScheduler
	oracle    *MockOracle
	treasury  *MockTreasury
}

func newTestEnv(t *testing.T, autoDraw bool) *testEnv {
	repo := newMockRepoManager()
	scheduler := newMockScheduler(startTime)
	oracle := &MockOracle{}
	treasury := newMockTreasury()

	svc, err := NewService(Config{
		Operator:          operator,
		OracleConfig:      oracleCfg,
		RandomnessTimeout: time.Hour,
		AutoDraw:          autoDraw,
	}, repo, oracle, treasury, scheduler)
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	return &testEnv{svc.(*service), repo, scheduler, oracle, treasury}
}

func TestNewService(t *testing.T) {
	repo := newMockRepoManager()
	scheduler := newMockScheduler(startTime)

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			config      Config
			expectedErr string
		}{
			{Config{RandomnessTimeout: time.Hour}, "missing operator identity"},
			{Config{Operator: operator}, "randomness timeout must be at least 1s"},
			{
				Config{Operator: operator, RandomnessTimeout: 500 * time.Millisecond},
				"randomness timeout must be at least 1s",
			},
		}
		for _, f := range fixtures {
			svc, err := NewService(f.config, repo, &MockOracle{}, newMockTreasury(), scheduler)
			require.EqualError(t, err, f.expectedErr)
			require.Nil(t, svc)
		}
	})

	t.Run("resumes_round_ids", func(t *testing.T) {
		repo := newMockRepoManager()
		round := domain.NewRound(7)
		_, err := round.Open(defaultParams, startTime)
		require.NoError(t, err)
		require.NoError(t, repo.Rounds().AddOrUpdateRound(context.Background(), *round))

		svc, err := NewService(Config{
			Operator: operator, RandomnessTimeout: time.Hour,
		}, repo, &MockOracle{}, newMockTreasury(), scheduler)
		require.NoError(t, err)
		require.Equal(t, operator, svc.GetOperator())

		id, err := svc.OpenRound(context.Background(), operator, defaultParams)
		require.NoError(t, err)
		require.Equal(t, uint64(8), id)
	})
}

func TestRoundRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("purchase_scenario", func(t *testing.T) {
		env := newTestEnv(t, false)

		roundId, err := env.svc.OpenRound(ctx, operator, defaultParams)
		require.NoError(t, err)
		require.Equal(t, uint64(1), roundId)

		err = env.svc.BuyEntries(ctx, buyerB, roundId, 1, 100)
		require.NoError(t, err)

		info, err := env.svc.GetRound(ctx, roundId)
		require.NoError(t, err)
		require.Equal(t, []string{buyerB}, info.Entries)
		require.Equal(t, domain.OpenStatus, info.Status)

		remaining, err := env.svc.GetRemainingEntries(ctx, roundId)
		require.NoError(t, err)
		require.Equal(t, uint64(99), remaining)

		balance, err := env.svc.GetPooledBalance(ctx, operator)
		require.NoError(t, err)
		require.Equal(t, uint64(100), balance)

		fixtures := []struct {
			count       uint64
			payment     uint64
			expectedErr error
		}{
			{1, 50, domain.ErrIncorrectPayment},
			{2, 150, domain.ErrIncorrectPayment},
			{101, 10100, domain.ErrSoldOut},
			{0, 0, domain.ErrInvalidEntryCount},
		}
		for _, f := range fixtures {
			err := env.svc.BuyEntries(ctx, buyerB, roundId, f.count, f.payment)
			require.ErrorIs(t, err, f.expectedErr)
		}

		remaining, err = env.svc.GetRemainingEntries(ctx, roundId)
		require.NoError(t, err)
		require.Equal(t, uint64(99), remaining)

		purchased := env.repo.events.savedOfType(domain.EventTypeEntriesPurchased)
		require.Len(t, purchased, 1)
	})

	t.Run("expired_round", func(t *testing.T) {
		env := newTestEnv(t, false)

		roundId, err := env.svc.OpenRound(ctx, operator, domain.RoundParams{
			EntryPrice:     100,
			MaxEntries:     10,
			CommissionRate: 10,
			Expiration:     startTime.Add(5 * time.Second).Unix(),
		})
		require.NoError(t, err)

		env.scheduler.advance(6 * time.Second)

		err = env.svc.BuyEntries(ctx, buyerB, roundId, 1, 100)
		require.ErrorIs(t, err, domain.ErrRoundExpired)
	})

	t.Run("unauthorized", func(t *testing.T) {
		env := newTestEnv(t, false)

		_, err := env.svc.OpenRound(ctx, buyerB, defaultParams)
		require.ErrorIs(t, err, domain.ErrUnauthorized)

		_, err = env.svc.GetPooledBalance(ctx, buyerB)
		require.ErrorIs(t, err, domain.ErrUnauthorized)

		_, err = env.svc.RetryRandomness(ctx, buyerB, 1)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("round_ids", func(t *testing.T) {
		env := newTestEnv(t, false)

		_, err := env.svc.OpenRound(ctx, operator, domain.RoundParams{})
		require.ErrorIs(t, err, domain.ErrInvalidParameters)

		for i := uint64(1); i <= 3; i++ {
			id, err := env.svc.OpenRound(ctx, operator, defaultParams)
			require.NoError(t, err)
			require.Equal(t, i, id)
		}

		env.repo.rounds.failing = true
		_, err = env.svc.OpenRound(ctx, operator, defaultParams)
		require.Error(t, err)
		env.repo.rounds.failing = false

		id, err := env.svc.OpenRound(ctx, operator, defaultParams)
		require.NoError(t, err)
		require.Equal(t, uint64(5), id)

		rounds, err := env.svc.ListRounds(ctx)
		require.NoError(t, err)
		require.Len(t, rounds, 4)

		// Burn the highest id and make sure a restart does not reuse it.
		env.repo.rounds.failing = true
		_, err = env.svc.OpenRound(ctx, operator, defaultParams)
		require.Error(t, err)
		env.repo.rounds.failing = false

		restarted, err := NewService(Config{
			Operator: operator, RandomnessTimeout: time.Hour,
		}, env.repo, &MockOracle{}, newMockTreasury(), env.scheduler)
		require.NoError(t, err)

		id, err = restarted.OpenRound(ctx, operator, defaultParams)
		require.NoError(t, err)
		require.Equal(t, uint64(7), id)
	})

	t.Run("missing_round", func(t *testing.T) {
		env := newTestEnv(t, false)

		_, err := env.svc.GetRound(ctx, 42)
		require.ErrorIs(t, err, domain.ErrRoundNotFound)

		_, err = env.svc.GetRemainingEntries(ctx, 42)
		require.ErrorIs(t, err, domain.ErrRoundNotFound)

		err = env.svc.BuyEntries(ctx, buyerB, 42, 1, 100)
		require.ErrorIs(t, err, domain.ErrRoundNotOpen)
	})

	t.Run("concurrent_purchases", func(t *testing.T) {
		env := newTestEnv(t, false)

		roundId, err := env.svc.OpenRound(ctx, operator, domain.RoundParams{
			EntryPrice:     10,
			MaxEntries:     50,
			CommissionRate: 5,
			Expiration:     defaultParams.Expiration,
		})
		require.NoError(t, err)

		numOfBuyers := 40
		results := make(chan error, numOfBuyers)
		wg := &sync.WaitGroup{}
		wg.Add(numOfBuyers)
		for i := 0; i < numOfBuyers; i++ {
			go func() {
				defer wg.Done()
				results <- env.svc.BuyEntries(ctx, buyerB, roundId, 2, 20)
			}()
		}
		wg.Wait()
		close(results)

		succeeded, soldOut := 0, 0
		for err := range results {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, domain.ErrSoldOut)
			soldOut++
		}
		require.Equal(t, 25, succeeded)
		require.Equal(t, 15, soldOut)

		info, err := env.svc.GetRound(ctx, roundId)
		require.NoError(t, err)
		require.Len(t, info.Entries, 50)
		require.Zero(t, info.RemainingEntries)
		require.Equal(t, uint64(500), info.PooledFunds)
	})
}

func TestPooledBalance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)

	_, err := env.svc.GetPooledBalance(ctx, buyerB)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	params := domain.RoundParams{
		EntryPrice: 1 << 63, MaxEntries: 1, Expiration: defaultParams.Expiration,
	}
	for i := 0; i < 2; i++ {
		roundId, err := env.svc.OpenRound(ctx, operator, params)
		require.NoError(t, err)
		require.NoError(t, env.svc.BuyEntries(ctx, buyerB, roundId, 1, params.EntryPrice))
	}

	balance, err := env.svc.GetPooledBalance(ctx, operator)
	require.Error(t, err)
	require.Zero(t, balance)
}

func TestRoundHistory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)

	_, err := env.svc.GetRoundHistory(ctx, 1)
	require.ErrorIs(t, err, domain.ErrRoundNotFound)

	roundId, err := env.svc.OpenRound(ctx, operator, defaultParams)
	require.NoError(t, err)
	require.NoError(t, env.svc.BuyEntries(ctx, buyerB, roundId, 4, 400))
	require.NoError(t, env.svc.BuyEntries(ctx, buyerC, roundId, 6, 600))
	env.scheduler.advance(601 * time.Second)

	requestId, err := env.svc.RequestRandomness(ctx, roundId)
	require.NoError(t, err)
	require.NoError(t, env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(14)))

	history, err := env.svc.GetRoundHistory(ctx, roundId)
	require.NoError(t, err)
	require.True(t, history.Consistent)
	require.Len(t, history.Events, 6)
	require.Equal(t, domain.ResolvedStatus, history.Replayed.Status)
	require.Equal(t, buyerC, history.Replayed.Winner)

	stored, err := env.repo.Rounds().GetRoundWithId(ctx, roundId)
	require.NoError(t, err)
	stored.PooledFunds = 1
	require.NoError(t, env.repo.Rounds().AddOrUpdateRound(ctx, *stored))

	history, err = env.svc.GetRoundHistory(ctx, roundId)
	require.NoError(t, err)
	require.False(t, history.Consistent)
}

func TestAccountBalance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)

	_, err := env.svc.GetAccountBalance(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidParameters)

	require.NoError(t, env.treasury.Transfer(ctx, ports.Transfer{
		To: buyerB, Amount: 900, RoundId: 1, Kind: ports.PayoutTransfer,
	}))
	balance, err := env.svc.GetAccountBalance(ctx, buyerB)
	require.NoError(t, err)
	require.Equal(t, uint64(900), balance)

	balance, err = env.svc.GetAccountBalance(ctx, buyerC)
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestRandomnessCoordinator(t *testing.T) {
	ctx := context.Background()

	openAndFill := func(t *testing.T, env *testEnv) uint64 {
		roundId, err := env.svc.OpenRound(ctx, operator, defaultParams)
		require.NoError(t, err)
		require.NoError(t, env.svc.BuyEntries(ctx, buyerB, roundId, 4, 400))
		require.NoError(t, env.svc.BuyEntries(ctx, buyerC, roundId, 6, 600))
		return roundId
	}

	t.Run("resolution", func(t *testing.T) {
		env := newTestEnv(t, false)
		roundId := openAndFill(t, env)

		_, err := env.svc.RequestRandomness(ctx, roundId)
		require.ErrorIs(t, err, domain.ErrRoundNotEligible)

		env.scheduler.advance(601 * time.Second)

		requestId, err := env.svc.RequestRandomness(ctx, roundId)
		require.NoError(t, err)
		require.NotEmpty(t, requestId)
		require.Equal(t, oracleCfg, env.oracle.requests[0].OracleConfig)
		require.Equal(t, "1", env.oracle.requests[0].CorrelationKey)

		_, err = env.svc.RequestRandomness(ctx, roundId)
		require.ErrorIs(t, err, domain.ErrRoundNotOpen)
		require.Equal(t, 1, env.oracle.numOfRequests())

		info, err := env.svc.GetRound(ctx, roundId)
		require.NoError(t, err)
		require.Equal(t, domain.AwaitingRandomnessStatus, info.Status)
		require.Equal(t, requestId, info.RequestId)

		balance, err := env.svc.GetPooledBalance(ctx, operator)
		require.NoError(t, err)
		require.Equal(t, uint64(1000), balance)

		err = env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(14))
		require.NoError(t, err)

		info, err = env.svc.GetRound(ctx, roundId)
		require.NoError(t, err)
		require.Equal(t, domain.ResolvedStatus, info.Status)
		require.Zero(t, info.PooledFunds)
		require.Equal(t, buyerC, info.Winner)
		require.Equal(t, uint64(4), info.WinningIndex)
		require.Equal(t, uint64(900), info.Payout)
		require.Equal(t, uint64(100), info.Commission)

		winnerBalance, err := env.treasury.Balance(ctx, buyerC)
		require.NoError(t, err)
		require.Equal(t, uint64(900), winnerBalance)
		operatorBalance, err := env.treasury.Balance(ctx, operator)
		require.NoError(t, err)
		require.Equal(t, uint64(100), operatorBalance)

		balance, err = env.svc.GetPooledBalance(ctx, operator)
		require.NoError(t, err)
		require.Zero(t, balance)

		err = env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(14))
		require.ErrorIs(t, err, domain.ErrUnknownRequest)
		require.Equal(t, 2, env.treasury.numOfTransfers())

		resolved := env.repo.events.savedOfType(domain.EventTypeWinnerResolved)
		require.Len(t, resolved, 1)
	})

	t.Run("unknown_request", func(t *testing.T) {
		env := newTestEnv(t, false)

		err := env.svc.OnRandomnessReceived(ctx, "spoofed", big.NewInt(1))
		require.ErrorIs(t, err, domain.ErrUnknownRequest)
	})

	t.Run("sold_out_closes_early", func(t *testing.T) {
		env := newTestEnv(t, false)

		roundId, err := env.svc.OpenRound(ctx, operator, domain.RoundParams{
			EntryPrice: 10, MaxEntries: 2, Expiration: defaultParams.Expiration,
		})
		require.NoError(t, err)
		require.NoError(t, env.svc.BuyEntries(ctx, buyerB, roundId, 2, 20))

		requestId, err := env.svc.RequestRandomness(ctx, roundId)
		require.NoError(t, err)

		require.NoError(t, env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(3)))

		info, err := env.svc.GetRound(ctx, roundId)
		require.NoError(t, err)
		require.Equal(t, uint64(20), info.Payout)
		require.Zero(t, info.Commission)
		require.Equal(t, 1, env.treasury.numOfTransfers())
	})

	t.Run("oracle_failure", func(t *testing.T) {
		env := newTestEnv(t, false)
		roundId := openAndFill(t, env)
		env.scheduler.advance(601 * time.Second)

		env.oracle.failing = true
		_, err := env.svc.RequestRandomness(ctx, roundId)
		require.Error(t, err)

		info, err := env.svc.GetRound(ctx, roundId)
		require.NoError(t, err)
		require.Equal(t, domain.OpenStatus, info.Status)

		env.oracle.failing = false
		_, err = env.svc.RequestRandomness(ctx, roundId)
		require.NoError(t, err)
	})

	t.Run("transfer_failure", func(t *testing.T) {
		env := newTestEnv(t, false)
		roundId := openAndFill(t, env)
		env.scheduler.advance(601 * time.Second)

		requestId, err := env.svc.RequestRandomness(ctx, roundId)
		require.NoError(t, err)

		env.treasury.rejected[buyerC] = true
		err = env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(14))
		require.ErrorIs(t, err, domain.ErrTransferFailed)

		info, err := env.svc.GetRound(ctx, roundId)
		require.NoError(t, err)
		require.Equal(t, domain.AwaitingRandomnessStatus, info.Status)
		require.Equal(t, uint64(1000), info.PooledFunds)
		require.Zero(t, env.treasury.numOfTransfers())

		_, err = env.repo.RandomnessRequests().GetRequest(ctx, requestId)
		require.NoError(t, err)

		env.treasury.rejected[buyerC] = false
		require.NoError(t, env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(14)))
	})

	t.Run("persistence_failure_reverts_transfers", func(t *testing.T) {
		env := newTestEnv(t, false)
		roundId := openAndFill(t, env)
		env.scheduler.advance(601 * time.Second)

		requestId, err := env.svc.RequestRandomness(ctx, roundId)
		require.NoError(t, err)

		env.repo.rounds.failing = true
		err = env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(14))
		require.Error(t, err)
		env.repo.rounds.failing = false

		winnerBalance, err := env.treasury.Balance(ctx, buyerC)
		require.NoError(t, err)
		require.Zero(t, winnerBalance)

		_, err = env.repo.RandomnessRequests().GetRequest(ctx, requestId)
		require.NoError(t, err)

		require.NoError(t, env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(14)))
	})

	t.Run("redelivery_after_partial_resolution", func(t *testing.T) {
		env := newTestEnv(t, false)
		roundId := openAndFill(t, env)
		env.scheduler.advance(601 * time.Second)

		requestId, err := env.svc.RequestRandomness(ctx, roundId)
		require.NoError(t, err)

		// Funds leave custody but neither the round nor the compensation is
		// stored, as after a crash right after the transfer.
		env.repo.rounds.failing = true
		env.treasury.revertFailing = true
		err = env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(14))
		require.Error(t, err)
		env.repo.rounds.failing = false
		env.treasury.revertFailing = false

		winnerBalance, err := env.treasury.Balance(ctx, buyerC)
		require.NoError(t, err)
		require.Equal(t, uint64(900), winnerBalance)

		require.NoError(t, env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(14)))

		winnerBalance, err = env.treasury.Balance(ctx, buyerC)
		require.NoError(t, err)
		require.Equal(t, uint64(900), winnerBalance)
		operatorBalance, err := env.treasury.Balance(ctx, operator)
		require.NoError(t, err)
		require.Equal(t, uint64(100), operatorBalance)
		require.Equal(t, 2, env.treasury.numOfTransfers())

		info, err := env.svc.GetRound(ctx, roundId)
		require.NoError(t, err)
		require.Equal(t, domain.ResolvedStatus, info.Status)
	})

	t.Run("pooled_balance_during_resolution", func(t *testing.T) {
		env := newTestEnv(t, false)
		roundId := openAndFill(t, env)
		env.scheduler.advance(601 * time.Second)

		requestId, err := env.svc.RequestRandomness(ctx, roundId)
		require.NoError(t, err)

		balanceCh := make(chan uint64, 1)
		env.treasury.onTransfer = func() {
			go func() {
				balance, err := env.svc.GetPooledBalance(ctx, operator)
				if err != nil {
					t.Error(err)
				}
				balanceCh <- balance
			}()

			select {
			case balance := <-balanceCh:
				t.Errorf("pooled balance %d read while resolution in progress", balance)
			case <-time.After(100 * time.Millisecond):
			}
		}

		require.NoError(t, env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(14)))

		select {
		case balance := <-balanceCh:
			require.Zero(t, balance)
		case <-time.After(5 * time.Second):
			t.Fatal("pooled balance never returned")
		}
	})

	t.Run("no_entrants", func(t *testing.T) {
		env := newTestEnv(t, false)

		roundId, err := env.svc.OpenRound(ctx, operator, defaultParams)
		require.NoError(t, err)
		env.scheduler.advance(601 * time.Second)

		requestId, err := env.svc.RequestRandomness(ctx, roundId)
		require.NoError(t, err)

		err = env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(1))
		require.ErrorIs(t, err, domain.ErrNoEntrants)

		info, err := env.svc.GetRound(ctx, roundId)
		require.NoError(t, err)
		require.Equal(t, domain.AwaitingRandomnessStatus, info.Status)
		require.Zero(t, env.treasury.numOfTransfers())
	})

	t.Run("retry", func(t *testing.T) {
		env := newTestEnv(t, false)
		roundId := openAndFill(t, env)

		_, err := env.svc.RetryRandomness(ctx, operator, roundId)
		require.ErrorIs(t, err, domain.ErrRoundNotOpen)

		env.scheduler.advance(601 * time.Second)
		staleId, err := env.svc.RequestRandomness(ctx, roundId)
		require.NoError(t, err)

		_, err = env.svc.RetryRandomness(ctx, operator, roundId)
		require.ErrorIs(t, err, domain.ErrRequestAlreadyPending)

		env.scheduler.advance(time.Hour)
		requestId, err := env.svc.RetryRandomness(ctx, operator, roundId)
		require.NoError(t, err)
		require.NotEqual(t, staleId, requestId)

		err = env.svc.OnRandomnessReceived(ctx, staleId, big.NewInt(14))
		require.ErrorIs(t, err, domain.ErrUnknownRequest)

		require.NoError(t, env.svc.OnRandomnessReceived(ctx, requestId, big.NewInt(14)))

		_, err = env.svc.RetryRandomness(ctx, operator, roundId)
		require.ErrorIs(t, err, domain.ErrAlreadyResolved)
	})

	t.Run("oracle_fulfillment", func(t *testing.T) {
		env := newTestEnv(t, false)
		roundId := openAndFill(t, env)
		env.scheduler.advance(601 * time.Second)

		requestId, err := env.svc.RequestRandomness(ctx, roundId)
		require.NoError(t, err)

		err = env.oracle.handler(ctx, requestId, nil)
		require.ErrorIs(t, err, domain.ErrInvalidParameters)

		err = env.oracle.handler(ctx, requestId, []*big.Int{big.NewInt(3)})
		require.NoError(t, err)

		info, err := env.svc.GetRound(ctx, roundId)
		require.NoError(t, err)
		require.Equal(t, buyerB, info.Winner)
	})
}

func TestAutoDraw(t *testing.T) {
	ctx := context.Background()

	t.Run("at_expiration", func(t *testing.T) {
		env := newTestEnv(t, true)

		roundId, err := env.svc.OpenRound(ctx, operator, defaultParams)
		require.NoError(t, err)
		require.NoError(t, env.svc.BuyEntries(ctx, buyerB, roundId, 1, 100))
		require.Equal(t, 1, env.scheduler.pending())

		env.scheduler.advance(600 * time.Second)
		require.Equal(t, 1, env.oracle.numOfRequests())

		info, err := env.svc.GetRound(ctx, roundId)
		require.NoError(t, err)
		require.Equal(t, domain.AwaitingRandomnessStatus, info.Status)
	})

	t.Run("sold_out", func(t *testing.T) {
		env := newTestEnv(t, true)

		roundId, err := env.svc.OpenRound(ctx, operator, domain.RoundParams{
			EntryPrice: 10, MaxEntries: 2, Expiration: defaultParams.Expiration,
		})
		require.NoError(t, err)
		require.NoError(t, env.svc.BuyEntries(ctx, buyerB, roundId, 2, 20))

		require.Eventually(t, func() bool {
			return env.oracle.numOfRequests() == 1
		}, 2*time.Second, 10*time.Millisecond)

		// The deadline task finds the round already drawn.
		env.scheduler.advance(600 * time.Second)
		require.Equal(t, 1, env.oracle.numOfRequests())
	})
}

func TestEventsChannel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)

	ch := env.svc.GetEventsChannel(ctx)

	roundId, err := env.svc.OpenRound(ctx, operator, defaultParams)
	require.NoError(t, err)
	require.NoError(t, env.svc.BuyEntries(ctx, buyerB, roundId, 1, 100))

	event := <-ch
	require.Equal(t, domain.EventTypeRoundOpened, event.GetType())
	require.Equal(t, roundId, event.GetRoundId())

	event = <-ch
	require.Equal(t, domain.EventTypeEntriesPurchased, event.GetType())
	purchased, ok := event.(domain.EntriesPurchased)
	require.True(t, ok)
	require.Equal(t, buyerB, purchased.Buyer)
	require.Equal(t, uint64(1), purchased.Count)
}
