package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const eventsChannelSize = 128

type service struct {
	operator          string
	oracleConfig      ports.OracleConfig
	randomnessTimeout int64
	autoDraw          bool

	repoManager ports.RepoManager
	oracle      ports.RandomnessOracle
	treasury    ports.Treasury
	scheduler   ports.SchedulerService

	roundLocks  *roundLocks
	idLock      *sync.Mutex
	lastRoundId uint64

	eventsCh chan domain.Event
}

func NewService(
	config Config,
	repoManager ports.RepoManager, oracle ports.RandomnessOracle,
	treasury ports.Treasury, scheduler ports.SchedulerService,
) (Service, error) {
	if len(config.Operator) <= 0 {
		return nil, fmt.Errorf("missing operator identity")
	}
	if config.RandomnessTimeout < time.Second {
		return nil, fmt.Errorf("randomness timeout must be at least 1s")
	}

	lastRoundId, err := repoManager.Rounds().GetLastRoundId(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch last round id: %w", err)
	}

	svc := &service{
		operator:          config.Operator,
		oracleConfig:      config.OracleConfig,
		randomnessTimeout: int64(config.RandomnessTimeout.Seconds()),
		autoDraw:          config.AutoDraw,
		repoManager:       repoManager,
		oracle:            oracle,
		treasury:          treasury,
		scheduler:         scheduler,
		roundLocks:        newRoundLocks(),
		idLock:            &sync.Mutex{},
		lastRoundId:       lastRoundId,
		eventsCh:          make(chan domain.Event, eventsChannelSize),
	}

	repoManager.Events().RegisterEventsHandler(
		domain.RoundTopic, func(events []domain.Event) {
			for _, event := range events {
				svc.propagateEvent(event)
			}
		},
	)
	oracle.RegisterFulfillmentHandler(svc.onFulfillment)

	return svc, nil
}

func (s *service) Start() error {
	s.scheduler.Start()

	if !s.autoDraw {
		return nil
	}

	ctx := context.Background()
	rounds, err := s.repoManager.Rounds().GetRounds(ctx, domain.OpenStatus)
	if err != nil {
		return fmt.Errorf("failed to fetch open rounds: %w", err)
	}
	for _, round := range rounds {
		s.scheduleDraw(round.Id, round.Expiration)
	}
	log.Debugf("rescheduled draw for %d open rounds", len(rounds))
	return nil
}

func (s *service) Stop() {
	s.scheduler.Stop()
	log.Debug("stopped scheduler")

	s.oracle.Close()
	log.Debug("closed oracle")

	s.treasury.Close()
	log.Debug("closed treasury")

	s.repoManager.Events().ClearRegisteredHandlers()
	s.repoManager.Close()
	log.Debug("closed connection to db")
}

func (s *service) GetOperator() string {
	return s.operator
}

func (s *service) GetEventsChannel(_ context.Context) <-chan domain.Event {
	return s.eventsCh
}

func (s *service) isOperator(caller string) bool {
	return caller == s.operator
}

func (s *service) getRound(ctx context.Context, roundId uint64) (*domain.Round, error) {
	round, err := s.repoManager.Rounds().GetRoundWithId(ctx, roundId)
	if err != nil {
		return nil, err
	}
	return round, nil
}

func (s *service) saveRound(
	ctx context.Context, round *domain.Round, events []domain.Event,
) error {
	if err := s.repoManager.Rounds().AddOrUpdateRound(ctx, *round); err != nil {
		return fmt.Errorf("failed to persist round %d: %w", round.Id, err)
	}
	s.saveEvents(ctx, round.Id, events)
	return nil
}

// saveEvents appends to the notification log. Failures here never undo the
// state change that produced the events.
func (s *service) saveEvents(ctx context.Context, roundId uint64, events []domain.Event) {
	if len(events) <= 0 {
		return
	}
	if err := s.repoManager.Events().Save(
		ctx, domain.RoundTopic, formatRoundId(roundId), events,
	); err != nil {
		log.WithError(err).Warnf("failed to store events for round %d", roundId)
	}
}

func (s *service) propagateEvent(event domain.Event) {
	select {
	case s.eventsCh <- event:
	default:
		log.Warnf(
			"events channel full, dropping %s event for round %d",
			event.GetType(), event.GetRoundId(),
		)
	}
}
