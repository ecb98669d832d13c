package localoracle

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	maxAttempts = 3
	minDelay    = time.Second
)

var maxWord = new(big.Int).Lsh(big.NewInt(1), 256)

// service generates randomness in-process and delivers it after the number
// of confirmations requested, simulating the latency of an on-chain oracle.
type service struct {
	scheduler     ports.SchedulerService
	blockInterval time.Duration

	lock    *sync.RWMutex
	handler ports.FulfillmentHandler
	closed  bool
}

func NewService(
	scheduler ports.SchedulerService, blockInterval time.Duration,
) (ports.RandomnessOracle, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("missing scheduler")
	}
	if blockInterval <= 0 {
		return nil, fmt.Errorf("block interval must be positive")
	}
	return &service{
		scheduler:     scheduler,
		blockInterval: blockInterval,
		lock:          &sync.RWMutex{},
	}, nil
}

func (s *service) RequestRandomness(
	_ context.Context, req ports.RandomnessRequest,
) (string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return "", fmt.Errorf("oracle is closed")
	}

	numOfWords := req.NumWords
	if numOfWords == 0 {
		numOfWords = 1
	}
	words := make([]*big.Int, 0, numOfWords)
	for i := uint32(0); i < numOfWords; i++ {
		word, err := rand.Int(rand.Reader, maxWord)
		if err != nil {
			return "", fmt.Errorf("failed to generate random word: %s", err)
		}
		words = append(words, word)
	}

	requestId := uuid.New().String()
	delay := s.delay(req.RequestConfirmations)
	if err := s.schedule(requestId, words, delay, 1); err != nil {
		return "", err
	}

	log.WithFields(log.Fields{
		"request":     requestId,
		"correlation": req.CorrelationKey,
		"delay":       delay,
	}).Debug("accepted randomness request")

	return requestId, nil
}

func (s *service) RegisterFulfillmentHandler(handler ports.FulfillmentHandler) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.handler = handler
}

func (s *service) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
}

func (s *service) delay(confirmations uint16) time.Duration {
	delay := time.Duration(confirmations) * s.blockInterval
	if delay < minDelay {
		return minDelay
	}
	return delay
}

func (s *service) schedule(
	requestId string, words []*big.Int, delay time.Duration, attempt int,
) error {
	at := s.scheduler.Now().Add(delay).Unix()
	return s.scheduler.ScheduleTaskOnce(at, func() {
		s.fulfill(requestId, words, delay, attempt)
	})
}

func (s *service) fulfill(
	requestId string, words []*big.Int, delay time.Duration, attempt int,
) {
	s.lock.RLock()
	handler, closed := s.handler, s.closed
	s.lock.RUnlock()

	if closed {
		return
	}
	if handler == nil {
		log.Warnf("no handler registered, dropping fulfillment of request %s", requestId)
		return
	}

	err := handler(context.Background(), requestId, words)
	if err == nil {
		return
	}

	// Nothing changes by delivering again to a resolved round.
	if errors.Is(err, domain.ErrAlreadyResolved) || attempt >= maxAttempts {
		log.WithError(err).Warnf(
			"failed to fulfill request %s after %d attempts", requestId, attempt,
		)
		return
	}

	log.WithError(err).Debugf("retrying fulfillment of request %s", requestId)
	if err := s.schedule(requestId, words, delay, attempt+1); err != nil {
		log.WithError(err).Warnf("failed to reschedule fulfillment of request %s", requestId)
	}
}
