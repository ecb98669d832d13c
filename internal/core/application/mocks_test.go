package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
)

type MockRepoManager struct {
	rounds   *MockRoundRepo
	requests *MockRequestRepo
	events   *MockEventRepo
}

func newMockRepoManager() *MockRepoManager {
	return &MockRepoManager{
		rounds:   &MockRoundRepo{data: make(map[uint64]domain.Round)},
		requests: &MockRequestRepo{data: make(map[string]domain.RandomnessRequest)},
		events:   &MockEventRepo{},
	}
}

func (m *MockRepoManager) Events() domain.EventRepository { return m.events }
func (m *MockRepoManager) Rounds() domain.RoundRepository { return m.rounds }
func (m *MockRepoManager) RandomnessRequests() domain.RandomnessRequestRepository {
	return m.requests
}
func (m *MockRepoManager) Close() {}

type MockRoundRepo struct {
	lock     sync.Mutex
	data     map[uint64]domain.Round
	reserved uint64
	failing  bool
}

func (m *MockRoundRepo) ReserveRoundId(_ context.Context, id uint64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if id > m.reserved {
		m.reserved = id
	}
	return nil
}

func (m *MockRoundRepo) AddOrUpdateRound(_ context.Context, round domain.Round) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.failing {
		return fmt.Errorf("db unavailable")
	}
	round.Entries = append([]string{}, round.Entries...)
	m.data[round.Id] = round
	return nil
}

func (m *MockRoundRepo) GetRoundWithId(_ context.Context, id uint64) (*domain.Round, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	round, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrRoundNotFound, id)
	}
	round.Entries = append([]string{}, round.Entries...)
	return &round, nil
}

func (m *MockRoundRepo) GetRounds(
	_ context.Context, status ...domain.RoundStatus,
) ([]domain.Round, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	rounds := make([]domain.Round, 0, len(m.data))
	for _, round := range m.data {
		if len(status) > 0 && !containsStatus(status, round.Status) {
			continue
		}
		rounds = append(rounds, round)
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Id < rounds[j].Id })
	return rounds, nil
}

func (m *MockRoundRepo) GetLastRoundId(_ context.Context) (uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	last := m.reserved
	for id := range m.data {
		if id > last {
			last = id
		}
	}
	return last, nil
}

func (m *MockRoundRepo) Close() {}

type MockRequestRepo struct {
	lock sync.Mutex
	data map[string]domain.RandomnessRequest
}

func (m *MockRequestRepo) AddRequest(_ context.Context, request domain.RandomnessRequest) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data[request.Id] = request
	return nil
}

func (m *MockRequestRepo) GetRequest(
	_ context.Context, id string,
) (*domain.RandomnessRequest, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	request, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRequest, id)
	}
	return &request, nil
}

func (m *MockRequestRepo) GetRequestForRound(
	_ context.Context, roundId uint64,
) (*domain.RandomnessRequest, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, request := range m.data {
		if request.RoundId == roundId {
			return &request, nil
		}
	}
	return nil, fmt.Errorf("%w: round %d", domain.ErrUnknownRequest, roundId)
}

func (m *MockRequestRepo) ConsumeRequest(_ context.Context, id string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.data[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRequest, id)
	}
	delete(m.data, id)
	return nil
}

func (m *MockRequestRepo) Close() {}

type MockEventRepo struct {
	lock     sync.Mutex
	saved    []domain.Event
	byId     map[string][]domain.Event
	handlers []func([]domain.Event)
}

func (m *MockEventRepo) Save(_ context.Context, _, id string, events []domain.Event) error {
	m.lock.Lock()
	m.saved = append(m.saved, events...)
	if m.byId == nil {
		m.byId = make(map[string][]domain.Event)
	}
	m.byId[id] = append(m.byId[id], events...)
	handlers := append([]func([]domain.Event){}, m.handlers...)
	m.lock.Unlock()

	for _, handler := range handlers {
		handler(events)
	}
	return nil
}

func (m *MockEventRepo) Load(_ context.Context, _, id string) ([]domain.Event, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]domain.Event{}, m.byId[id]...), nil
}

func (m *MockEventRepo) RegisterEventsHandler(_ string, handler func([]domain.Event)) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.handlers = append(m.handlers, handler)
}

func (m *MockEventRepo) ClearRegisteredHandlers(_ ...string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.handlers = nil
}

func (m *MockEventRepo) Close() {}

func (m *MockEventRepo) savedOfType(eventType domain.EventType) []domain.Event {
	m.lock.Lock()
	defer m.lock.Unlock()
	events := make([]domain.Event, 0)
	for _, event := range m.saved {
		if event.GetType() == eventType {
			events = append(events, event)
		}
	}
	return events
}

// MockScheduler is a manual clock. Tasks run only when advance passes them.
type MockScheduler struct {
	lock  sync.Mutex
	now   time.Time
	tasks []scheduledTask
}

type scheduledTask struct {
	at   int64
	task func()
}

func newMockScheduler(now time.Time) *MockScheduler {
	return &MockScheduler{now: now}
}

func (m *MockScheduler) Start() {}
func (m *MockScheduler) Stop()  {}

func (m *MockScheduler) Now() time.Time {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.now
}

func (m *MockScheduler) ScheduleTaskOnce(at int64, task func()) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.tasks = append(m.tasks, scheduledTask{at, task})
	return nil
}

func (m *MockScheduler) advance(d time.Duration) {
	m.lock.Lock()
	m.now = m.now.Add(d)
	due := make([]scheduledTask, 0)
	left := make([]scheduledTask, 0)
	for _, t := range m.tasks {
		if t.at <= m.now.Unix() {
			due = append(due, t)
			continue
		}
		left = append(left, t)
	}
	m.tasks = left
	m.lock.Unlock()

	for _, t := range due {
		t.task()
	}
}

func (m *MockScheduler) pending() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.tasks)
}

type MockOracle struct {
	lock     sync.Mutex
	count    int
	requests []ports.RandomnessRequest
	handler  ports.FulfillmentHandler
	failing  bool
}

func (m *MockOracle) RequestRandomness(
	_ context.Context, req ports.RandomnessRequest,
) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.failing {
		return "", fmt.Errorf("oracle unreachable")
	}
	m.count++
	m.requests = append(m.requests, req)
	return fmt.Sprintf("req-%d", m.count), nil
}

func (m *MockOracle) RegisterFulfillmentHandler(handler ports.FulfillmentHandler) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.handler = handler
}

func (m *MockOracle) Close() {}

func (m *MockOracle) numOfRequests() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.requests)
}

type MockTreasury struct {
	lock          sync.Mutex
	balances      map[string]uint64
	transfers     []ports.Transfer
	disbursed     map[string]ports.Transfer
	rejected      map[string]bool
	revertFailing bool
	onTransfer    func()
}

func newMockTreasury() *MockTreasury {
	return &MockTreasury{
		balances:  make(map[string]uint64),
		disbursed: make(map[string]ports.Transfer),
		rejected:  make(map[string]bool),
	}
}

func (m *MockTreasury) Transfer(_ context.Context, transfers ...ports.Transfer) error {
	m.lock.Lock()
	for _, t := range transfers {
		if m.rejected[t.To] {
			m.lock.Unlock()
			return fmt.Errorf("%w: %s rejected funds", domain.ErrTransferFailed, t.To)
		}
	}
	for _, t := range transfers {
		key := disbursementKey(t)
		if _, ok := m.disbursed[key]; ok {
			continue
		}
		m.disbursed[key] = t
		m.balances[t.To] += t.Amount
		m.transfers = append(m.transfers, t)
	}
	hook := m.onTransfer
	m.lock.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (m *MockTreasury) Revert(_ context.Context, transfers ...ports.Transfer) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.revertFailing {
		return fmt.Errorf("treasury unavailable")
	}
	for _, t := range transfers {
		delete(m.disbursed, disbursementKey(t))
		m.balances[t.To] -= t.Amount
	}
	return nil
}

func (m *MockTreasury) Balance(_ context.Context, account string) (uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.balances[account], nil
}

func (m *MockTreasury) Close() {}

func (m *MockTreasury) numOfTransfers() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.transfers)
}

func disbursementKey(t ports.Transfer) string {
	return fmt.Sprintf("%d:%s", t.RoundId, t.Kind)
}

func containsStatus(list []domain.RoundStatus, status domain.RoundStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}
