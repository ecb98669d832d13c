package domain

import (
	"fmt"
	"math/big"
	"math/bits"
	"time"
)

const (
	UndefinedStatus RoundStatus = iota
	OpenStatus
	AwaitingRandomnessStatus
	ResolvedStatus
)

const maxCommissionRate = 100

type RoundStatus int

func (s RoundStatus) String() string {
	switch s {
	case OpenStatus:
		return "OPEN"
	case AwaitingRandomnessStatus:
		return "AWAITING_RANDOMNESS"
	case ResolvedStatus:
		return "RESOLVED"
	default:
		return "UNDEFINED"
	}
}

func ParseRoundStatus(s string) (RoundStatus, error) {
	for _, status := range []RoundStatus{
		OpenStatus, AwaitingRandomnessStatus, ResolvedStatus,
	} {
		if status.String() == s {
			return status, nil
		}
	}
	return UndefinedStatus, fmt.Errorf("unknown round status %s", s)
}

type RoundParams struct {
	EntryPrice     uint64
	MaxEntries     uint64
	CommissionRate uint64
	Expiration     int64
}

type Round struct {
	Id             uint64
	EntryPrice     uint64
	MaxEntries     uint64
	CommissionRate uint64
	Expiration     int64
	Entries        []string
	Status         RoundStatus
	PooledFunds    uint64
	OpenedAt       int64
	ClosedAt       int64
	RequestId      string
	RequestedAt    int64
	Winner         string
	WinningIndex   uint64
	Payout         uint64
	Commission     uint64
	ResolvedAt     int64
	Version        uint
	changes        []Event
}

func NewRound(id uint64) *Round {
	return &Round{
		Id:      id,
		Entries: make([]string, 0),
		changes: make([]Event, 0),
	}
}

func NewRoundFromEvents(events []Event) *Round {
	r := &Round{}

	for _, event := range events {
		r.On(event)
	}

	r.changes = append([]Event{}, events...)

	return r
}

func (r *Round) Events() []Event {
	return r.changes
}

// On applies event to the round. Every applied event bumps Version, so a round
// rebuilt from its full log has the same Version as the stored one.
func (r *Round) On(event Event) {
	switch e := event.(type) {
	case RoundOpened:
		r.Id = e.Id
		r.Status = OpenStatus
		r.EntryPrice = e.EntryPrice
		r.MaxEntries = e.MaxEntries
		r.CommissionRate = e.CommissionRate
		r.Expiration = e.Expiration
		r.OpenedAt = e.Timestamp
		if r.Entries == nil {
			r.Entries = make([]string, 0)
		}
	case EntriesPurchased:
		for i := uint64(0); i < e.Count; i++ {
			r.Entries = append(r.Entries, e.Buyer)
		}
		r.PooledFunds += e.Amount
	case RoundClosed:
		r.Status = AwaitingRandomnessStatus
		r.ClosedAt = e.Timestamp
	case RandomnessRequested:
		r.RequestId = e.RequestId
		r.RequestedAt = e.Timestamp
	case WinnerResolved:
		r.Status = ResolvedStatus
		r.Winner = e.Winner
		r.WinningIndex = e.WinningIndex
		r.Payout = e.Payout
		r.Commission = e.Commission
		r.PooledFunds = 0
		r.ResolvedAt = e.Timestamp
	}

	r.Version++
}

func (r *Round) Open(params RoundParams, now time.Time) ([]Event, error) {
	if r.Status != UndefinedStatus {
		return nil, fmt.Errorf("%w: round %d already opened", ErrInvalidParameters, r.Id)
	}
	if r.Id == 0 {
		return nil, fmt.Errorf("%w: missing round id", ErrInvalidParameters)
	}
	if params.EntryPrice == 0 {
		return nil, fmt.Errorf("%w: entry price must be positive", ErrInvalidParameters)
	}
	if params.MaxEntries == 0 {
		return nil, fmt.Errorf("%w: max entries must be positive", ErrInvalidParameters)
	}
	if hi, _ := bits.Mul64(params.MaxEntries, params.EntryPrice); hi != 0 {
		return nil, fmt.Errorf("%w: pool of a sold out round would overflow", ErrInvalidParameters)
	}
	if params.CommissionRate > maxCommissionRate {
		return nil, fmt.Errorf(
			"%w: commission rate must be in range [0, %d]", ErrInvalidParameters, maxCommissionRate,
		)
	}
	if params.Expiration <= now.Unix() {
		return nil, fmt.Errorf("%w: expiration must be in the future", ErrInvalidParameters)
	}

	event := RoundOpened{
		Id:             r.Id,
		EntryPrice:     params.EntryPrice,
		MaxEntries:     params.MaxEntries,
		CommissionRate: params.CommissionRate,
		Expiration:     params.Expiration,
		Timestamp:      now.Unix(),
	}
	r.raise(event)

	return []Event{event}, nil
}

// BuyEntries appends count entries for buyer. The deadline is checked against
// now, never against a caller supplied time.
func (r *Round) BuyEntries(buyer string, count, payment uint64, now time.Time) ([]Event, error) {
	if r.Status != OpenStatus {
		return nil, fmt.Errorf("%w: round %d is %s", ErrRoundNotOpen, r.Id, r.Status)
	}
	if now.Unix() >= r.Expiration {
		return nil, fmt.Errorf("%w: round %d expired at %d", ErrRoundExpired, r.Id, r.Expiration)
	}
	if len(buyer) <= 0 {
		return nil, fmt.Errorf("%w: missing buyer identity", ErrUnauthorized)
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: must buy at least one entry", ErrInvalidEntryCount)
	}
	if count > r.RemainingEntries() {
		return nil, fmt.Errorf(
			"%w: requested %d entries, %d left", ErrSoldOut, count, r.RemainingEntries(),
		)
	}
	// count never exceeds MaxEntries and Open bounds MaxEntries*EntryPrice.
	if count*r.EntryPrice != payment {
		return nil, fmt.Errorf(
			"%w: got %d, expected %d x %d", ErrIncorrectPayment, payment, count, r.EntryPrice,
		)
	}

	event := EntriesPurchased{
		Id:        r.Id,
		Buyer:     buyer,
		Count:     count,
		Amount:    payment,
		Timestamp: now.Unix(),
	}
	r.raise(event)

	return []Event{event}, nil
}

// Close moves an open round to AwaitingRandomness once its deadline passed or
// it sold out. A second call always fails with ErrRoundNotOpen.
func (r *Round) Close(now time.Time) ([]Event, error) {
	if r.Status != OpenStatus {
		return nil, fmt.Errorf("%w: round %d is %s", ErrRoundNotOpen, r.Id, r.Status)
	}
	if now.Unix() < r.Expiration && !r.IsSoldOut() {
		return nil, fmt.Errorf(
			"%w: round %d expires at %d with %d entries left",
			ErrRoundNotEligible, r.Id, r.Expiration, r.RemainingEntries(),
		)
	}

	event := RoundClosed{
		Id:        r.Id,
		Timestamp: now.Unix(),
	}
	r.raise(event)

	return []Event{event}, nil
}

func (r *Round) RequestRandomness(requestId string, now time.Time) ([]Event, error) {
	if r.Status != AwaitingRandomnessStatus {
		return nil, fmt.Errorf("%w: round %d is %s", ErrRoundNotOpen, r.Id, r.Status)
	}
	if len(requestId) <= 0 {
		return nil, fmt.Errorf("%w: missing request id", ErrUnknownRequest)
	}

	event := RandomnessRequested{
		Id:        r.Id,
		RequestId: requestId,
		Timestamp: now.Unix(),
	}
	r.raise(event)

	return []Event{event}, nil
}

// Resolve picks the winner with randomValue mod len(Entries) and splits the
// pool between winner and operator.
func (r *Round) Resolve(randomValue *big.Int, now time.Time) ([]Event, error) {
	if r.Status != AwaitingRandomnessStatus {
		return nil, fmt.Errorf("%w: round %d is %s", ErrAlreadyResolved, r.Id, r.Status)
	}
	if randomValue == nil {
		return nil, fmt.Errorf("%w: missing random value", ErrInvalidParameters)
	}
	if len(r.Entries) <= 0 {
		return nil, fmt.Errorf("%w: round %d", ErrNoEntrants, r.Id)
	}

	numOfEntries := new(big.Int).SetUint64(uint64(len(r.Entries)))
	index := new(big.Int).Mod(randomValue, numOfEntries).Uint64()
	payout, commission := SplitPool(r.PooledFunds, r.CommissionRate)

	event := WinnerResolved{
		Id:           r.Id,
		Winner:       r.Entries[index],
		WinningIndex: index,
		Payout:       payout,
		Commission:   commission,
		Timestamp:    now.Unix(),
	}
	r.raise(event)

	return []Event{event}, nil
}

func (r *Round) RemainingEntries() uint64 {
	return r.MaxEntries - uint64(len(r.Entries))
}

func (r *Round) IsSoldOut() bool {
	return uint64(len(r.Entries)) >= r.MaxEntries
}

func (r *Round) IsOpen() bool {
	return r.Status == OpenStatus
}

func (r *Round) IsResolved() bool {
	return r.Status == ResolvedStatus
}

// IsDisbursed reports whether the pooled funds already left custody.
func (r *Round) IsDisbursed() bool {
	return r.Status == ResolvedStatus
}

// SplitPool returns payout and commission for a pool, truncating the
// commission. The 128 bit intermediate never overflows since rate <= 100.
func SplitPool(pooledFunds, commissionRate uint64) (payout, commission uint64) {
	if commissionRate > maxCommissionRate {
		commissionRate = maxCommissionRate
	}
	hi, lo := bits.Mul64(pooledFunds, commissionRate)
	commission, _ = bits.Div64(hi, lo, maxCommissionRate)
	return pooledFunds - commission, commission
}

func (r *Round) raise(event Event) {
	if r.changes == nil {
		r.changes = make([]Event, 0)
	}
	r.changes = append(r.changes, event)
	r.On(event)
}
