package handlers

import (
	"github.com/ark-network/raffle/internal/core/application"
	"github.com/ark-network/raffle/internal/core/domain"
)

type openRoundRequest struct {
	EntryPrice     uint64 `json:"entryPrice"`
	MaxEntries     uint64 `json:"maxEntries"`
	CommissionRate uint64 `json:"commissionRate"`
	Expiration     int64  `json:"expiration"`
}

type buyEntriesRequest struct {
	Count   uint64 `json:"count"`
	Payment uint64 `json:"payment"`
}

// Random words are decimal or 0x-prefixed hex strings since they exceed the
// precision of a JSON number.
type fulfillRequest struct {
	RequestId   string   `json:"requestId"`
	RandomWords []string `json:"randomWords"`
}

type round struct {
	Id               uint64   `json:"id"`
	EntryPrice       uint64   `json:"entryPrice"`
	MaxEntries       uint64   `json:"maxEntries"`
	CommissionRate   uint64   `json:"commissionRate"`
	Expiration       int64    `json:"expiration"`
	Entries          []string `json:"entries"`
	Status           string   `json:"status"`
	PooledFunds      uint64   `json:"pooledFunds"`
	RemainingEntries uint64   `json:"remainingEntries"`
	OpenedAt         int64    `json:"openedAt"`
	ClosedAt         int64    `json:"closedAt,omitempty"`
	RequestId        string   `json:"requestId,omitempty"`
	Winner           string   `json:"winner,omitempty"`
	WinningIndex     uint64   `json:"winningIndex,omitempty"`
	Payout           uint64   `json:"payout,omitempty"`
	Commission       uint64   `json:"commission,omitempty"`
	ResolvedAt       int64    `json:"resolvedAt,omitempty"`
}

func newRound(info application.RoundInfo) round {
	entries := info.Entries
	if entries == nil {
		entries = make([]string, 0)
	}
	return round{
		Id:               info.Id,
		EntryPrice:       info.EntryPrice,
		MaxEntries:       info.MaxEntries,
		CommissionRate:   info.CommissionRate,
		Expiration:       info.Expiration,
		Entries:          entries,
		Status:           info.Status.String(),
		PooledFunds:      info.PooledFunds,
		RemainingEntries: info.RemainingEntries,
		OpenedAt:         info.OpenedAt,
		ClosedAt:         info.ClosedAt,
		RequestId:        info.RequestId,
		Winner:           info.Winner,
		WinningIndex:     info.WinningIndex,
		Payout:           info.Payout,
		Commission:       info.Commission,
		ResolvedAt:       info.ResolvedAt,
	}
}

type roundList []application.RoundInfo

func (l roundList) toJSON() []round {
	list := make([]round, 0, len(l))
	for _, info := range l {
		list = append(list, newRound(info))
	}
	return list
}

type event struct {
	Type    string       `json:"type"`
	RoundId uint64       `json:"roundId"`
	Data    domain.Event `json:"data"`
}

type roundHistory struct {
	Events     []event `json:"events"`
	Replayed   round   `json:"replayed"`
	Consistent bool    `json:"consistent"`
}

func newRoundHistory(history application.RoundHistory) roundHistory {
	events := make([]event, 0, len(history.Events))
	for _, e := range history.Events {
		events = append(events, newEvent(e))
	}
	return roundHistory{
		Events:     events,
		Replayed:   newRound(history.Replayed),
		Consistent: history.Consistent,
	}
}

func newEvent(e domain.Event) event {
	return event{
		Type:    e.GetType().String(),
		RoundId: e.GetRoundId(),
		Data:    e,
	}
}
