package domain

const RoundTopic = "round"

type EventType int

const (
	EventTypeUndefined EventType = iota

	EventTypeRoundOpened
	EventTypeEntriesPurchased
	EventTypeRoundClosed
	EventTypeRandomnessRequested
	EventTypeWinnerResolved
)

func (t EventType) String() string {
	switch t {
	case EventTypeRoundOpened:
		return "round_opened"
	case EventTypeEntriesPurchased:
		return "entries_purchased"
	case EventTypeRoundClosed:
		return "round_closed"
	case EventTypeRandomnessRequested:
		return "randomness_requested"
	case EventTypeWinnerResolved:
		return "winner_resolved"
	default:
		return "undefined"
	}
}

type Event interface {
	GetTopic() string
	GetType() EventType
	GetRoundId() uint64
}

func (e RoundOpened) GetTopic() string         { return RoundTopic }
func (e EntriesPurchased) GetTopic() string    { return RoundTopic }
func (e RoundClosed) GetTopic() string         { return RoundTopic }
func (e RandomnessRequested) GetTopic() string { return RoundTopic }
func (e WinnerResolved) GetTopic() string      { return RoundTopic }

func (e RoundOpened) GetType() EventType         { return EventTypeRoundOpened }
func (e EntriesPurchased) GetType() EventType    { return EventTypeEntriesPurchased }
func (e RoundClosed) GetType() EventType         { return EventTypeRoundClosed }
func (e RandomnessRequested) GetType() EventType { return EventTypeRandomnessRequested }
func (e WinnerResolved) GetType() EventType      { return EventTypeWinnerResolved }

func (e RoundOpened) GetRoundId() uint64         { return e.Id }
func (e EntriesPurchased) GetRoundId() uint64    { return e.Id }
func (e RoundClosed) GetRoundId() uint64         { return e.Id }
func (e RandomnessRequested) GetRoundId() uint64 { return e.Id }
func (e WinnerResolved) GetRoundId() uint64      { return e.Id }

type RoundOpened struct {
	Id             uint64 `json:"roundId"`
	EntryPrice     uint64 `json:"entryPrice"`
	MaxEntries     uint64 `json:"maxEntries"`
	CommissionRate uint64 `json:"commissionRate"`
	Expiration     int64  `json:"expiration"`
	Timestamp      int64  `json:"timestamp"`
}

type EntriesPurchased struct {
	Id        uint64 `json:"roundId"`
	Buyer     string `json:"buyer"`
	Count     uint64 `json:"count"`
	Amount    uint64 `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

type RoundClosed struct {
	Id        uint64 `json:"roundId"`
	Timestamp int64  `json:"timestamp"`
}

type RandomnessRequested struct {
	Id        uint64 `json:"roundId"`
	RequestId string `json:"requestId"`
	Timestamp int64  `json:"timestamp"`
}

type WinnerResolved struct {
	Id           uint64 `json:"roundId"`
	Winner       string `json:"winner"`
	WinningIndex uint64 `json:"winningIndex"`
	Payout       uint64 `json:"payout"`
	Commission   uint64 `json:"commission"`
	Timestamp    int64  `json:"timestamp"`
}
