package ports

import "context"

const (
	PayoutTransfer     = "payout"
	CommissionTransfer = "commission"
)

type Transfer struct {
	To      string
	Amount  uint64
	RoundId uint64
	// Kind together with RoundId identifies a disbursement. A treasury applies
	// at most one live transfer per round and kind.
	Kind string
	Memo string
}

// Treasury moves funds out of custody. A batch is applied entirely or not at
// all. Repeating a disbursement already applied with the same recipient and
// amount is a no-op.
type Treasury interface {
	Transfer(ctx context.Context, transfers ...Transfer) error
	Revert(ctx context.Context, transfers ...Transfer) error
	Balance(ctx context.Context, account string) (uint64, error)
	Close()
}
