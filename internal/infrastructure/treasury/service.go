package treasury

import (
	"context"
	"fmt"
	"math/bits"
	"path/filepath"
	"strings"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const treasuryStoreDir = "treasury"

type account struct {
	Account string
	Balance uint64
}

type transferRecord struct {
	Id        string
	To        string
	Amount    uint64
	RoundId   uint64
	Kind      string
	Memo      string
	Reverted  bool
	CreatedAt int64
}

// service is a custodial ledger. Every batch of transfers is applied in a
// single badger transaction.
type service struct {
	store    *badgerhold.Store
	rejected map[string]struct{}
	now      func() int64
}

func NewService(
	baseDir string, rejectedRecipients []string, logger badger.Logger, now func() int64,
) (ports.Treasury, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, treasuryStoreDir)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = logger
	if len(dir) <= 0 {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	store, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open treasury store: %s", err)
	}

	rejected := make(map[string]struct{})
	for _, recipient := range rejectedRecipients {
		if r := strings.TrimSpace(recipient); len(r) > 0 {
			rejected[r] = struct{}{}
		}
	}

	return &service{store, rejected, now}, nil
}

func (s *service) Transfer(ctx context.Context, transfers ...ports.Transfer) error {
	for _, t := range transfers {
		if len(t.To) <= 0 {
			return fmt.Errorf("%w: missing recipient", domain.ErrTransferFailed)
		}
		if _, ok := s.rejected[t.To]; ok {
			return fmt.Errorf("%w: recipient %s cannot accept funds", domain.ErrTransferFailed, t.To)
		}
	}

	skipped := make([]bool, len(transfers))
	if err := s.store.Badger().Update(func(tx *badger.Txn) error {
		for i, t := range transfers {
			key, keyed := transferKey(t)
			if keyed {
				prev, err := s.liveDisbursement(tx, key)
				if err != nil {
					return err
				}
				if prev != nil {
					if prev.To != t.To || prev.Amount != t.Amount {
						return fmt.Errorf(
							"round %d %s already disbursed to %s", t.RoundId, t.Kind, prev.To,
						)
					}
					skipped[i] = true
					continue
				}
			} else {
				key = uuid.New().String()
			}

			if err := s.credit(tx, t.To, t.Amount); err != nil {
				return err
			}
			if err := s.store.TxUpsert(tx, key, transferRecord{
				Id:        key,
				To:        t.To,
				Amount:    t.Amount,
				RoundId:   t.RoundId,
				Kind:      t.Kind,
				Memo:      t.Memo,
				CreatedAt: s.now(),
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrTransferFailed, err)
	}

	for i, t := range transfers {
		entry := log.WithFields(log.Fields{
			"to":     t.To,
			"amount": t.Amount,
			"round":  t.RoundId,
		})
		if skipped[i] {
			entry.Infof("already transferred: %s", t.Memo)
			continue
		}
		entry.Debugf("transferred: %s", t.Memo)
	}
	return nil
}

// Revert undoes a batch previously applied with Transfer.
func (s *service) Revert(ctx context.Context, transfers ...ports.Transfer) error {
	return s.store.Badger().Update(func(tx *badger.Txn) error {
		for _, t := range transfers {
			key, keyed := transferKey(t)
			if keyed {
				prev, err := s.liveDisbursement(tx, key)
				if err != nil {
					return err
				}
				if prev == nil {
					return fmt.Errorf("no transfer to revert for round %d %s", t.RoundId, t.Kind)
				}
			} else {
				key = uuid.New().String()
			}

			if err := s.debit(tx, t.To, t.Amount); err != nil {
				return err
			}
			if err := s.store.TxUpsert(tx, key, transferRecord{
				Id:        key,
				To:        t.To,
				Amount:    t.Amount,
				RoundId:   t.RoundId,
				Kind:      t.Kind,
				Memo:      t.Memo,
				Reverted:  true,
				CreatedAt: s.now(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) Balance(_ context.Context, accountId string) (uint64, error) {
	var acc account
	if err := s.store.Get(accountId, &acc); err != nil {
		if err == badgerhold.ErrNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get balance of %s: %s", accountId, err)
	}
	return acc.Balance, nil
}

func (s *service) Close() {
	s.store.Close()
}

func (s *service) credit(tx *badger.Txn, accountId string, amount uint64) error {
	acc, err := s.getAccount(tx, accountId)
	if err != nil {
		return err
	}
	balance, carry := bits.Add64(acc.Balance, amount, 0)
	if carry != 0 {
		return fmt.Errorf("balance of %s would overflow", accountId)
	}
	acc.Balance = balance
	return s.store.TxUpsert(tx, accountId, *acc)
}

func (s *service) debit(tx *badger.Txn, accountId string, amount uint64) error {
	acc, err := s.getAccount(tx, accountId)
	if err != nil {
		return err
	}
	if acc.Balance < amount {
		return fmt.Errorf(
			"insufficient balance for %s: got %d, need %d", accountId, acc.Balance, amount,
		)
	}
	acc.Balance -= amount
	return s.store.TxUpsert(tx, accountId, *acc)
}

func (s *service) getAccount(tx *badger.Txn, accountId string) (*account, error) {
	acc := &account{Account: accountId}
	if err := s.store.TxGet(tx, accountId, acc); err != nil {
		if err == badgerhold.ErrNotFound {
			return acc, nil
		}
		return nil, err
	}
	return acc, nil
}

// liveDisbursement returns the applied and not reverted transfer stored at key.
func (s *service) liveDisbursement(tx *badger.Txn, key string) (*transferRecord, error) {
	var record transferRecord
	if err := s.store.TxGet(tx, key, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if record.Reverted {
		return nil, nil
	}
	return &record, nil
}

// transferKey identifies the disbursement of a round. Transfers without a
// round or kind are never deduplicated.
func transferKey(t ports.Transfer) (string, bool) {
	if t.RoundId == 0 || len(t.Kind) <= 0 {
		return "", false
	}
	return fmt.Sprintf("round:%d:%s", t.RoundId, t.Kind), true
}
