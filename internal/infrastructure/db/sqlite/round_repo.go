package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ark-network/raffle/internal/core/domain"
)

const (
	upsertRound = `
INSERT INTO round (
    id, entry_price, max_entries, commission_rate, expiration, status,
    pooled_funds, opened_at, closed_at, request_id, requested_at, winner,
    winning_index, payout, commission, resolved_at, version
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = EXCLUDED.status,
    pooled_funds = EXCLUDED.pooled_funds,
    closed_at = EXCLUDED.closed_at,
    request_id = EXCLUDED.request_id,
    requested_at = EXCLUDED.requested_at,
    winner = EXCLUDED.winner,
    winning_index = EXCLUDED.winning_index,
    payout = EXCLUDED.payout,
    commission = EXCLUDED.commission,
    resolved_at = EXCLUDED.resolved_at,
    version = EXCLUDED.version;
`
	countEntries = `SELECT COUNT(*) FROM entry WHERE round_id = ?;`
	insertEntry  = `INSERT INTO entry (round_id, position, buyer) VALUES (?, ?, ?);`
	selectRound  = `
SELECT id, entry_price, max_entries, commission_rate, expiration, status,
    pooled_funds, opened_at, closed_at, request_id, requested_at, winner,
    winning_index, payout, commission, resolved_at, version
FROM round`
	selectEntries = `SELECT buyer FROM entry WHERE round_id = ? ORDER BY position ASC;`
	selectLastId  = `
SELECT MAX(
    COALESCE((SELECT MAX(id) FROM round), 0),
    COALESCE((SELECT last_id FROM round_counter WHERE id = 1), 0)
);`
	reserveRoundId = `
INSERT INTO round_counter (id, last_id) VALUES (1, ?)
ON CONFLICT(id) DO UPDATE SET last_id = MAX(last_id, EXCLUDED.last_id);`
)

type roundRepository struct {
	db *sql.DB
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open round repository: invalid config, expected db at 0")
	}

	return &roundRepository{db}, nil
}

func (r *roundRepository) Close() {
	_ = r.db.Close()
}

// AddOrUpdateRound upserts the round row and appends the entries not stored
// yet. Entries are append-only so existing positions are never rewritten.
func (r *roundRepository) AddOrUpdateRound(ctx context.Context, round domain.Round) error {
	txBody := func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(
			ctx, upsertRound,
			toInt(round.Id), toInt(round.EntryPrice), toInt(round.MaxEntries),
			toInt(round.CommissionRate), round.Expiration, int64(round.Status),
			toInt(round.PooledFunds), round.OpenedAt, round.ClosedAt,
			round.RequestId, round.RequestedAt, round.Winner,
			toInt(round.WinningIndex), toInt(round.Payout), toInt(round.Commission),
			round.ResolvedAt, int64(round.Version),
		); err != nil {
			return fmt.Errorf("failed to upsert round: %w", err)
		}

		var stored int
		if err := tx.QueryRowContext(
			ctx, countEntries, toInt(round.Id),
		).Scan(&stored); err != nil {
			return fmt.Errorf("failed to count entries: %w", err)
		}

		for pos := stored; pos < len(round.Entries); pos++ {
			if _, err := tx.ExecContext(
				ctx, insertEntry, toInt(round.Id), pos, round.Entries[pos],
			); err != nil {
				return fmt.Errorf("failed to insert entry: %w", err)
			}
		}
		return nil
	}

	return execTx(ctx, r.db, txBody)
}

func (r *roundRepository) GetRoundWithId(ctx context.Context, id uint64) (*domain.Round, error) {
	rounds, err := r.queryRounds(ctx, selectRound+" WHERE id = ?;", toInt(id))
	if err != nil {
		return nil, err
	}
	if len(rounds) <= 0 {
		return nil, fmt.Errorf("%w: round with id %d", domain.ErrRoundNotFound, id)
	}
	return &rounds[0], nil
}

func (r *roundRepository) GetRounds(
	ctx context.Context, status ...domain.RoundStatus,
) ([]domain.Round, error) {
	query := selectRound
	args := make([]interface{}, 0, len(status))
	if len(status) > 0 {
		placeholders := make([]string, 0, len(status))
		for _, s := range status {
			placeholders = append(placeholders, "?")
			args = append(args, int64(s))
		}
		query += fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholders, ", "))
	}
	query += " ORDER BY id ASC;"

	return r.queryRounds(ctx, query, args...)
}

func (r *roundRepository) ReserveRoundId(ctx context.Context, id uint64) error {
	if _, err := r.db.ExecContext(ctx, reserveRoundId, toInt(id)); err != nil {
		return fmt.Errorf("failed to reserve round id %d: %w", id, err)
	}
	return nil
}

func (r *roundRepository) GetLastRoundId(ctx context.Context) (uint64, error) {
	var lastId int64
	if err := r.db.QueryRowContext(ctx, selectLastId).Scan(&lastId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get last round id: %w", err)
	}
	return toUint(lastId), nil
}

func (r *roundRepository) queryRounds(
	ctx context.Context, query string, args ...interface{},
) ([]domain.Round, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}

	rounds := make([]domain.Round, 0)
	for rows.Next() {
		var (
			id, price, maxEntries, rate, pooled, index, payout, commission int64
			status, version                                                int64
			round                                                          domain.Round
		)
		if err := rows.Scan(
			&id, &price, &maxEntries, &rate, &round.Expiration, &status,
			&pooled, &round.OpenedAt, &round.ClosedAt, &round.RequestId,
			&round.RequestedAt, &round.Winner, &index, &payout, &commission,
			&round.ResolvedAt, &version,
		); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		round.Id = toUint(id)
		round.EntryPrice = toUint(price)
		round.MaxEntries = toUint(maxEntries)
		round.CommissionRate = toUint(rate)
		round.Status = domain.RoundStatus(status)
		round.PooledFunds = toUint(pooled)
		round.WinningIndex = toUint(index)
		round.Payout = toUint(payout)
		round.Commission = toUint(commission)
		round.Version = uint(version)
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	// The single connection must be released before loading entries.
	_ = rows.Close()

	for i := range rounds {
		entries, err := r.getEntries(ctx, rounds[i].Id)
		if err != nil {
			return nil, err
		}
		rounds[i].Entries = entries
	}
	return rounds, nil
}

func (r *roundRepository) getEntries(ctx context.Context, roundId uint64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, selectEntries, toInt(roundId))
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]string, 0)
	for rows.Next() {
		var buyer string
		if err := rows.Scan(&buyer); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, buyer)
	}
	return entries, rows.Err()
}
