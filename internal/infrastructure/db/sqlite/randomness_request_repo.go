package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ark-network/raffle/internal/core/domain"
)

const (
	upsertRequest = `
INSERT INTO randomness_request (id, round_id, created_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    round_id = EXCLUDED.round_id,
    created_at = EXCLUDED.created_at;
`
	selectRequest         = `SELECT id, round_id, created_at FROM randomness_request WHERE id = ?;`
	selectRequestForRound = `
SELECT id, round_id, created_at FROM randomness_request
WHERE round_id = ? ORDER BY created_at DESC LIMIT 1;
`
	deleteRequest = `DELETE FROM randomness_request WHERE id = ?;`
)

type randomnessRequestRepository struct {
	db *sql.DB
}

func NewRandomnessRequestRepository(
	config ...interface{},
) (domain.RandomnessRequestRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf(
			"cannot open randomness request repository: invalid config, expected db at 0",
		)
	}

	return &randomnessRequestRepository{db}, nil
}

func (r *randomnessRequestRepository) Close() {
	_ = r.db.Close()
}

func (r *randomnessRequestRepository) AddRequest(
	ctx context.Context, request domain.RandomnessRequest,
) error {
	if _, err := r.db.ExecContext(
		ctx, upsertRequest, request.Id, toInt(request.RoundId), request.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert request: %w", err)
	}
	return nil
}

func (r *randomnessRequestRepository) GetRequest(
	ctx context.Context, id string,
) (*domain.RandomnessRequest, error) {
	request, err := r.scanRequest(r.db.QueryRowContext(ctx, selectRequest, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRequest, id)
		}
		return nil, fmt.Errorf("failed to get request %s: %w", id, err)
	}
	return request, nil
}

func (r *randomnessRequestRepository) GetRequestForRound(
	ctx context.Context, roundId uint64,
) (*domain.RandomnessRequest, error) {
	request, err := r.scanRequest(
		r.db.QueryRowContext(ctx, selectRequestForRound, toInt(roundId)),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no request for round %d", domain.ErrUnknownRequest, roundId)
		}
		return nil, fmt.Errorf("failed to get request for round %d: %w", roundId, err)
	}
	return request, nil
}

func (r *randomnessRequestRepository) ConsumeRequest(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deleteRequest, id)
	if err != nil {
		return fmt.Errorf("failed to delete request %s: %w", id, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRequest, id)
	}
	return nil
}

func (r *randomnessRequestRepository) scanRequest(row *sql.Row) (*domain.RandomnessRequest, error) {
	var (
		request domain.RandomnessRequest
		roundId int64
	)
	if err := row.Scan(&request.Id, &roundId, &request.CreatedAt); err != nil {
		return nil, err
	}
	request.RoundId = toUint(roundId)
	return &request, nil
}
