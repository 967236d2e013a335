package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// PoolStore mirrors refreshed pools, one row per (chain, pool). Bets are kept
// as a JSONB array on the row.
type PoolStore struct {
	pool *pgxpool.Pool
}

func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

const upsertPool = `
	INSERT INTO pools (
		chain_id, pool_id, question, url, parameter, category, poll_type,
		total_amount, total_bets, final_score, start_time, end_time, ended,
		bets, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8::numeric, $9, $10, $11, $12, $13,
		$14, NOW()
	)
	ON CONFLICT (chain_id, pool_id) DO UPDATE SET
		question     = EXCLUDED.question,
		url          = EXCLUDED.url,
		parameter    = EXCLUDED.parameter,
		category     = EXCLUDED.category,
		poll_type    = EXCLUDED.poll_type,
		total_amount = EXCLUDED.total_amount,
		total_bets   = EXCLUDED.total_bets,
		final_score  = EXCLUDED.final_score,
		start_time   = EXCLUDED.start_time,
		end_time     = EXCLUDED.end_time,
		ended        = EXCLUDED.ended,
		bets         = EXCLUDED.bets,
		updated_at   = NOW()`

const selectPool = `
	SELECT pool_id, question, url, parameter, category, poll_type,
	       total_amount::text, total_bets, final_score, start_time, end_time,
	       ended, bets
	FROM pools`

// UpsertBatch writes pools in one round trip.
func (s *PoolStore) UpsertBatch(ctx context.Context, chainID int64, pools []domain.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pools {
		bets := p.Bets
		if bets == nil {
			bets = []domain.Bet{}
		}
		raw, err := json.Marshal(bets)
		if err != nil {
			return fmt.Errorf("postgres: marshal bets of pool %d: %w", p.ID, err)
		}
		batch.Queue(upsertPool,
			chainID, int64(p.ID), p.Question, p.URL, p.Parameter, p.Category, int16(p.PollType),
			p.TotalAmount.String(), int64(p.TotalBets), p.FinalScore, p.StartTime, p.EndTime, p.Ended,
			raw,
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: upsert %d pools: %w", len(pools), err)
	}
	return nil
}

// GetByID returns one mirrored pool or domain.ErrNotFound.
func (s *PoolStore) GetByID(ctx context.Context, chainID int64, id uint64) (domain.Pool, error) {
	row := s.pool.QueryRow(ctx, selectPool+` WHERE chain_id = $1 AND pool_id = $2`, chainID, int64(id))
	p, err := scanPool(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Pool{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Pool{}, fmt.Errorf("postgres: get pool %d: %w", id, err)
	}
	return p, nil
}

// List returns mirrored pools of chainID ordered by id.
func (s *PoolStore) List(ctx context.Context, chainID int64, opts domain.ListOpts) ([]domain.Pool, error) {
	q := newListQuery(selectPool+` WHERE chain_id = $1`, chainID)
	if opts.Since != nil {
		q.where("updated_at >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		q.where("updated_at <= $%d", *opts.Until)
	}
	q.page("pool_id", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pools: %w", err)
	}
	defer rows.Close()

	var out []domain.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pool: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list pools: %w", err)
	}
	return out, nil
}

func scanPool(row pgx.Row) (domain.Pool, error) {
	var (
		p             domain.Pool
		id, totalBets int64
		pollType      int16
		totalAmount   string
		rawBets       []byte
	)
	if err := row.Scan(&id, &p.Question, &p.URL, &p.Parameter, &p.Category, &pollType,
		&totalAmount, &totalBets, &p.FinalScore, &p.StartTime, &p.EndTime,
		&p.Ended, &rawBets); err != nil {
		return domain.Pool{}, err
	}
	amount, err := decimal.NewFromString(totalAmount)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("total_amount %q: %w", totalAmount, err)
	}
	p.ID = uint64(id)
	p.PollType = domain.PollType(pollType)
	p.TotalAmount = amount
	p.TotalBets = uint64(totalBets)
	if err := json.Unmarshal(rawBets, &p.Bets); err != nil {
		return domain.Pool{}, fmt.Errorf("bets: %w", err)
	}
	return p, nil
}

var _ domain.PoolStore = (*PoolStore)(nil)
