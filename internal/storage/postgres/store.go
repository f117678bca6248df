package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"dataunion/internal/ledger"
	"dataunion/internal/model"
)

// Store provides Postgres persistence for the ledger.
type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Update runs fn in a database transaction.
func (s *Store) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

func (s *Store) Union(ctx context.Context, addr common.Address) (model.Union, bool, error) {
	return loadUnion(ctx, s.pool, addr, false)
}

func (s *Store) Unions(ctx context.Context) ([]model.Union, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+unionColumns+` FROM unions ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Union
	for rows.Next() {
		u, err := scanUnion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) Member(ctx context.Context, id model.MemberID) (model.Member, bool, error) {
	return loadMember(ctx, s.pool, id)
}

func (s *Store) Members(ctx context.Context, union common.Address) ([]model.Member, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT union_address, address, status, weight::text, join_date
		FROM members WHERE union_address = $1 ORDER BY address
	`, union.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) Buckets(ctx context.Context, union common.Address, g model.Granularity, from, to uint64) ([]model.StatsBucket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bucketColumns+`
		FROM stats_buckets
		WHERE union_address = $1 AND granularity = $2 AND start_date >= $3 AND start_date < $4
		ORDER BY start_date
	`, union.Hex(), string(g), clampInt64(from), clampInt64(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StatsBucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) RevenueEvents(ctx context.Context, union common.Address) ([]model.RevenueEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT block_number, tx_index, log_index, amount_wei::text, date
		FROM revenue_events
		WHERE union_address = $1
		ORDER BY block_number, tx_index, log_index
	`, union.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RevenueEvent
	for rows.Next() {
		var (
			block, txIndex, logIndex, date int64
			amount                         string
		)
		if err := rows.Scan(&block, &txIndex, &logIndex, &amount, &date); err != nil {
			return nil, err
		}
		value, err := parseWei(amount)
		if err != nil {
			return nil, err
		}
		out = append(out, model.RevenueEvent{
			Union:     union,
			Key:       model.EventKey{BlockNumber: uint64(block), TxIndex: uint64(txIndex), LogIndex: uint64(logIndex)},
			AmountWei: value,
			Date:      uint64(date),
		})
	}
	return out, rows.Err()
}

// LoadCheckpoint returns the ingestion checkpoint stored under name.
func (s *Store) LoadCheckpoint(ctx context.Context, name string) (model.Checkpoint, bool, error) {
	if name == "" {
		return model.Checkpoint{}, false, fmt.Errorf("state name required")
	}
	var (
		lastBlock, block, txIndex, logIndex int64
		updatedAt                           time.Time
	)
	row := s.pool.QueryRow(ctx, `
		SELECT last_processed_block, block_number, tx_index, log_index, updated_at
		FROM indexer_state WHERE name=$1
	`, name)
	if err := row.Scan(&lastBlock, &block, &txIndex, &logIndex, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Checkpoint{}, false, nil
		}
		return model.Checkpoint{}, false, err
	}
	return model.Checkpoint{
		LastProcessedBlock: uint64(lastBlock),
		LastEventKey:       model.EventKey{BlockNumber: uint64(block), TxIndex: uint64(txIndex), LogIndex: uint64(logIndex)},
		UpdatedAt:          updatedAt.UTC().Format(time.RFC3339Nano),
	}, true, nil
}

// SaveCheckpoint upserts the ingestion checkpoint for name.
func (s *Store) SaveCheckpoint(ctx context.Context, name string, cp model.Checkpoint) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, block_number, tx_index, log_index, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block,
			block_number = EXCLUDED.block_number,
			tx_index = EXCLUDED.tx_index,
			log_index = EXCLUDED.log_index,
			updated_at = now()
	`,
		name,
		int64(cp.LastProcessedBlock),
		int64(cp.LastEventKey.BlockNumber),
		int64(cp.LastEventKey.TxIndex),
		int64(cp.LastEventKey.LogIndex),
	)
	return err
}

// pgTx implements ledger.Tx. Union rows are locked for the rest of the transaction once read.
type pgTx struct {
	q querier
}

func (t *pgTx) Union(ctx context.Context, addr common.Address) (model.Union, bool, error) {
	return loadUnion(ctx, t.q, addr, true)
}

func (t *pgTx) PutUnion(ctx context.Context, u model.Union) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO unions (
			address, owner, primary_address, member_count, total_weight, revenue_wei,
			created_at, last_block, last_tx_index, last_log_index, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, now())
		ON CONFLICT (address)
		DO UPDATE SET
			owner = EXCLUDED.owner,
			member_count = EXCLUDED.member_count,
			total_weight = EXCLUDED.total_weight,
			revenue_wei = EXCLUDED.revenue_wei,
			last_block = EXCLUDED.last_block,
			last_tx_index = EXCLUDED.last_tx_index,
			last_log_index = EXCLUDED.last_log_index,
			updated_at = now()
	`,
		u.Address.Hex(),
		u.Owner.Hex(),
		u.Primary.Hex(),
		int64(u.MemberCount),
		u.TotalWeight.String(),
		weiString(u.RevenueWei),
		int64(u.CreatedAt),
		int64(u.LastEventKey.BlockNumber),
		int64(u.LastEventKey.TxIndex),
		int64(u.LastEventKey.LogIndex),
	)
	return err
}

func (t *pgTx) Member(ctx context.Context, id model.MemberID) (model.Member, bool, error) {
	return loadMember(ctx, t.q, id)
}

func (t *pgTx) PutMember(ctx context.Context, m model.Member) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO members (union_address, address, status, weight, join_date, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, now())
		ON CONFLICT (union_address, address)
		DO UPDATE SET
			status = EXCLUDED.status,
			weight = EXCLUDED.weight,
			updated_at = now()
	`, m.Union.Hex(), m.Address.Hex(), string(m.Status), m.Weight.String(), int64(m.JoinDate))
	return err
}

func (t *pgTx) Bucket(ctx context.Context, id model.BucketID) (model.StatsBucket, bool, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+bucketColumns+`
		FROM stats_buckets
		WHERE union_address = $1 AND granularity = $2 AND start_date = $3
	`, id.Union.Hex(), string(id.Granularity), int64(id.StartDate))
	b, err := scanBucket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.StatsBucket{}, false, nil
		}
		return model.StatsBucket{}, false, err
	}
	return b, true, nil
}

// PutBucket never rewrites the AtStart columns of an existing row.
func (t *pgTx) PutBucket(ctx context.Context, b model.StatsBucket) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO stats_buckets (
			union_address, granularity, start_date, end_date,
			member_count_at_start, revenue_at_start_wei, total_weight_at_start,
			member_count_change, revenue_change_wei, total_weight_change
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9::numeric, $10::numeric)
		ON CONFLICT (union_address, granularity, start_date)
		DO UPDATE SET
			member_count_change = EXCLUDED.member_count_change,
			revenue_change_wei = EXCLUDED.revenue_change_wei,
			total_weight_change = EXCLUDED.total_weight_change
	`,
		b.Union.Hex(),
		string(b.Granularity),
		int64(b.StartDate),
		int64(b.EndDate),
		int64(b.MemberCountAtStart),
		weiString(b.RevenueAtStartWei),
		b.TotalWeightAtStart.String(),
		b.MemberCountChange,
		weiString(b.RevenueChangeWei),
		b.TotalWeightChange.String(),
	)
	return err
}

func (t *pgTx) HasRevenueEvent(ctx context.Context, id model.RevenueEventID) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM revenue_events
			WHERE union_address = $1 AND block_number = $2 AND tx_index = $3 AND log_index = $4
		)
	`, id.Union.Hex(), int64(id.Key.BlockNumber), int64(id.Key.TxIndex), int64(id.Key.LogIndex)).Scan(&exists)
	return exists, err
}

func (t *pgTx) AppendRevenueEvent(ctx context.Context, ev model.RevenueEvent) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO revenue_events (union_address, block_number, tx_index, log_index, amount_wei, date)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
	`,
		ev.Union.Hex(),
		int64(ev.Key.BlockNumber),
		int64(ev.Key.TxIndex),
		int64(ev.Key.LogIndex),
		weiString(ev.AmountWei),
		int64(ev.Date),
	)
	return err
}

func (t *pgTx) HasAppliedEvent(ctx context.Context, id model.EventID) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM applied_events
			WHERE union_address = $1 AND block_number = $2 AND tx_index = $3 AND log_index = $4
		)
	`, id.Union.Hex(), int64(id.Key.BlockNumber), int64(id.Key.TxIndex), int64(id.Key.LogIndex)).Scan(&exists)
	return exists, err
}

func (t *pgTx) MarkApplied(ctx context.Context, id model.EventID, eventType model.EventType) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO applied_events (union_address, block_number, tx_index, log_index, event_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, id.Union.Hex(), int64(id.Key.BlockNumber), int64(id.Key.TxIndex), int64(id.Key.LogIndex), string(eventType))
	return err
}

const unionColumns = `address, owner, primary_address, member_count, total_weight::text, revenue_wei::text,
	created_at, last_block, last_tx_index, last_log_index`

const bucketColumns = `union_address, granularity, start_date, end_date,
	member_count_at_start, revenue_at_start_wei::text, total_weight_at_start::text,
	member_count_change, revenue_change_wei::text, total_weight_change::text`

func loadUnion(ctx context.Context, q querier, addr common.Address, forUpdate bool) (model.Union, bool, error) {
	query := `SELECT ` + unionColumns + ` FROM unions WHERE address = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	u, err := scanUnion(q.QueryRow(ctx, query, addr.Hex()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Union{}, false, nil
		}
		return model.Union{}, false, err
	}
	return u, true, nil
}

func loadMember(ctx context.Context, q querier, id model.MemberID) (model.Member, bool, error) {
	row := q.QueryRow(ctx, `
		SELECT union_address, address, status, weight::text, join_date
		FROM members WHERE union_address = $1 AND address = $2
	`, id.Union.Hex(), id.Member.Hex())
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Member{}, false, nil
		}
		return model.Member{}, false, err
	}
	return m, true, nil
}

func scanUnion(row pgx.Row) (model.Union, error) {
	var (
		address, owner, primary              string
		memberCount, createdAt               int64
		weight, revenue                      string
		lastBlock, lastTxIndex, lastLogIndex int64
	)
	if err := row.Scan(&address, &owner, &primary, &memberCount, &weight, &revenue,
		&createdAt, &lastBlock, &lastTxIndex, &lastLogIndex); err != nil {
		return model.Union{}, err
	}

	totalWeight, err := decimal.NewFromString(weight)
	if err != nil {
		return model.Union{}, fmt.Errorf("parse total weight: %w", err)
	}
	revenueWei, err := parseWei(revenue)
	if err != nil {
		return model.Union{}, err
	}
	return model.Union{
		Address:     common.HexToAddress(address),
		Owner:       common.HexToAddress(owner),
		Primary:     common.HexToAddress(primary),
		MemberCount: uint64(memberCount),
		TotalWeight: totalWeight,
		RevenueWei:  revenueWei,
		CreatedAt:   uint64(createdAt),
		LastEventKey: model.EventKey{
			BlockNumber: uint64(lastBlock),
			TxIndex:     uint64(lastTxIndex),
			LogIndex:    uint64(lastLogIndex),
		},
	}, nil
}

func scanMember(row pgx.Row) (model.Member, error) {
	var (
		union, address, status, weight string
		joinDate                       int64
	)
	if err := row.Scan(&union, &address, &status, &weight, &joinDate); err != nil {
		return model.Member{}, err
	}
	w, err := decimal.NewFromString(weight)
	if err != nil {
		return model.Member{}, fmt.Errorf("parse member weight: %w", err)
	}
	return model.Member{
		Address:  common.HexToAddress(address),
		Union:    common.HexToAddress(union),
		Status:   model.MemberStatus(status),
		Weight:   w,
		JoinDate: uint64(joinDate),
	}, nil
}

func scanBucket(row pgx.Row) (model.StatsBucket, error) {
	var (
		union, granularity                    string
		start, end, countAtStart, countChange int64
		revenueAtStart, weightAtStart         string
		revenueChange, weightChange           string
	)
	if err := row.Scan(&union, &granularity, &start, &end,
		&countAtStart, &revenueAtStart, &weightAtStart,
		&countChange, &revenueChange, &weightChange); err != nil {
		return model.StatsBucket{}, err
	}

	g, err := model.ParseGranularity(granularity)
	if err != nil {
		return model.StatsBucket{}, err
	}
	b := model.StatsBucket{
		Union:              common.HexToAddress(union),
		Granularity:        g,
		StartDate:          uint64(start),
		EndDate:            uint64(end),
		MemberCountAtStart: uint64(countAtStart),
		MemberCountChange:  countChange,
	}
	if b.RevenueAtStartWei, err = parseWei(revenueAtStart); err != nil {
		return model.StatsBucket{}, err
	}
	if b.RevenueChangeWei, err = parseWei(revenueChange); err != nil {
		return model.StatsBucket{}, err
	}
	if b.TotalWeightAtStart, err = decimal.NewFromString(weightAtStart); err != nil {
		return model.StatsBucket{}, fmt.Errorf("parse weight at start: %w", err)
	}
	if b.TotalWeightChange, err = decimal.NewFromString(weightChange); err != nil {
		return model.StatsBucket{}, fmt.Errorf("parse weight change: %w", err)
	}
	return b, nil
}

func parseWei(input string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(input, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount %q", input)
	}
	return v, nil
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func clampInt64(v uint64) int64 {
	if v > uint64(1<<63-1) {
		return 1<<63 - 1
	}
	return int64(v)
}
