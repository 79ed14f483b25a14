package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammcore/internal/amm"
	"ammcore/internal/model"
	"ammcore/internal/storage"
)

// Store provides Postgres persistence for exchange state, the operation journal and pool stats.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables the store uses. It is safe to run repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) PutMarket(ctx context.Context, market amm.Market) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO markets (authority, owner, fee_num, fee_denom, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, now(), now())
		ON CONFLICT (authority) DO UPDATE SET
			owner = EXCLUDED.owner,
			fee_num = EXCLUDED.fee_num,
			fee_denom = EXCLUDED.fee_denom,
			updated_at = now()
	`,
		market.Authority.Hex(),
		market.Owner.Hex(),
		formatUint(market.TradingFee.Num),
		formatUint(market.TradingFee.Denom),
	)
	return err
}

func (s *Store) Market(ctx context.Context, authority common.Address) (amm.Market, error) {
	var owner, feeNum, feeDenom string
	row := s.pool.QueryRow(ctx, `
		SELECT owner, fee_num::text, fee_denom::text FROM markets WHERE authority=$1
	`, authority.Hex())
	if err := row.Scan(&owner, &feeNum, &feeDenom); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return amm.Market{}, fmt.Errorf("market %s: %w", authority.Hex(), storage.ErrNotFound)
		}
		return amm.Market{}, err
	}

	market := amm.Market{Authority: authority, Owner: common.HexToAddress(owner)}
	var err error
	if market.TradingFee.Num, err = parseUint(feeNum); err != nil {
		return amm.Market{}, err
	}
	if market.TradingFee.Denom, err = parseUint(feeDenom); err != nil {
		return amm.Market{}, err
	}
	return market, nil
}

func (s *Store) PutPool(ctx context.Context, pool amm.Pool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (
			id, authority, reserve_a, reserve_b, mint_a, mint_b, pool_mint, fee_reserve,
			tip_num, tip_denom, shares_outstanding, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11::numeric, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			shares_outstanding = EXCLUDED.shares_outstanding,
			updated_at = now()
	`,
		pool.ID.Hex(),
		pool.Authority.Hex(),
		pool.ReserveA.Hex(),
		pool.ReserveB.Hex(),
		pool.MintA.Hex(),
		pool.MintB.Hex(),
		pool.PoolMint.Hex(),
		pool.FeeReserve.Hex(),
		formatUint(pool.ProtocolTip.Num),
		formatUint(pool.ProtocolTip.Denom),
		formatUint(pool.SharesOutstanding),
	)
	return err
}

const poolColumns = `
	id, authority, reserve_a, reserve_b, mint_a, mint_b, pool_mint, fee_reserve,
	tip_num::text, tip_denom::text, shares_outstanding::text`

func (s *Store) Pool(ctx context.Context, id common.Address) (amm.Pool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id=$1`, id.Hex())
	pool, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return amm.Pool{}, fmt.Errorf("pool %s: %w", id.Hex(), storage.ErrNotFound)
		}
		return amm.Pool{}, err
	}
	return pool, nil
}

func (s *Store) Pools(ctx context.Context) ([]amm.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []amm.Pool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}

func scanPool(row pgx.Row) (amm.Pool, error) {
	var (
		id, authority, reserveA, reserveB, mintA, mintB, poolMint, feeReserve string
		tipNum, tipDenom, shares                                              string
	)
	if err := row.Scan(&id, &authority, &reserveA, &reserveB, &mintA, &mintB, &poolMint, &feeReserve, &tipNum, &tipDenom, &shares); err != nil {
		return amm.Pool{}, err
	}

	pool := amm.Pool{
		ID:         common.HexToAddress(id),
		Authority:  common.HexToAddress(authority),
		ReserveA:   common.HexToAddress(reserveA),
		ReserveB:   common.HexToAddress(reserveB),
		MintA:      common.HexToAddress(mintA),
		MintB:      common.HexToAddress(mintB),
		PoolMint:   common.HexToAddress(poolMint),
		FeeReserve: common.HexToAddress(feeReserve),
	}
	var err error
	if pool.ProtocolTip.Num, err = parseUint(tipNum); err != nil {
		return amm.Pool{}, err
	}
	if pool.ProtocolTip.Denom, err = parseUint(tipDenom); err != nil {
		return amm.Pool{}, err
	}
	if pool.SharesOutstanding, err = parseUint(shares); err != nil {
		return amm.Pool{}, err
	}
	return pool, nil
}

// PutOperations inserts journal records. Records already present are left untouched.
func (s *Store) PutOperations(ctx context.Context, records []model.OperationRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal operation record: %w", err)
		}
		batch.Queue(`
			INSERT INTO operations (seq, op, authority, pool, caller, record, ts, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, to_timestamp($7), now())
			ON CONFLICT (seq) DO NOTHING
		`,
			int64(record.Seq),
			record.Op,
			record.Authority.Hex(),
			record.Pool.Hex(),
			record.Caller.Hex(),
			payload,
			int64(record.Timestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LastSeq returns the highest journaled sequence number.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM operations`).Scan(&seq); err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

// Operations streams journal records newer than afterTs, in sequence order.
func (s *Store) Operations(ctx context.Context, afterTs uint64, fn func(model.OperationRecord) error) error {
	rows, err := s.pool.Query(ctx, `SELECT record FROM operations WHERE ts > to_timestamp($1) ORDER BY seq`, int64(afterTs))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return err
		}
		var record model.OperationRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("decode operation record: %w", err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return rows.Err()
}

// UpsertPoolStats inserts or updates window stats.
func (s *Store) UpsertPoolStats(ctx context.Context, stats []model.PoolStats) error {
	if len(stats) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, st := range stats {
		batch.Queue(`
			INSERT INTO pool_window_stats (
				pool, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, deposit_count, withdraw_count,
				volume_in, volume_out, retained_fee, deposited_a, deposited_b, withdrawn_a, withdrawn_b,
				shares_minted, shares_burned, tip_shares,
				reserve_a, reserve_b, shares_outstanding, fee_rate, apr, last_seq, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9::numeric,$10::numeric,$11::numeric,$12::numeric,$13::numeric,$14::numeric,
				$15::numeric,$16::numeric,$17::numeric,$18::numeric,$19::numeric,$20::numeric,$21::numeric,$22::numeric,$23,now(),now())
			ON CONFLICT (pool, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				deposit_count = EXCLUDED.deposit_count,
				withdraw_count = EXCLUDED.withdraw_count,
				volume_in = EXCLUDED.volume_in,
				volume_out = EXCLUDED.volume_out,
				retained_fee = EXCLUDED.retained_fee,
				deposited_a = EXCLUDED.deposited_a,
				deposited_b = EXCLUDED.deposited_b,
				withdrawn_a = EXCLUDED.withdrawn_a,
				withdrawn_b = EXCLUDED.withdrawn_b,
				shares_minted = EXCLUDED.shares_minted,
				shares_burned = EXCLUDED.shares_burned,
				tip_shares = EXCLUDED.tip_shares,
				reserve_a = EXCLUDED.reserve_a,
				reserve_b = EXCLUDED.reserve_b,
				shares_outstanding = EXCLUDED.shares_outstanding,
				fee_rate = EXCLUDED.fee_rate,
				apr = EXCLUDED.apr,
				last_seq = EXCLUDED.last_seq,
				updated_at = now()
		`,
			st.Pool.Hex(),
			st.WindowSizeSecs,
			st.WindowStart,
			st.WindowEnd,
			int64(st.SwapCount),
			int64(st.DepositCount),
			int64(st.WithdrawCount),
			st.VolumeIn,
			st.VolumeOut,
			st.RetainedFee,
			st.DepositedA,
			st.DepositedB,
			st.WithdrawnA,
			st.WithdrawnB,
			st.SharesMinted,
			st.SharesBurned,
			st.TipShares,
			formatUint(st.ClosingReserves.A),
			formatUint(st.ClosingReserves.B),
			formatUint(st.ClosingReserves.Shares),
			st.FeeRate,
			st.APR,
			int64(st.LastSeq),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range stats {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadProgress returns last_processed_ts for a name.
func (s *Store) LoadProgress(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("progress name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM progress WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveProgress upserts last_processed_ts for a name.
func (s *Store) SaveProgress(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("progress name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO progress (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseUint(v string) (uint64, error) {
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric %q: %w", v, err)
	}
	return parsed, nil
}
