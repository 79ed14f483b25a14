package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS markets (
	authority  TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	fee_num    NUMERIC(20,0) NOT NULL,
	fee_denom  NUMERIC(20,0) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pools (
	id                 TEXT PRIMARY KEY,
	authority          TEXT NOT NULL REFERENCES markets (authority),
	reserve_a          TEXT NOT NULL,
	reserve_b          TEXT NOT NULL,
	mint_a             TEXT NOT NULL,
	mint_b             TEXT NOT NULL,
	pool_mint          TEXT NOT NULL,
	fee_reserve        TEXT NOT NULL,
	tip_num            NUMERIC(20,0) NOT NULL,
	tip_denom          NUMERIC(20,0) NOT NULL,
	shares_outstanding NUMERIC(20,0) NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS operations (
	seq        BIGINT PRIMARY KEY,
	op         TEXT NOT NULL,
	authority  TEXT NOT NULL,
	pool       TEXT NOT NULL,
	caller     TEXT NOT NULL,
	record     JSONB NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS operations_pool_seq_idx ON operations (pool, seq);

CREATE TABLE IF NOT EXISTS pool_window_stats (
	pool                TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts     TIMESTAMPTZ NOT NULL,
	window_end_ts       TIMESTAMPTZ NOT NULL,
	swap_count          BIGINT NOT NULL,
	deposit_count       BIGINT NOT NULL,
	withdraw_count      BIGINT NOT NULL,
	volume_in           NUMERIC NOT NULL,
	volume_out          NUMERIC NOT NULL,
	retained_fee        NUMERIC NOT NULL,
	deposited_a         NUMERIC NOT NULL,
	deposited_b         NUMERIC NOT NULL,
	withdrawn_a         NUMERIC NOT NULL,
	withdrawn_b         NUMERIC NOT NULL,
	shares_minted       NUMERIC NOT NULL,
	shares_burned       NUMERIC NOT NULL,
	tip_shares          NUMERIC NOT NULL,
	reserve_a           NUMERIC NOT NULL,
	reserve_b           NUMERIC NOT NULL,
	shares_outstanding  NUMERIC NOT NULL,
	fee_rate            NUMERIC,
	apr                 NUMERIC,
	last_seq            BIGINT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool, window_size_seconds, window_start_ts)
);

CREATE TABLE IF NOT EXISTS progress (
	name              TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
