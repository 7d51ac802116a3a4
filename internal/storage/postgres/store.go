package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityVault/internal/model"
)

// Schema creates the read-model tables when they are missing.
const Schema = `
CREATE TABLE IF NOT EXISTS vaults (
	chain_id       BIGINT  NOT NULL,
	vault_address  TEXT    NOT NULL,
	factory        TEXT    NOT NULL DEFAULT '',
	token0         TEXT    NOT NULL,
	token1         TEXT    NOT NULL,
	vault_id       BIGINT  NOT NULL DEFAULT 0,
	block_number   BIGINT  NOT NULL,
	block_ts       BIGINT  NOT NULL,
	reserve0       NUMERIC NOT NULL DEFAULT 0,
	reserve1       NUMERIC NOT NULL DEFAULT 0,
	swap_count     BIGINT  NOT NULL DEFAULT 0,
	volume0        NUMERIC NOT NULL DEFAULT 0,
	volume1        NUMERIC NOT NULL DEFAULT 0,
	fees0          NUMERIC NOT NULL DEFAULT 0,
	fees1          NUMERIC NOT NULL DEFAULT 0,
	last_block     BIGINT  NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, vault_address)
);

CREATE TABLE IF NOT EXISTS positions (
	chain_id       BIGINT  NOT NULL,
	vault_address  TEXT    NOT NULL,
	position_id    BIGINT  NOT NULL,
	owner          TEXT    NOT NULL,
	amount0        NUMERIC NOT NULL,
	amount1        NUMERIC NOT NULL,
	fees_claimed0  NUMERIC NOT NULL DEFAULT 0,
	fees_claimed1  NUMERIC NOT NULL DEFAULT 0,
	status         TEXT    NOT NULL,
	block_number   BIGINT  NOT NULL,
	block_ts       BIGINT  NOT NULL,
	closed_block   BIGINT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, vault_address, position_id)
);

CREATE TABLE IF NOT EXISTS swaps (
	chain_id       BIGINT  NOT NULL,
	tx_hash        TEXT    NOT NULL,
	log_index      BIGINT  NOT NULL,
	vault_address  TEXT    NOT NULL,
	trader         TEXT    NOT NULL,
	sell_token     TEXT    NOT NULL,
	buy_token      TEXT    NOT NULL,
	sell_amount    NUMERIC NOT NULL,
	buy_amount     NUMERIC NOT NULL,
	fee_amount     NUMERIC NOT NULL,
	block_number   BIGINT  NOT NULL,
	block_ts       BIGINT  NOT NULL,
	PRIMARY KEY (chain_id, tx_hash, log_index)
);

CREATE INDEX IF NOT EXISTS swaps_vault_block ON swaps (vault_address, block_number);

CREATE TABLE IF NOT EXISTS projector_state (
	name            TEXT PRIMARY KEY,
	last_block      BIGINT NOT NULL,
	last_log_index  BIGINT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for the vault read model.
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

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertVaults inserts or updates vault rows. Identity columns keep their
// first non-empty value; running totals are replaced.
func (s *Store) UpsertVaults(ctx context.Context, vaults []model.Vault) error {
	if len(vaults) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, v := range vaults {
		batch.Queue(`
			INSERT INTO vaults (
				chain_id, vault_address, factory, token0, token1, vault_id, block_number, block_ts,
				reserve0, reserve1, swap_count, volume0, volume1, fees0, fees1, last_block, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now())
			ON CONFLICT (chain_id, vault_address)
			DO UPDATE SET
				factory = COALESCE(NULLIF(vaults.factory, ''), EXCLUDED.factory),
				token0 = COALESCE(NULLIF(vaults.token0, ''), EXCLUDED.token0),
				token1 = COALESCE(NULLIF(vaults.token1, ''), EXCLUDED.token1),
				vault_id = GREATEST(vaults.vault_id, EXCLUDED.vault_id),
				block_number = LEAST(vaults.block_number, EXCLUDED.block_number),
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				swap_count = EXCLUDED.swap_count,
				volume0 = EXCLUDED.volume0,
				volume1 = EXCLUDED.volume1,
				fees0 = EXCLUDED.fees0,
				fees1 = EXCLUDED.fees1,
				last_block = EXCLUDED.last_block,
				updated_at = now()
		`,
			int64(v.ChainID),
			v.Address,
			v.Factory,
			v.Token0,
			v.Token1,
			int64(v.VaultID),
			int64(v.BlockNumber),
			int64(v.Timestamp),
			v.Reserve0,
			v.Reserve1,
			int64(v.SwapCount),
			v.Volume0,
			v.Volume1,
			v.Fees0,
			v.Fees1,
			int64(v.LastBlock),
		)
	}
	return s.sendBatch(ctx, batch, len(vaults))
}

// UpsertPositions inserts or updates position rows.
func (s *Store) UpsertPositions(ctx context.Context, positions []model.Position) error {
	if len(positions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range positions {
		var closedBlock *int64
		if p.Status == model.PositionClosed {
			cb := int64(p.ClosedBlock)
			closedBlock = &cb
		}
		batch.Queue(`
			INSERT INTO positions (
				chain_id, vault_address, position_id, owner, amount0, amount1,
				fees_claimed0, fees_claimed1, status, block_number, block_ts, closed_block, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
			ON CONFLICT (chain_id, vault_address, position_id)
			DO UPDATE SET
				owner = EXCLUDED.owner,
				fees_claimed0 = EXCLUDED.fees_claimed0,
				fees_claimed1 = EXCLUDED.fees_claimed1,
				status = EXCLUDED.status,
				closed_block = EXCLUDED.closed_block,
				updated_at = now()
		`,
			int64(p.ChainID),
			p.Vault,
			int64(p.PositionID),
			p.Owner,
			p.Amount0,
			p.Amount1,
			p.FeesClaimed0,
			p.FeesClaimed1,
			string(p.Status),
			int64(p.BlockNumber),
			int64(p.Timestamp),
			closedBlock,
		)
	}
	return s.sendBatch(ctx, batch, len(positions))
}

// InsertSwaps records swaps. Rows already present are left alone so replays
// are idempotent.
func (s *Store) InsertSwaps(ctx context.Context, swaps []model.Swap) error {
	if len(swaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, sw := range swaps {
		batch.Queue(`
			INSERT INTO swaps (
				chain_id, tx_hash, log_index, vault_address, trader, sell_token, buy_token,
				sell_amount, buy_amount, fee_amount, block_number, block_ts
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
		`,
			int64(sw.ChainID),
			sw.TxHash,
			int64(sw.LogIndex),
			sw.Vault,
			sw.Trader,
			sw.SellToken,
			sw.BuyToken,
			sw.SellAmount,
			sw.BuyAmount,
			sw.FeeAmount,
			int64(sw.BlockNumber),
			int64(sw.Timestamp),
		)
	}
	return s.sendBatch(ctx, batch, len(swaps))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the last projected log position for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, uint64, bool, error) {
	if name == "" {
		return 0, 0, false, fmt.Errorf("state name required")
	}
	var block, logIndex int64
	row := s.pool.QueryRow(ctx, `SELECT last_block, last_log_index FROM projector_state WHERE name=$1`, name)
	if err := row.Scan(&block, &logIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return uint64(block), uint64(logIndex), true, nil
}

// SaveState upserts the last projected log position for a name.
func (s *Store) SaveState(ctx context.Context, name string, block, logIndex uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projector_state (name, last_block, last_log_index, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET last_block = EXCLUDED.last_block, last_log_index = EXCLUDED.last_log_index, updated_at = now()
	`, name, int64(block), int64(logIndex))
	return err
}

// LoadVaults returns every vault row for a chain.
func (s *Store) LoadVaults(ctx context.Context, chainID uint64) ([]model.Vault, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, vault_address, factory, token0, token1, vault_id, block_number, block_ts,
			reserve0::text, reserve1::text, swap_count, volume0::text, volume1::text, fees0::text, fees1::text, last_block
		FROM vaults WHERE chain_id=$1
	`, int64(chainID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Vault
	for rows.Next() {
		var (
			v                                           model.Vault
			chain, vaultID, block, ts, swaps, lastBlock int64
		)
		if err := rows.Scan(&chain, &v.Address, &v.Factory, &v.Token0, &v.Token1, &vaultID, &block, &ts,
			&v.Reserve0, &v.Reserve1, &swaps, &v.Volume0, &v.Volume1, &v.Fees0, &v.Fees1, &lastBlock); err != nil {
			return nil, err
		}
		v.ChainID, v.VaultID = uint64(chain), uint64(vaultID)
		v.BlockNumber, v.Timestamp = uint64(block), uint64(ts)
		v.SwapCount, v.LastBlock = uint64(swaps), uint64(lastBlock)
		out = append(out, v)
	}
	return out, rows.Err()
}

// LoadPositions returns every position row for a chain.
func (s *Store) LoadPositions(ctx context.Context, chainID uint64) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, vault_address, position_id, owner, amount0::text, amount1::text,
			fees_claimed0::text, fees_claimed1::text, status, block_number, block_ts, closed_block
		FROM positions WHERE chain_id=$1
	`, int64(chainID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var (
			p                    model.Position
			chain, id, block, ts int64
			status               string
			closedBlock          *int64
		)
		if err := rows.Scan(&chain, &p.Vault, &id, &p.Owner, &p.Amount0, &p.Amount1,
			&p.FeesClaimed0, &p.FeesClaimed1, &status, &block, &ts, &closedBlock); err != nil {
			return nil, err
		}
		p.ChainID, p.PositionID = uint64(chain), uint64(id)
		p.BlockNumber, p.Timestamp = uint64(block), uint64(ts)
		p.Status = model.PositionStatus(status)
		if closedBlock != nil {
			p.ClosedBlock = uint64(*closedBlock)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
