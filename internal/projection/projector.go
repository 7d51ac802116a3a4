package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"liquidityVault/internal/model"
	"liquidityVault/internal/storage"
)

// EntityStore receives projected rows. *postgres.Store satisfies it.
type EntityStore interface {
	UpsertVaults(ctx context.Context, vaults []model.Vault) error
	UpsertPositions(ctx context.Context, positions []model.Position) error
	InsertSwaps(ctx context.Context, swaps []model.Swap) error
}

// RowLoader is implemented by stores that can hand back persisted rows so a
// resumed projection continues from its totals.
type RowLoader interface {
	LoadVaults(ctx context.Context, chainID uint64) ([]model.Vault, error)
	LoadPositions(ctx context.Context, chainID uint64) ([]model.Position, error)
}

// Config controls projection behavior.
type Config struct {
	ChainID uint64
	// Factory is recorded on vault rows.
	Factory    string
	BatchSize  int
	StateStore StateStore
}

// Projector folds typed vault events into Vault and Position rows.
type Projector struct {
	cfg    Config
	store  EntityStore
	logger *zap.Logger

	vaults         map[string]*vaultTotals
	positions      map[positionKey]*positionTotals
	dirtyVaults    map[string]struct{}
	dirtyPositions map[positionKey]struct{}
	swaps          []model.Swap

	cursor    Cursor
	hasCursor bool
	pending   int
}

func NewProjector(cfg Config, store EntityStore, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Projector{
		cfg:            cfg,
		store:          store,
		logger:         logger,
		vaults:         make(map[string]*vaultTotals),
		positions:      make(map[positionKey]*positionTotals),
		dirtyVaults:    make(map[string]struct{}),
		dirtyPositions: make(map[positionKey]struct{}),
	}
}

// Run projects a typed events JSONL file, resuming after the stored cursor.
func (p *Projector) Run(ctx context.Context, inputPath string) error {
	if p.store == nil {
		return fmt.Errorf("store is nil")
	}
	if p.cfg.StateStore != nil {
		cursor, ok, err := p.cfg.StateStore.Load(ctx)
		if err != nil {
			return err
		}
		p.cursor, p.hasCursor = cursor, ok
		if ok {
			p.logger.Info("resume from cursor", zap.Uint64("block", cursor.BlockNumber), zap.Uint64("log_index", cursor.LogIndex))
			if loader, isLoader := p.store.(RowLoader); isLoader {
				if err := p.hydrate(ctx, loader); err != nil {
					return err
				}
			}
		}
	}

	var total, applied, skipped, failed int
	err := storage.ScanJSONLFile(inputPath, func(line []byte) error {
		total++
		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			p.logger.Warn("decode typed event", zap.Error(err))
			return nil
		}
		if p.hasCursor && !p.cursor.After(record.BlockNumber, record.LogIndex) {
			skipped++
			return nil
		}

		if err := p.Apply(record); err != nil {
			failed++
			p.logger.Warn("project event", zap.Error(err), zap.String("vault", record.Address), zap.String("event", record.EventName))
		} else {
			applied++
		}
		p.cursor = Cursor{BlockNumber: record.BlockNumber, LogIndex: record.LogIndex}
		p.hasCursor = true

		p.pending++
		if p.pending >= p.cfg.BatchSize {
			return p.Flush(ctx)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := p.Flush(ctx); err != nil {
		return err
	}

	p.logger.Info("project complete",
		zap.Int("total", total),
		zap.Int("applied", applied),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Int("vaults", len(p.vaults)),
		zap.Int("positions", len(p.positions)),
	)
	return nil
}

// Apply folds one event into the in-memory rows and marks them dirty.
func (p *Projector) Apply(record model.TypedEventRecord) error {
	v := p.vault(record)

	switch record.EventName {
	case "VaultCreated":
		var data model.VaultCreatedData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return fmt.Errorf("decode vault created: %w", err)
		}
		v.row.Token0, v.row.Token1, v.row.VaultID = data.Token0, data.Token1, data.VaultID
		v.row.Factory = p.cfg.Factory
		v.row.BlockNumber, v.row.Timestamp = record.BlockNumber, record.Timestamp

	case "PositionOpened":
		var data model.PositionOpenedData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return fmt.Errorf("decode position opened: %w", err)
		}
		principal, err := parseAmounts(data.Amount0, data.Amount1)
		if err != nil {
			return err
		}
		key := positionKey{vault: v.row.Address, id: data.PositionID}
		p.positions[key] = &positionTotals{
			row: model.Position{
				ChainID:     record.ChainID,
				Vault:       v.row.Address,
				PositionID:  data.PositionID,
				Owner:       data.Owner,
				Status:      model.PositionOpen,
				BlockNumber: record.BlockNumber,
				Timestamp:   record.Timestamp,
			},
			principal: principal,
			claimed:   zeroAmounts(),
		}
		v.reserves.add(principal)
		p.dirtyPositions[key] = struct{}{}

	case "FeesCollected":
		var data model.FeesCollectedData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return fmt.Errorf("decode fees collected: %w", err)
		}
		paid, err := parseAmounts(data.Amount0, data.Amount1)
		if err != nil {
			return err
		}
		key := positionKey{vault: v.row.Address, id: data.PositionID}
		pos, ok := p.positions[key]
		if !ok {
			return fmt.Errorf("fees collected for unknown position %d", data.PositionID)
		}
		if v.reserves.sub(paid) {
			p.logger.Warn("reserve underflow", zap.String("vault", v.row.Address), zap.Uint64("position_id", data.PositionID))
		}
		pos.claimed.add(paid)
		p.dirtyPositions[key] = struct{}{}

	case "PositionClosed":
		var data model.FeesCollectedData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return fmt.Errorf("decode position closed: %w", err)
		}
		key := positionKey{vault: v.row.Address, id: data.PositionID}
		pos, ok := p.positions[key]
		if !ok {
			return fmt.Errorf("close of unknown position %d", data.PositionID)
		}
		// Settled fees already left the reserves with the preceding FeesCollected.
		if v.reserves.sub(pos.principal) {
			p.logger.Warn("reserve underflow", zap.String("vault", v.row.Address), zap.Uint64("position_id", data.PositionID))
		}
		pos.row.Status = model.PositionClosed
		pos.row.ClosedBlock = record.BlockNumber
		p.dirtyPositions[key] = struct{}{}

	case "SwapExecuted":
		var data model.SwapExecutedData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return fmt.Errorf("decode swap executed: %w", err)
		}
		sell, err := v.tokenIndex(data.SellToken)
		if err != nil {
			return err
		}
		buy := 1 - sell
		sold, err := parseAmount(data.SellAmount)
		if err != nil {
			return err
		}
		bought, err := parseAmount(data.BuyAmount)
		if err != nil {
			return err
		}
		fee, err := parseAmount(data.FeeAmount)
		if err != nil {
			return err
		}

		in, out, fees := zeroAmounts(), zeroAmounts(), zeroAmounts()
		in[sell], out[buy], fees[sell] = sold, bought, fee
		v.reserves.add(in)
		if v.reserves.sub(out) {
			p.logger.Warn("reserve underflow", zap.String("vault", v.row.Address))
		}
		v.volume.add(in)
		v.fees.add(fees)
		v.row.SwapCount++
		p.swaps = append(p.swaps, model.Swap{
			ChainID:     record.ChainID,
			Vault:       v.row.Address,
			TxHash:      record.TxHash,
			LogIndex:    record.LogIndex,
			Trader:      data.Trader,
			SellToken:   data.SellToken,
			BuyToken:    data.BuyToken,
			SellAmount:  sold.Dec(),
			BuyAmount:   bought.Dec(),
			FeeAmount:   fee.Dec(),
			BlockNumber: record.BlockNumber,
			Timestamp:   record.Timestamp,
		})

	default:
		return nil
	}

	if record.BlockNumber > v.row.LastBlock {
		v.row.LastBlock = record.BlockNumber
	}
	p.dirtyVaults[v.row.Address] = struct{}{}
	return nil
}

// Flush writes dirty rows and pending swaps, then the cursor.
func (p *Projector) Flush(ctx context.Context) error {
	vaults := make([]model.Vault, 0, len(p.dirtyVaults))
	for addr := range p.dirtyVaults {
		vaults = append(vaults, p.vaults[addr].snapshot())
	}
	sort.Slice(vaults, func(i, j int) bool { return vaults[i].Address < vaults[j].Address })

	positions := make([]model.Position, 0, len(p.dirtyPositions))
	for key := range p.dirtyPositions {
		positions = append(positions, p.positions[key].snapshot())
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Vault != positions[j].Vault {
			return positions[i].Vault < positions[j].Vault
		}
		return positions[i].PositionID < positions[j].PositionID
	})

	if err := p.store.UpsertVaults(ctx, vaults); err != nil {
		return fmt.Errorf("upsert vaults: %w", err)
	}
	if err := p.store.UpsertPositions(ctx, positions); err != nil {
		return fmt.Errorf("upsert positions: %w", err)
	}
	if err := p.store.InsertSwaps(ctx, p.swaps); err != nil {
		return fmt.Errorf("insert swaps: %w", err)
	}
	p.swaps = nil
	p.dirtyVaults = make(map[string]struct{})
	p.dirtyPositions = make(map[positionKey]struct{})
	p.pending = 0

	if p.cfg.StateStore != nil && p.hasCursor {
		if err := p.cfg.StateStore.Save(ctx, p.cursor); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	return nil
}

// Vault returns the current row for a vault address.
func (p *Projector) Vault(address string) (model.Vault, bool) {
	v, ok := p.vaults[vaultKey(address)]
	if !ok {
		return model.Vault{}, false
	}
	return v.snapshot(), true
}

// Position returns the current row for a position.
func (p *Projector) Position(vaultAddress string, id uint64) (model.Position, bool) {
	pos, ok := p.positions[positionKey{vault: vaultKey(vaultAddress), id: id}]
	if !ok {
		return model.Position{}, false
	}
	return pos.snapshot(), true
}

// hydrate loads persisted rows for vaults not already held in memory.
func (p *Projector) hydrate(ctx context.Context, loader RowLoader) error {
	vaults, err := loader.LoadVaults(ctx, p.cfg.ChainID)
	if err != nil {
		return fmt.Errorf("load vaults: %w", err)
	}
	positions, err := loader.LoadPositions(ctx, p.cfg.ChainID)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	if err := p.Seed(vaults, positions); err != nil {
		return err
	}
	p.logger.Info("hydrated rows", zap.Int("vaults", len(vaults)), zap.Int("positions", len(positions)))
	return nil
}

// Seed installs existing rows. Rows already held in memory win.
func (p *Projector) Seed(vaults []model.Vault, positions []model.Position) error {
	for _, row := range vaults {
		key := vaultKey(row.Address)
		if _, ok := p.vaults[key]; ok {
			continue
		}
		reserves, err := parseAmounts(row.Reserve0, row.Reserve1)
		if err != nil {
			return err
		}
		volume, err := parseAmounts(row.Volume0, row.Volume1)
		if err != nil {
			return err
		}
		fees, err := parseAmounts(row.Fees0, row.Fees1)
		if err != nil {
			return err
		}
		row.Address = key
		p.vaults[key] = &vaultTotals{row: row, reserves: reserves, volume: volume, fees: fees}
	}
	for _, row := range positions {
		key := positionKey{vault: vaultKey(row.Vault), id: row.PositionID}
		if _, ok := p.positions[key]; ok {
			continue
		}
		principal, err := parseAmounts(row.Amount0, row.Amount1)
		if err != nil {
			return err
		}
		claimed, err := parseAmounts(row.FeesClaimed0, row.FeesClaimed1)
		if err != nil {
			return err
		}
		row.Vault = key.vault
		p.positions[key] = &positionTotals{row: row, principal: principal, claimed: claimed}
	}
	return nil
}

func (p *Projector) vault(record model.TypedEventRecord) *vaultTotals {
	key := vaultKey(record.Address)
	v, ok := p.vaults[key]
	if !ok {
		v = newVaultTotals(record.ChainID, key)
		v.row.BlockNumber, v.row.Timestamp = record.BlockNumber, record.Timestamp
		p.vaults[key] = v
	}
	if record.VaultMeta != nil && v.row.Token0 == "" {
		v.row.Token0, v.row.Token1 = record.VaultMeta.Token0, record.VaultMeta.Token1
		if v.row.VaultID == 0 {
			v.row.VaultID = record.VaultMeta.VaultID
		}
	}
	return v
}

func vaultKey(address string) string {
	return strings.ToLower(address)
}
