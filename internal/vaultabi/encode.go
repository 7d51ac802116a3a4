package vaultabi

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"liquidityVault/internal/factory"
	"liquidityVault/internal/model"
	"liquidityVault/internal/vault"
)

// EncodeEvent turns a vault or factory notification into the EVM log the
// contract would emit from source.
func EncodeEvent(source common.Address, ev vault.Event) (*types.Log, error) {
	parsed, err := VaultABI()
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	event, ok := parsed.Events[ev.EventName()]
	if !ok {
		return nil, fmt.Errorf("unsupported event: %s", ev.EventName())
	}

	var (
		topics []common.Hash
		values []interface{}
	)
	switch e := ev.(type) {
	case factory.VaultCreated:
		topics = []common.Hash{addressTopic(e.Token0), addressTopic(e.Token1)}
		values = []interface{}{new(big.Int).SetUint64(e.VaultID)}
	case vault.PositionOpened:
		topics = []common.Hash{addressTopic(e.Owner), amountTopic(e.Amount0), amountTopic(e.Amount1)}
		values = []interface{}{new(big.Int).SetUint64(e.PositionID)}
	case vault.FeesCollected:
		topics = []common.Hash{addressTopic(e.Owner), idTopic(e.PositionID)}
		values = []interface{}{toBig(e.Amount0), toBig(e.Amount1)}
	case vault.PositionClosed:
		topics = []common.Hash{addressTopic(e.Owner), idTopic(e.PositionID)}
		values = []interface{}{toBig(e.Amount0), toBig(e.Amount1)}
	case vault.SwapExecuted:
		topics = []common.Hash{addressTopic(e.Trader), addressTopic(e.SellToken), addressTopic(e.BuyToken)}
		values = []interface{}{toBig(e.SellAmount), toBig(e.BuyAmount), toBig(e.FeeAmount)}
	default:
		return nil, fmt.Errorf("unsupported event type %T", ev)
	}

	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", event.Name, err)
	}
	return &types.Log{
		Address: source,
		Topics:  append([]common.Hash{event.ID}, topics...),
		Data:    data,
	}, nil
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func amountTopic(v *uint256.Int) common.Hash {
	if v == nil {
		return common.Hash{}
	}
	return common.Hash(v.Bytes32())
}

func idTopic(id uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(id))
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// LogRecorder is a vault.EventSink that keeps every notification as a
// LogRecord, numbering blocks and log indexes like a local chain would.
type LogRecorder struct {
	mu       sync.Mutex
	chainID  uint64
	block    uint64
	logIndex uint64
	now      func() time.Time
	records  []model.LogRecord
	err      error
}

// NewLogRecorder starts recording at startBlock. now stamps block timestamps
// and ingestion times.
func NewLogRecorder(chainID, startBlock uint64, now func() time.Time) *LogRecorder {
	if now == nil {
		now = time.Now
	}
	return &LogRecorder{chainID: chainID, block: startBlock, now: now}
}

// Emit implements vault.EventSink. Encoding failures are kept for Err.
func (r *LogRecorder) Emit(source common.Address, ev vault.Event) {
	lg, err := EncodeEvent(source, ev)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if r.err == nil {
			r.err = err
		}
		return
	}

	lg.BlockNumber = r.block
	lg.BlockHash = syntheticHash(r.chainID, r.block, 0)
	lg.Index = uint(r.logIndex)
	lg.TxIndex = uint(r.logIndex)
	lg.TxHash = syntheticHash(r.chainID, r.block, r.logIndex+1)

	ts := r.now().UTC()
	r.records = append(r.records, RecordFromLog(*lg, r.chainID, uint64(ts.Unix()), ts))
	r.logIndex++
}

// NextBlock closes the current block.
func (r *LogRecorder) NextBlock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.block++
	r.logIndex = 0
}

func (r *LogRecorder) Records() []model.LogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.LogRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *LogRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// RecordFromLog normalizes a chain log into a LogRecord.
func RecordFromLog(lg types.Log, chainID, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(lg.Topics))
	for _, t := range lg.Topics {
		topics = append(topics, t.Hex())
	}
	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: lg.BlockNumber,
		BlockHash:   lg.BlockHash.Hex(),
		TxHash:      lg.TxHash.Hex(),
		TxIndex:     uint64(lg.TxIndex),
		LogIndex:    uint64(lg.Index),
		Address:     lg.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(lg.Data),
		Removed:     lg.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}

func syntheticHash(chainID, block, n uint64) common.Hash {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], chainID)
	binary.BigEndian.PutUint64(buf[8:16], block)
	binary.BigEndian.PutUint64(buf[16:24], n)
	return crypto.Keccak256Hash(buf[:])
}
