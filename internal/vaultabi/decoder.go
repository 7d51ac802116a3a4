package vaultabi

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"liquidityVault/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext provides shared dependencies for decoders. Chain is optional;
// without it vault metadata comes only from VaultCreated logs seen earlier.
type DecodeContext struct {
	Context context.Context
	Chain   ContractCaller
	Meta    *VaultMetaCache
	Logger  *zap.Logger
}

// VaultDecoder decodes vault and factory events.
type VaultDecoder struct {
	vaultABI    abi.ABI
	topicToName map[string]string
}

func NewVaultDecoder() (*VaultDecoder, error) {
	parsed, err := VaultABI()
	if err != nil {
		return nil, err
	}
	names, err := TopicNames()
	if err != nil {
		return nil, err
	}
	topicToName := make(map[string]string, len(names))
	for topic, name := range names {
		topicToName[strings.ToLower(topic.Hex())] = name
	}
	return &VaultDecoder{vaultABI: parsed, topicToName: topicToName}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *VaultDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *VaultDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid vault address: %s", log.Address)
	}
	vaultAddr := common.HexToAddress(log.Address)

	var decoded interface{}
	var err error
	switch name {
	case "VaultCreated":
		var created model.VaultCreatedData
		created, err = d.decodeVaultCreated(log)
		if err == nil && ctx.Meta != nil {
			ctx.Meta.Set(vaultAddr, model.VaultMeta{Token0: created.Token0, Token1: created.Token1, VaultID: created.VaultID})
		}
		decoded = created
	case "PositionOpened":
		decoded, err = d.decodePositionOpened(log)
	case "FeesCollected", "PositionClosed":
		decoded, err = d.decodeSettlement(name, log)
	case "SwapExecuted":
		decoded, err = d.decodeSwapExecuted(log)
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
	if err != nil {
		return nil, err
	}

	return buildTypedEvent(log, name, decoded, lookupVaultMeta(ctx, vaultAddr)), nil
}

func lookupVaultMeta(ctx DecodeContext, vaultAddr common.Address) *model.VaultMeta {
	if ctx.Meta != nil {
		if meta, ok := ctx.Meta.Get(vaultAddr); ok {
			return &meta
		}
	}
	if ctx.Chain == nil {
		return nil
	}

	callCtx := ctx.Context
	if callCtx == nil {
		callCtx = context.Background()
	}
	meta, err := FetchVaultMeta(callCtx, ctx.Chain, vaultAddr)
	if err != nil {
		if ctx.Logger != nil {
			ctx.Logger.Warn("vault metadata fetch failed", zap.String("vault", vaultAddr.Hex()), zap.Error(err))
		}
		return nil
	}
	if ctx.Meta != nil {
		ctx.Meta.Set(vaultAddr, meta)
	}
	return &meta
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}, meta *model.VaultMeta) *model.TypedEvent {
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		VaultMeta:   meta,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}
}

func (d *VaultDecoder) decodeVaultCreated(log model.LogRecord) (model.VaultCreatedData, error) {
	event := d.vaultABI.Events["VaultCreated"]
	var indexed struct {
		Token0 common.Address
		Token1 common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.VaultCreatedData{}, err
	}
	values, err := unpackNonIndexed(event, log.Data, 1)
	if err != nil {
		return model.VaultCreatedData{}, err
	}
	vaultID, err := asUint64(values[0])
	if err != nil {
		return model.VaultCreatedData{}, fmt.Errorf("vault id: %w", err)
	}
	return model.VaultCreatedData{
		Token0:  indexed.Token0.Hex(),
		Token1:  indexed.Token1.Hex(),
		VaultID: vaultID,
	}, nil
}

func (d *VaultDecoder) decodePositionOpened(log model.LogRecord) (model.PositionOpenedData, error) {
	event := d.vaultABI.Events["PositionOpened"]
	var indexed struct {
		Owner   common.Address
		Amount0 *big.Int
		Amount1 *big.Int
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.PositionOpenedData{}, err
	}
	values, err := unpackNonIndexed(event, log.Data, 1)
	if err != nil {
		return model.PositionOpenedData{}, err
	}
	positionID, err := asUint64(values[0])
	if err != nil {
		return model.PositionOpenedData{}, fmt.Errorf("position id: %w", err)
	}
	return model.PositionOpenedData{
		Owner:      indexed.Owner.Hex(),
		PositionID: positionID,
		Amount0:    indexed.Amount0.String(),
		Amount1:    indexed.Amount1.String(),
	}, nil
}

func (d *VaultDecoder) decodeSettlement(name string, log model.LogRecord) (model.FeesCollectedData, error) {
	event := d.vaultABI.Events[name]
	var indexed struct {
		Owner      common.Address
		PositionId *big.Int
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.FeesCollectedData{}, err
	}
	if !indexed.PositionId.IsUint64() {
		return model.FeesCollectedData{}, fmt.Errorf("position id %s exceeds uint64", indexed.PositionId.String())
	}
	values, err := unpackNonIndexed(event, log.Data, 2)
	if err != nil {
		return model.FeesCollectedData{}, err
	}
	amount0, err := asBigInt(values[0])
	if err != nil {
		return model.FeesCollectedData{}, err
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return model.FeesCollectedData{}, err
	}
	return model.FeesCollectedData{
		Owner:      indexed.Owner.Hex(),
		PositionID: indexed.PositionId.Uint64(),
		Amount0:    amount0.String(),
		Amount1:    amount1.String(),
	}, nil
}

func (d *VaultDecoder) decodeSwapExecuted(log model.LogRecord) (model.SwapExecutedData, error) {
	event := d.vaultABI.Events["SwapExecuted"]
	var indexed struct {
		Trader    common.Address
		SellToken common.Address
		BuyToken  common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.SwapExecutedData{}, err
	}
	values, err := unpackNonIndexed(event, log.Data, 3)
	if err != nil {
		return model.SwapExecutedData{}, err
	}
	amounts := make([]string, 0, len(values))
	for _, v := range values {
		n, err := asBigInt(v)
		if err != nil {
			return model.SwapExecutedData{}, err
		}
		amounts = append(amounts, n.String())
	}
	return model.SwapExecutedData{
		Trader:     indexed.Trader.Hex(),
		SellToken:  indexed.SellToken.Hex(),
		BuyToken:   indexed.BuyToken.Hex(),
		SellAmount: amounts[0],
		BuyAmount:  amounts[1],
		FeeAmount:  amounts[2],
	}, nil
}

func parseIndexed(event abi.Event, topics []string, out interface{}) error {
	indexedArgs := indexedArguments(event.Inputs)
	if len(topics) != len(indexedArgs)+1 {
		return fmt.Errorf("expected %d topics, got %d", len(indexedArgs)+1, len(topics))
	}
	hashes, err := parseTopicHashes(topics[1:])
	if err != nil {
		return err
	}
	if err := abi.ParseTopics(out, indexedArgs, hashes); err != nil {
		return fmt.Errorf("parse topics: %w", err)
	}
	return nil
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string, want int) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != want {
		return nil, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}
	return values, nil
}
