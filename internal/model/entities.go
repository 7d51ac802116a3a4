package model

// Vault is the read-model row for one vault, keyed by address.
type Vault struct {
	ChainID     uint64 `json:"chain_id"`
	Address     string `json:"address"`
	Factory     string `json:"factory"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	VaultID     uint64 `json:"vault_id"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`

	Reserve0  string `json:"reserve0"`
	Reserve1  string `json:"reserve1"`
	SwapCount uint64 `json:"swap_count"`
	Volume0   string `json:"volume0"`
	Volume1   string `json:"volume1"`
	Fees0     string `json:"fees0"`
	Fees1     string `json:"fees1"`
	LastBlock uint64 `json:"last_block"`
}

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is the read-model row for one position, keyed by vault and id.
type Position struct {
	ChainID      uint64         `json:"chain_id"`
	Vault        string         `json:"vault"`
	PositionID   uint64         `json:"position_id"`
	Owner        string         `json:"owner"`
	Amount0      string         `json:"amount0"`
	Amount1      string         `json:"amount1"`
	FeesClaimed0 string         `json:"fees_claimed0"`
	FeesClaimed1 string         `json:"fees_claimed1"`
	Status       PositionStatus `json:"status"`
	BlockNumber  uint64         `json:"block_number"`
	Timestamp    uint64         `json:"timestamp"`
	ClosedBlock  uint64         `json:"closed_block,omitempty"`
}

// Swap is one executed swap, keyed by the log that carried it.
type Swap struct {
	ChainID     uint64 `json:"chain_id"`
	Vault       string `json:"vault"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Trader      string `json:"trader"`
	SellToken   string `json:"sell_token"`
	BuyToken    string `json:"buy_token"`
	SellAmount  string `json:"sell_amount"`
	BuyAmount   string `json:"buy_amount"`
	FeeAmount   string `json:"fee_amount"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`
}
