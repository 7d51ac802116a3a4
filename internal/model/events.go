package model

// Decoded vault and factory event payloads. Amounts are decimal strings so
// 256-bit values survive JSON.

type VaultCreatedData struct {
	Token0  string `json:"token0"`
	Token1  string `json:"token1"`
	VaultID uint64 `json:"vault_id"`
}

type PositionOpenedData struct {
	Owner      string `json:"owner"`
	PositionID uint64 `json:"position_id"`
	Amount0    string `json:"amount0"`
	Amount1    string `json:"amount1"`
}

// FeesCollectedData is shared by FeesCollected and PositionClosed, which have
// the same layout. For PositionClosed the amounts are the full payout.
type FeesCollectedData struct {
	Owner      string `json:"owner"`
	PositionID uint64 `json:"position_id"`
	Amount0    string `json:"amount0"`
	Amount1    string `json:"amount1"`
}

type SwapExecutedData struct {
	Trader     string `json:"trader"`
	SellToken  string `json:"sell_token"`
	BuyToken   string `json:"buy_token"`
	SellAmount string `json:"sell_amount"`
	BuyAmount  string `json:"buy_amount"`
	FeeAmount  string `json:"fee_amount"`
}
