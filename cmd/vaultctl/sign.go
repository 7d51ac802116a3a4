package main

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityVault/internal/config"
	"liquidityVault/internal/order"
)

type signedOrder struct {
	Signer       string `json:"signer"`
	SellToken    string `json:"sell_token"`
	BuyToken     string `json:"buy_token"`
	SellAmount   string `json:"sell_amount"`
	MinBuyAmount string `json:"min_buy_amount"`
	ValidTo      uint32 `json:"valid_to"`
	OrderHash    string `json:"order_hash"`
	Signature    string `json:"signature"`
}

func runSign(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSign(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	out, err := signOrder(cfg)
	if err != nil {
		return err
	}
	logger.Info("order signed", zap.String("signer", out.Signer), zap.String("order_hash", out.OrderHash))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// signOrder signs a sell order whose receiver is the signer, which is the
// only form the vault accepts.
func signOrder(cfg config.SignConfig) (signedOrder, error) {
	if cfg.Key == "" {
		return signedOrder{}, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(cfg.Key)
	if err != nil {
		return signedOrder{}, fmt.Errorf("parse key: %w", err)
	}
	for name, addr := range map[string]string{"sell-token": cfg.SellToken, "buy-token": cfg.BuyToken} {
		if !common.IsHexAddress(addr) {
			return signedOrder{}, fmt.Errorf("invalid %s address: %q", name, addr)
		}
	}
	sellAmount, err := uint256.FromDecimal(cfg.SellAmount)
	if err != nil {
		return signedOrder{}, fmt.Errorf("parse sell-amount: %w", err)
	}
	minBuy, err := uint256.FromDecimal(cfg.MinBuyAmount)
	if err != nil {
		return signedOrder{}, fmt.Errorf("parse min-buy: %w", err)
	}

	signer := crypto.PubkeyToAddress(key.PublicKey)
	o := order.NewSellOrder(common.HexToAddress(cfg.SellToken), common.HexToAddress(cfg.BuyToken), signer, sellAmount, minBuy, cfg.ValidTo)
	hash, err := o.Hash()
	if err != nil {
		return signedOrder{}, err
	}
	sig, err := order.Sign(o, key)
	if err != nil {
		return signedOrder{}, err
	}

	return signedOrder{
		Signer:       signer.Hex(),
		SellToken:    o.SellToken.Hex(),
		BuyToken:     o.BuyToken.Hex(),
		SellAmount:   sellAmount.Dec(),
		MinBuyAmount: minBuy.Dec(),
		ValidTo:      cfg.ValidTo,
		OrderHash:    hash.Hex(),
		Signature:    hexutil.Encode(sig),
	}, nil
}
