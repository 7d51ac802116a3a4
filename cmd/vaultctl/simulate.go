package main

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityVault/internal/config"
	"liquidityVault/internal/factory"
	"liquidityVault/internal/model"
	"liquidityVault/internal/order"
	"liquidityVault/internal/storage"
	"liquidityVault/internal/token"
	"liquidityVault/internal/vault"
	"liquidityVault/internal/vaultabi"
)

// orderTTL is how long simulated orders stay valid.
const orderTTL = 10 * time.Minute

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}

	sim, err := runScenario(cfg, time.Now, logger)
	if err != nil {
		return err
	}

	w, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	for _, record := range sim.records {
		if err := w.Write(record); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	r0, r1 := sim.vault.TotalReserves()
	g0, g1 := sim.vault.FeeGrowthGlobal()
	logger.Info("simulate complete",
		zap.String("vault", sim.vault.Address().Hex()),
		zap.Int("logs", len(sim.records)),
		zap.String("reserve0", r0.Dec()),
		zap.String("reserve1", r1.Dec()),
		zap.String("fee_growth0", g0.Dec()),
		zap.String("fee_growth1", g1.Dec()),
		zap.Int("open_positions", sim.vault.OpenPositions()),
		zap.String("out", cfg.Out),
	)
	return nil
}

type simulation struct {
	vault   *vault.Vault
	records []model.LogRecord
}

type actor struct {
	name string
	key  *ecdsa.PrivateKey
	addr common.Address
}

// newActor derives a fixed key from name so runs are reproducible.
func newActor(name string) (actor, error) {
	key, err := crypto.ToECDSA(crypto.Keccak256([]byte("vaultctl/" + name)))
	if err != nil {
		return actor{}, fmt.Errorf("derive key for %s: %w", name, err)
	}
	return actor{name: name, key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// runScenario creates a vault through the factory, has two LPs deposit, a
// trader swap both ways, one LP collect and the other close. Every step is
// mined into its own block.
func runScenario(cfg config.SimulateConfig, now func() time.Time, logger *zap.Logger) (*simulation, error) {
	recorder := vaultabi.NewLogRecorder(cfg.Vault.ChainID, cfg.StartBlock, now)
	bank := token.NewBank()
	auth := order.NewAuthenticator(nil)

	var pinned common.Address
	if cfg.Vault.VaultAddress != "" {
		pinned = common.HexToAddress(cfg.Vault.VaultAddress)
	}

	f, err := factory.New(factory.Config{
		Address: common.HexToAddress(cfg.Vault.Factory),
		FeeBps:  cfg.Vault.FeeBps,
		Events:  recorder,
	}, func(vc vault.Config) (*vault.Vault, error) {
		if pinned != (common.Address{}) {
			vc.Address = pinned
		}
		vc.Now = now
		return vault.New(vc, bank.Custody(vc.Address), token.NewPositionRegistry(), auth, logger)
	}, logger)
	if err != nil {
		return nil, err
	}

	v, _, err := f.Create(common.HexToAddress(cfg.Vault.Token0), common.HexToAddress(cfg.Vault.Token1))
	if err != nil {
		return nil, err
	}
	recorder.NextBlock()

	var actors []actor
	for _, name := range []string{"alice", "bob", "trader"} {
		a, err := newActor(name)
		if err != nil {
			return nil, err
		}
		for _, asset := range []common.Address{v.Token0(), v.Token1()} {
			if err := bank.Mint(asset, a.addr, uint256.NewInt(1_000_000)); err != nil {
				return nil, err
			}
			bank.Approve(asset, a.addr, v.Address(), token.MaxAllowance)
		}
		actors = append(actors, a)
	}
	alice, bob, trader := actors[0], actors[1], actors[2]

	step := func(name string, fn func() error) error {
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		recorder.NextBlock()
		return recorder.Err()
	}
	swap := func(sellToken, buyToken common.Address, amount uint64) error {
		sellAmount := uint256.NewInt(amount)
		q, err := v.Quote(sellToken, buyToken, sellAmount)
		if err != nil {
			return err
		}
		req := vault.SwapRequest{
			SellToken:    sellToken,
			BuyToken:     buyToken,
			SellAmount:   sellAmount,
			MinBuyAmount: q.BuyAmount,
			ValidTo:      uint32(now().Add(orderTTL).Unix()),
			Trader:       trader.addr,
		}
		req.Signature, err = order.Sign(req.Order(), trader.key)
		if err != nil {
			return err
		}
		_, err = v.Swap(req)
		return err
	}

	var aliceID, bobID uint64
	steps := []struct {
		name string
		fn   func() error
	}{
		{"alice opens", func() (err error) {
			aliceID, err = v.Open(alice.addr, uint256.NewInt(10_000), uint256.NewInt(10_000))
			return err
		}},
		{"bob opens", func() (err error) {
			bobID, err = v.Open(bob.addr, uint256.NewInt(20_000), uint256.NewInt(20_000))
			return err
		}},
		{"trader sells token0", func() error { return swap(v.Token0(), v.Token1(), 1_000) }},
		{"trader sells token1", func() error { return swap(v.Token1(), v.Token0(), 500) }},
		{"alice collects", func() error {
			_, _, err := v.CollectFees(alice.addr, aliceID)
			return err
		}},
		{"bob closes", func() error {
			_, _, err := v.Close(bob.addr, bobID)
			return err
		}},
	}
	for _, s := range steps {
		if err := step(s.name, s.fn); err != nil {
			return nil, err
		}
		logger.Debug("scenario step", zap.String("step", s.name))
	}

	return &simulation{vault: v, records: recorder.Records()}, nil
}
