package config

import (
	"github.com/spf13/pflag"

	"liquidityVault/internal/vaultabi"
)

// ProjectConfig holds configuration for the project command.
type ProjectConfig struct {
	Input     string
	PGDSN     string
	ChainID   uint64
	Factory   string
	BatchSize int
	StateFile string
	StateName string
	LogLevel  string
}

// LoadProject merges config file, environment variables, and flags into ProjectConfig.
func LoadProject(cfgFile string, flags *pflag.FlagSet) (ProjectConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"factory":    vaultabi.DeployedFactory,
		"batch-size": 1000,
		"state-name": "projector",
		"log-level":  "info",
	})
	if err != nil {
		return ProjectConfig{}, err
	}

	return ProjectConfig{
		Input:     v.GetString("in"),
		PGDSN:     v.GetString("pg-dsn"),
		ChainID:   v.GetUint64("chain-id"),
		Factory:   v.GetString("factory"),
		BatchSize: v.GetInt("batch-size"),
		StateFile: v.GetString("state-file"),
		StateName: v.GetString("state-name"),
		LogLevel:  v.GetString("log-level"),
	}, nil
}
