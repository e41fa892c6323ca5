package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		App        `json:"app"        toml:"app"`
		Blockchain `json:"blockchain" toml:"blockchain"`
		Engine     `json:"engine"     toml:"engine"`
		HTTP       `json:"http"       toml:"http"`
		DB         `json:"db"         toml:"db"`
		Log        `json:"logger"     toml:"logger"`
	}

	App struct {
		Name        string `json:"name"        toml:"name"        env:"APP_NAME"`
		Environment string `json:"environment" toml:"environment" env:"ENV_NAME" env-default:"dev"`
		Debug       bool   `json:"debug"       toml:"debug"       env:"DEBUG"    env-default:"false"`
	}

	Blockchain struct {
		Network               string `json:"network" toml:"network" env:"CHAIN_NETWORK" env-default:"evm"`
		RPCURL                string `json:"rpc_url" toml:"rpc_url" env:"CHAIN_RPC_URL" env-default:"https://bsc-dataseed.binance.org/"`
		WalletSeed            string `json:"wallet_seed" toml:"wallet_seed" env:"WALLET_SEED" env-default:"your secure seed phrase here"`
		TreasuryIndex         uint32 `json:"treasury_index" toml:"treasury_index" env:"TREASURY_INDEX" env-default:"0"`
		RequiredConfirmations uint64 `json:"required_confirmations" toml:"required_confirmations" env-default:"3"`
	}

	Engine struct {
		StalenessWindowMinutes int `json:"staleness_window_minutes" toml:"staleness_window_minutes" env:"STALENESS_WINDOW_MINUTES" env-default:"5"`
		ClaimTTLHours          int `json:"claim_ttl_hours" toml:"claim_ttl_hours" env:"CLAIM_TTL_HOURS" env-default:"72"`
		SweepIntervalMinutes   int `json:"sweep_interval_minutes" toml:"sweep_interval_minutes" env:"SWEEP_INTERVAL_MINUTES" env-default:"10"`
	}

	HTTP struct {
		Port string `json:"port" toml:"port" env:"HTTP_PORT" env-default:"8080"`
	}

	DB struct {
		DatabaseURL       string `json:"database_url"     toml:"database_url"     env:"DATABASE_URL"`
		PoolMax           int32  `json:"pool_max" toml:"pool_max" env:"PG_POOL_MAX" env-default:"10"`
		ConnectTimeout    int    `json:"connect_timeout" toml:"connect_timeout" env:"PG_POOL_CONN_TIMEOUT" env-default:"5"`
		HealthCheckPeriod int    `json:"health_check_period" toml:"health_check_period" env:"PG_POOL_HEALTHCHECK" env-default:"1"`
	}

	Log struct {
		Level slog.Level `json:"level" toml:"level" env:"LOG_LEVEL"`
	}
)

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	_, b, _, _ := runtime.Caller(0)
	basePath := filepath.Dir(b)

	configTomlPath := filepath.Join(basePath, "config.toml")
	err := cleanenv.ReadConfig(configTomlPath, cfg)
	if err != nil {
		configJsonPath := filepath.Join(basePath, "config.json")
		err = cleanenv.ReadConfig(configJsonPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	err = cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, fmt.Errorf("env read error: %w", err)
	}

	return cfg, nil
}
