package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	ModeMock = "mock"
	ModeLive = "live"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Store string
	PGDSN string

	RPCURL               string
	ExecutionMode        string
	RelayerKey           string
	PoolContract         string
	ChainID              uint64
	ReceiptConfirmations uint64
	ExecTimeout          time.Duration

	NavInterval         time.Duration
	FeeInterval         time.Duration
	SettlementInterval  time.Duration
	SettlementBatchSize int
	NavEnabled          bool
	FeeEnabled          bool
	SettlementEnabled   bool
	RunOnStart          bool

	ManagementFeeBps     int64
	SwapStaleAfter       time.Duration
	ProcessingStaleAfter time.Duration

	ResultsOut  string
	RunState    string
	MetricsAddr string

	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SETTLER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", StorePostgres)
	v.SetDefault("execution-mode", ModeMock)
	v.SetDefault("receipt-confirmations", uint64(1))
	v.SetDefault("exec-timeout", 2*time.Minute)
	v.SetDefault("nav-interval", time.Hour)
	v.SetDefault("fee-interval", 24*time.Hour)
	v.SetDefault("settlement-interval", time.Hour)
	v.SetDefault("settlement-batch-size", 10)
	v.SetDefault("nav-enabled", true)
	v.SetDefault("fee-enabled", true)
	v.SetDefault("settlement-enabled", true)
	v.SetDefault("run-on-start", true)
	v.SetDefault("management-fee-bps", int64(200))
	v.SetDefault("swap-stale-after", 30*time.Minute)
	v.SetDefault("processing-stale-after", 15*time.Minute)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Store:                strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		PGDSN:                v.GetString("pg-dsn"),
		RPCURL:               v.GetString("rpc"),
		ExecutionMode:        strings.ToLower(strings.TrimSpace(v.GetString("execution-mode"))),
		RelayerKey:           v.GetString("relayer-key"),
		PoolContract:         v.GetString("pool-contract"),
		ChainID:              v.GetUint64("chain-id"),
		ReceiptConfirmations: v.GetUint64("receipt-confirmations"),
		ExecTimeout:          v.GetDuration("exec-timeout"),
		NavInterval:          v.GetDuration("nav-interval"),
		FeeInterval:          v.GetDuration("fee-interval"),
		SettlementInterval:   v.GetDuration("settlement-interval"),
		SettlementBatchSize:  v.GetInt("settlement-batch-size"),
		NavEnabled:           v.GetBool("nav-enabled"),
		FeeEnabled:           v.GetBool("fee-enabled"),
		SettlementEnabled:    v.GetBool("settlement-enabled"),
		RunOnStart:           v.GetBool("run-on-start"),
		ManagementFeeBps:     v.GetInt64("management-fee-bps"),
		SwapStaleAfter:       v.GetDuration("swap-stale-after"),
		ProcessingStaleAfter: v.GetDuration("processing-stale-after"),
		ResultsOut:           v.GetString("results-out"),
		RunState:             v.GetString("run-state"),
		MetricsAddr:          v.GetString("metrics-addr"),
		MaxRetries:           v.GetInt("max-retries"),
		RetryBackoff:         v.GetDuration("retry-backoff"),
		LogLevel:             v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks values that would make every cycle fail. Missing live-mode
// credentials are not an error here; the executor reports them per cycle.
func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for store %q", c.Store)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	switch c.ExecutionMode {
	case ModeMock:
	case ModeLive:
		if c.RPCURL == "" {
			return fmt.Errorf("rpc is required for execution-mode live")
		}
	default:
		return fmt.Errorf("unknown execution-mode %q", c.ExecutionMode)
	}

	intervals := map[string]time.Duration{
		"nav-interval":           c.NavInterval,
		"fee-interval":           c.FeeInterval,
		"settlement-interval":    c.SettlementInterval,
		"exec-timeout":           c.ExecTimeout,
		"swap-stale-after":       c.SwapStaleAfter,
		"processing-stale-after": c.ProcessingStaleAfter,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.SettlementBatchSize < 1 {
		return fmt.Errorf("settlement-batch-size must be at least 1, got %d", c.SettlementBatchSize)
	}
	if c.ManagementFeeBps < 0 {
		return fmt.Errorf("management-fee-bps must not be negative")
	}
	return nil
}
