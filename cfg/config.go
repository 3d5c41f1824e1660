// Package cfg is the TOML-backed configuration layer: a package-level
// Configuration value with defaults, CLI-flag overrides applied in Load,
// and a Validate pass separate from decoding.
package cfg

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// WorkersConfiguration controls the worker-sharded job pipeline.
type WorkersConfiguration struct {
	NumThreads  int `toml:"num_threads"`
	TxThreadID  int `toml:"tx_thread_id"`
	BucketCount int `toml:"bucket_count"`
	QueueDepth  int `toml:"queue_depth"`
}

// TablesConfiguration sizes the LockTable/TransactionTable. BucketSize and
// TreeRootSize are carried for wire-compatibility with older tuning knobs;
// xsync.MapOf needs neither (it grows its bucket array on demand), so they
// are decoded but neither validated nor used.
type TablesConfiguration struct {
	TransactionTableSize int `toml:"transaction_table_size"`
	LockTableSize        int `toml:"lock_table_size"`
	BucketSize           int `toml:"bucket_size"`
	TreeRootSize         int `toml:"tree_root_size"`
}

// KeyVaultConfiguration controls where the sealed ECDSA key pair lives.
// KeyOpt and MacOpt are reserved feature toggles; they are decoded but
// neither validated nor acted on, and no MAC-based capability variant
// exists.
type KeyVaultConfiguration struct {
	SealDir string `toml:"seal_dir"`
	KeyOpt  string `toml:"key_opt"`
	MacOpt  string `toml:"mac_opt"`
}

// LoggingConfiguration controls zerolog output.
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration controls the metrics endpoint.
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// RPCConfiguration controls the HTTP facade.
type RPCConfiguration struct {
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
}

// Configuration is the manager's complete configuration record.
type Configuration struct {
	Workers    WorkersConfiguration    `toml:"workers"`
	Tables     TablesConfiguration     `toml:"tables"`
	KeyVault   KeyVaultConfiguration   `toml:"keyvault"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	RPC        RPCConfiguration        `toml:"rpc"`
}

var (
	ConfigPathFlag = flag.String("config", "lockvault.toml", "Path to configuration file")
	KeyVaultFlag   = flag.String("keyvault-path", "", "KeyVault storage path (overrides config)")
	RPCPortFlag    = flag.Int("rpc-port", 0, "RPC bind port (overrides config)")
)

// Config is the process-wide configuration value Load populates.
var Config = &Configuration{
	Workers: WorkersConfiguration{
		NumThreads:  8,
		TxThreadID:  7,
		BucketCount: 1024,
		QueueDepth:  256,
	},
	Tables: TablesConfiguration{
		TransactionTableSize: 1024,
		LockTableSize:        4096,
		BucketSize:           16,
		TreeRootSize:         64,
	},
	KeyVault: KeyVaultConfiguration{
		SealDir: "./lockvault-data/keyvault",
		KeyOpt:  "ecdsa-p256",
		MacOpt:  "none",
	},
	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},
	Prometheus: PrometheusConfiguration{
		Enabled: true,
		Address: "0.0.0.0",
		Port:    9090,
	},
	RPC: RPCConfiguration{
		BindAddress: "0.0.0.0",
		Port:        8080,
	},
}

// Load decodes configPath into Config (if it exists; otherwise defaults
// stand) and applies CLI overrides.
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("cfg: decode %s: %w", configPath, err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("config file not found, using defaults")
		}
	}

	if *KeyVaultFlag != "" {
		Config.KeyVault.SealDir = *KeyVaultFlag
	}
	if *RPCPortFlag != 0 {
		Config.RPC.Port = *RPCPortFlag
	}

	return nil
}

// Validate checks Config for internal consistency, as a pass separate
// from decoding.
func Validate() error {
	if Config.Workers.NumThreads < 2 {
		return fmt.Errorf("cfg: workers.num_threads must be >= 2, got %d", Config.Workers.NumThreads)
	}
	if Config.Workers.TxThreadID < 0 || Config.Workers.TxThreadID >= Config.Workers.NumThreads {
		Config.Workers.TxThreadID = Config.Workers.NumThreads - 1
		log.Info().Int("tx_thread_id", Config.Workers.TxThreadID).Msg("defaulted registration worker to last thread")
	}
	if Config.RPC.Port < 1 || Config.RPC.Port > 65535 {
		return fmt.Errorf("cfg: invalid rpc port: %d", Config.RPC.Port)
	}
	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("cfg: invalid prometheus port: %d", Config.Prometheus.Port)
	}
	if Config.KeyVault.SealDir == "" {
		return fmt.Errorf("cfg: keyvault.seal_dir must not be empty")
	}
	return nil
}
