package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetConfig() {
	Config = &Configuration{
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
		KeyVault:   KeyVaultConfiguration{SealDir: "./lockvault-data/keyvault", KeyOpt: "ecdsa-p256", MacOpt: "none"},
		Logging:    LoggingConfiguration{Format: "console"},
		Prometheus: PrometheusConfiguration{Enabled: true, Address: "0.0.0.0", Port: 9090},
		RPC:        RPCConfiguration{BindAddress: "0.0.0.0", Port: 8080},
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	resetConfig()
	assert.NoError(t, Validate())
}

func TestValidate_RejectsTooFewThreads(t *testing.T) {
	resetConfig()
	Config.Workers.NumThreads = 1
	assert.Error(t, Validate())
}

func TestValidate_DefaultsOutOfRangeTxThreadID(t *testing.T) {
	resetConfig()
	Config.Workers.TxThreadID = 99
	require.NoError(t, Validate())
	assert.Equal(t, Config.Workers.NumThreads-1, Config.Workers.TxThreadID)
}

func TestValidate_RejectsEmptyKeyVaultPath(t *testing.T) {
	resetConfig()
	Config.KeyVault.SealDir = ""
	assert.Error(t, Validate())
}

func TestLoad_DecodesTOMLFile(t *testing.T) {
	resetConfig()
	dir := t.TempDir()
	path := filepath.Join(dir, "lockvault.toml")
	contents := `
[workers]
num_threads = 4

[rpc]
port = 9999
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	require.NoError(t, Load(path))
	assert.Equal(t, 4, Config.Workers.NumThreads)
	assert.Equal(t, 9999, Config.RPC.Port)
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	resetConfig()
	require.NoError(t, Load(filepath.Join(t.TempDir(), "nonexistent.toml")))
	assert.Equal(t, 8, Config.Workers.NumThreads)
}
