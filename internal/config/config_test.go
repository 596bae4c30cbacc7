package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-authority/internal/genesis"
	"swap-authority/internal/solana"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, solana.CommitmentFinalized, cfg.Solana.Commitment)
	assert.Equal(t, 500, cfg.Solana.PageSize)

	require.Len(t, cfg.Genesis.Mints, 1)
	assert.Equal(t, uint8(9), cfg.Genesis.Mints[0].Decimals)
	require.Len(t, cfg.Genesis.Accounts, 1)
	assert.Equal(t, genesis.ProgramOwner, cfg.Genesis.Accounts[0].Owner)
	assert.Equal(t, genesis.Token2022Program, cfg.Genesis.Accounts[0].TokenProgram)

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateChain(true))

	id, err := cfg.ProgramID()
	require.NoError(t, err)
	assert.Equal(t, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", id.String())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unknown_section:\n  x: 1\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err, "unknown keys are rejected")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	// Only the program id is missing.
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "program.id")

	cfg.Program.ID = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	assert.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateChain(false), "rpc endpoint is required")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SWAP_PROGRAM_ID":       "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		"SWAP_STORAGE_BACKEND":  BackendPostgres,
		"POSTGRES_DSN":          "postgres://localhost/swap",
		"SWAP_SHUTDOWN_TIMEOUT": "5s",
		"SOLANA_PAGE_SIZE":      "50",
		"SWAP_LOG_LEVEL":        "",
	}))
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/swap", cfg.Storage.PostgresDSN)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 50, cfg.Solana.PageSize)
	assert.Equal(t, "info", cfg.Log.Level, "empty values do not override")

	assert.Error(t, Default().ApplyEnv(envMap(map[string]string{"SWAP_SHUTDOWN_TIMEOUT": "soon"})))
	assert.Error(t, Default().ApplyEnv(envMap(map[string]string{"SOLANA_PAGE_SIZE": "many"})))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Program.ID = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
		cfg.Solana.RPCEndpoint = "http://localhost:8899"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		chain  bool
	}{
		{"bad program id", func(c *Config) { c.Program.ID = "xyz" }, false},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }, false},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, false},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, false},
		{"bad genesis", func(c *Config) { c.Genesis.Mints = []genesis.MintSpec{{Address: "bad"}} }, false},
		{"bad commitment", func(c *Config) { c.Solana.Commitment = "final" }, true},
		{"page size too large", func(c *Config) { c.Solana.PageSize = 5000 }, true},
		{"no rpc endpoint", func(c *Config) { c.Solana.RPCEndpoint = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			require.NoError(t, cfg.Validate())
			require.NoError(t, cfg.ValidateChain(false))

			tt.mutate(cfg)
			if tt.chain {
				assert.Error(t, cfg.ValidateChain(false))
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}

	assert.Error(t, valid().ValidateChain(true), "live mode needs the ws endpoint")
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("SWAP_HTTP_ADDR", ":1234")
	os.Unsetenv("SWAP_LOG_LEVEL")
	t.Cleanup(func() { os.Unsetenv("SWAP_LOG_LEVEL") })

	require.NoError(t, LoadDotEnv(filepath.Join("testdata", "test.env"), filepath.Join("testdata", "absent.env")))

	assert.Equal(t, "warn", os.Getenv("SWAP_LOG_LEVEL"))
	assert.Equal(t, ":1234", os.Getenv("SWAP_HTTP_ADDR"), "existing variables win")
}

func TestResolve(t *testing.T) {
	t.Setenv("SWAP_HTTP_ADDR", ":7100")

	cfg, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, ":7100", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)

	cfg, err = Resolve(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7100", cfg.Server.Addr, "environment wins over the file")
	assert.Equal(t, "debug", cfg.Log.Level)

	t.Setenv("SOLANA_PAGE_SIZE", "many")
	_, err = Resolve("")
	assert.Error(t, err)

	_, err = Resolve(filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)
}
