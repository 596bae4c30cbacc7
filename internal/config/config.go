// Package config loads runtime settings from a YAML file, a .env file and
// the environment, in increasing order of precedence. Command-line flags in
// cmd/ take the loaded values as their defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"swap-authority/internal/address"
	"swap-authority/internal/genesis"
	"swap-authority/internal/solana"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Log configures the zerolog logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Program identifies the exchange program.
type Program struct {
	ID string `yaml:"id"`
}

// Storage selects where the ledger and event history live.
type Storage struct {
	Backend       string `yaml:"backend"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"` // optional analytics copy of events
}

// Server configures the HTTP API.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Solana configures access to a deployed program.
type Solana struct {
	RPCEndpoint string `yaml:"rpc_endpoint"`
	WSEndpoint  string `yaml:"ws_endpoint"`
	Commitment  string `yaml:"commitment"`
	PageSize    int    `yaml:"page_size"`
}

// Config collects every setting.
type Config struct {
	Log     Log            `yaml:"log"`
	Program Program        `yaml:"program"`
	Storage Storage        `yaml:"storage"`
	Server  Server         `yaml:"server"`
	Solana  Solana         `yaml:"solana"`
	Genesis genesis.Config `yaml:"genesis"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Log:     Log{Level: "info", Format: "json"},
		Storage: Storage{Backend: BackendMemory},
		Server:  Server{Addr: ":8080", ShutdownTimeout: 30 * time.Second},
		Solana:  Solana{Commitment: solana.CommitmentConfirmed, PageSize: 1000},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// Resolve loads path, or the defaults when path is empty, and applies the
// process environment on top.
func Resolve(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given files (".env" if none) without
// overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from environment variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SWAP_LOG_LEVEL":       &c.Log.Level,
		"SWAP_LOG_FORMAT":      &c.Log.Format,
		"SWAP_PROGRAM_ID":      &c.Program.ID,
		"SWAP_STORAGE_BACKEND": &c.Storage.Backend,
		"POSTGRES_DSN":         &c.Storage.PostgresDSN,
		"CLICKHOUSE_DSN":       &c.Storage.ClickhouseDSN,
		"SWAP_HTTP_ADDR":       &c.Server.Addr,
		"SOLANA_RPC_ENDPOINT":  &c.Solana.RPCEndpoint,
		"SOLANA_WS_ENDPOINT":   &c.Solana.WSEndpoint,
		"SOLANA_COMMITMENT":    &c.Solana.Commitment,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("SWAP_SHUTDOWN_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SWAP_SHUTDOWN_TIMEOUT: %w", err)
		}
		c.Server.ShutdownTimeout = d
	}
	if v, ok := lookup("SOLANA_PAGE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SOLANA_PAGE_SIZE: %w", err)
		}
		c.Solana.PageSize = n
	}
	return nil
}

// ProgramID parses the configured program id.
func (c *Config) ProgramID() (address.Pubkey, error) {
	if c.Program.ID == "" {
		return address.Pubkey{}, errors.New("program id is required")
	}
	return address.ParsePubkey(c.Program.ID)
}

// Validate checks the settings every binary needs.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.ProgramID(); err != nil {
		errs = append(errs, fmt.Errorf("program.id: %w", err))
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unsupported %q", c.Log.Format))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unsupported %q", c.Storage.Backend))
	}

	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	if err := c.Genesis.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ValidateChain checks the settings needed to read a deployed program.
// live additionally requires the WebSocket endpoint.
func (c *Config) ValidateChain(live bool) error {
	var errs []error

	if c.Solana.RPCEndpoint == "" {
		errs = append(errs, errors.New("solana.rpc_endpoint is required"))
	}
	if live && c.Solana.WSEndpoint == "" {
		errs = append(errs, errors.New("solana.ws_endpoint is required"))
	}

	switch c.Solana.Commitment {
	case solana.CommitmentProcessed, solana.CommitmentConfirmed, solana.CommitmentFinalized:
	default:
		errs = append(errs, fmt.Errorf("solana.commitment: unsupported %q", c.Solana.Commitment))
	}

	if c.Solana.PageSize <= 0 || c.Solana.PageSize > 1000 {
		errs = append(errs, fmt.Errorf("solana.page_size: must be in [1, 1000], got %d", c.Solana.PageSize))
	}

	return errors.Join(errs...)
}
