package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
	"votevault/pkg/log"
)

const (
	// MaxReceiptsToRender caps how many receipt PDFs a single run writes to disk.
	MaxReceiptsToRender = 10

	// EnvFieldKey holds the hex-encoded process-wide symmetric key.
	EnvFieldKey = "VOTEVAULT_FIELD_KEY"
	// EnvKeyDir overrides the directory holding the authority key material.
	EnvKeyDir = "VOTEVAULT_KEY_DIR"
)

// Mode is the deployment mode. It decides whether missing key material may be generated.
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeDevelopment Mode = "development"
)

// Config holds all parameters for a tallying authority process.
type Config struct {
	Mode        Mode   `toml:"mode"`
	KeyDir      string `toml:"key_dir"`
	FieldKeyHex string `toml:"-"`          // only ever read from the environment
	StorePath   string `toml:"store_path"` // empty selects the in-memory store

	Voters         uint64 `toml:"voters"`
	EligibleVoters uint64 `toml:"eligible_voters"`
	Candidates     uint64 `toml:"candidates"`
	CorruptVotes   uint64 `toml:"corrupt_votes"`
	ElectionType   string `toml:"election_type"`
	NetworkID      uint64 `toml:"network_id"`

	Cores        int    `toml:"cores"`
	Seed         string `toml:"seed"`
	LogLevel     string `toml:"log_level"`
	LogFormat    string `toml:"log_format"`
	ReceiptsPath string `toml:"receipts_path"`
	ResultsPath  string `toml:"results_path"`
	Receipts     int    `toml:"receipts"` // how many receipts to render as PDF
	PrintMetrics bool   `toml:"print_metrics"`
}

// Default returns a development configuration with an in-memory store.
func Default() *Config {
	return &Config{
		Mode:           ModeDevelopment,
		KeyDir:         "keys",
		Voters:         100,
		EligibleVoters: 120,
		Candidates:     3,
		ElectionType:   "General",
		NetworkID:      31337,
		Cores:          runtime.NumCPU(),
		LogLevel:       "info",
		LogFormat:      "text",
		ReceiptsPath:   "output/receipts/",
		ResultsPath:    "output/results/",
	}
}

// NewConfig creates a new Config by parsing command-line flags, an optional
// TOML file and the environment. It exits on invalid input.
func NewConfig() *Config {
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// Parse builds a Config from the given arguments. Values are applied in this
// order, later ones winning: defaults, the TOML file named by -config, explicit
// flags, environment variables.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Default()

	configPath := fs.String("config", "", "Optional TOML configuration file.")
	mode := fs.String("mode", string(cfg.Mode), "Deployment mode (production, development).")
	keyDir := fs.String("keys", cfg.KeyDir, "Directory holding the authority key material.")
	storePath := fs.String("store", cfg.StorePath, "bbolt database file; empty uses the in-memory store.")
	voters := fs.Uint64("voters", cfg.Voters, "Number of voters casting a ballot.")
	eligible := fs.Uint64("eligible", cfg.EligibleVoters, "Number of eligible voters.")
	candidates := fs.Uint64("candidates", cfg.Candidates, "Number of candidates.")
	corrupt := fs.Uint64("corrupt", cfg.CorruptVotes, "Number of stored envelopes to corrupt before the tally.")
	electionType := fs.String("election-type", cfg.ElectionType, "Election type recorded in the result metadata.")
	networkID := fs.Uint64("network-id", cfg.NetworkID, "Network id recorded with result anchoring data.")
	cores := fs.Int("cores", cfg.Cores, "Number of workers used to decrypt envelopes.")
	seed := fs.String("seed", cfg.Seed, "Seed for reproducible randomness; empty uses the system source.")
	logLevel := fs.String("log-level", cfg.LogLevel, "Set log level (trace, debug, info, warn, error).")
	logFormat := fs.String("log-format", cfg.LogFormat, "Log output format (text, json).")
	receiptsPath := fs.String("receipts", cfg.ReceiptsPath, "Path for storing rendered receipts.")
	resultsPath := fs.String("results", cfg.ResultsPath, "Path for storing result exports.")
	receipts := fs.Int("render-receipts", cfg.Receipts, "Number of receipts to render as PDF.")
	printMetrics := fs.Bool("print-metrics", cfg.PrintMetrics, "Whether to print stage timings after the run.")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := LoadFile(*configPath, cfg); err != nil {
			return nil, err
		}
	}

	// Explicitly set flags override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = Mode(*mode)
		case "keys":
			cfg.KeyDir = *keyDir
		case "store":
			cfg.StorePath = *storePath
		case "voters":
			cfg.Voters = *voters
		case "eligible":
			cfg.EligibleVoters = *eligible
		case "candidates":
			cfg.Candidates = *candidates
		case "corrupt":
			cfg.CorruptVotes = *corrupt
		case "election-type":
			cfg.ElectionType = *electionType
		case "network-id":
			cfg.NetworkID = *networkID
		case "cores":
			cfg.Cores = *cores
		case "seed":
			cfg.Seed = *seed
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "receipts":
			cfg.ReceiptsPath = *receiptsPath
		case "results":
			cfg.ResultsPath = *resultsPath
		case "render-receipts":
			cfg.Receipts = *receipts
		case "print-metrics":
			cfg.PrintMetrics = *printMetrics
		}
	})

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setLogLevel(cfg.LogLevel)
	format, _ := log.ParseFormat(cfg.LogFormat)
	log.SetFormat(format)
	log.Debug("Config: %s", cfg)
	return cfg, nil
}

// LoadFile overlays the values found in a TOML file onto cfg.
func LoadFile(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvFieldKey); v != "" {
		c.FieldKeyHex = v
	}
	if v := os.Getenv(EnvKeyDir); v != "" {
		c.KeyDir = v
	}
}

// Validate checks the configuration for values the process cannot run with.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeProduction, ModeDevelopment:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.KeyDir == "" {
		return fmt.Errorf("key directory must be set")
	}
	if c.Candidates < 2 {
		return fmt.Errorf("at least 2 candidates required, got %d", c.Candidates)
	}
	if c.Voters > c.EligibleVoters {
		return fmt.Errorf("voters (%d) exceed eligible voters (%d)", c.Voters, c.EligibleVoters)
	}
	if c.CorruptVotes > c.Voters {
		return fmt.Errorf("corrupt votes (%d) exceed voters (%d)", c.CorruptVotes, c.Voters)
	}
	if _, ok := log.ParseFormat(c.LogFormat); !ok {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.Cores < 1 {
		c.Cores = 1
	}
	return nil
}

// AllowKeyGeneration reports whether missing key material may be created on startup.
func (c *Config) AllowKeyGeneration() bool {
	return c.Mode == ModeDevelopment
}

// String returns a string representation of the Config instance. Secrets are not printed.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode:%s KeyDir:%s Store:%q Voters:%d Eligible:%d Candidates:%d "+
		"Corrupt:%d ElectionType:%s NetworkID:%d Cores:%d Seeded:%t LogLevel:%s Receipts:%s Results:%s}",
		c.Mode, c.KeyDir, c.StorePath, c.Voters, c.EligibleVoters, c.Candidates,
		c.CorruptVotes, c.ElectionType, c.NetworkID, c.Cores, c.Seed != "", c.LogLevel,
		c.ReceiptsPath, c.ResultsPath)
}

// EnsureDirectory creates path if necessary and returns its cleaned form.
func EnsureDirectory(path string) (string, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return path, nil
}

// setLogLevel sets the global log level, defaulting to "info" on invalid input.
func setLogLevel(logLevel string) {
	level, ok := log.ParseLevel(logLevel)
	if !ok {
		log.Info("Unknown log level '%s', defaulting to 'info'", logLevel)
	}
	log.SetLevel(level)
}
