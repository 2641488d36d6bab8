// Package nodeconfig holds the on-disk configuration for a subnet
// consensus node: chain endpoints, identity file paths, and the
// tunables the epoch loop and incentives engine need.
package nodeconfig

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/naoina/toml"
)

// ScoringMode selects which Incentives Engine variant (§4.4) a node runs.
type ScoringMode string

const (
	ScoringBlockWeight ScoringMode = "block-weight"
	ScoringBlockAndRPS ScoringMode = "block-rps"
)

var (
	defaultBlockSecs         = 6 * time.Second
	defaultAttestationQuorum = 0.875
	defaultMaxAttestChecks   = 3
	defaultRPSConcurrency    = 4
	defaultScoringMode       = ScoringBlockWeight
	defaultRetryMinBackoff   = 4 * time.Second
	defaultRetryMaxBackoff   = 10 * time.Second
	defaultRetryMaxAttempts  = 4
)

// Config is the TOML-decoded configuration of a subnet-consensus node.
type Config struct {
	LocalRPC string `toml:",omitempty"` // ws(s):// endpoint of a local chain node
	DevRPC   string `toml:",omitempty"` // fallback endpoint used in dev/test networks

	SubnetPath string // on-chain subnet path, e.g. "bloom-560m"

	KeyFile    string `toml:",omitempty"` // overlay identity file (protobuf, libp2p format): peer-id and DHT signing key
	HotkeyFile string `toml:",omitempty"` // decoded but not read by cmd/subnetnode; extrinsics are signed with the --phrase-env key

	ListenAddr     string   `toml:",omitempty"` // multiaddr this node's overlay listens on
	BootstrapPeers []string `toml:",omitempty"` // explicit bootstrap multiaddrs
	BootstrapFile  string   `toml:",omitempty"` // fallback file, default "tmp/subnet-initial-peers"

	ScoringMode ScoringMode `toml:",omitempty"`

	BlockSecs         *time.Duration `toml:",omitempty"`
	AttestationQuorum *float64       `toml:",omitempty"`
	MaxAttestChecks   *int           `toml:",omitempty"`
	RPSConcurrency    *int           `toml:",omitempty"`

	RetryMinBackoff  *time.Duration `toml:",omitempty"`
	RetryMaxBackoff  *time.Duration `toml:",omitempty"`
	RetryMaxAttempts *int           `toml:",omitempty"`
}

// ApplyDefaults fills zero-valued fields, logging each one it touches.
// Mirrors the teacher's miner/minerconfig.ApplyDefaultMinerConfig shape.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		log.Warn("ApplyDefaults cfg == nil")
		return
	}
	if cfg.BootstrapFile == "" {
		cfg.BootstrapFile = "tmp/subnet-initial-peers"
		log.Info("ApplyDefaults", "BootstrapFile", cfg.BootstrapFile)
	}
	if cfg.ScoringMode == "" {
		cfg.ScoringMode = defaultScoringMode
		log.Info("ApplyDefaults", "ScoringMode", cfg.ScoringMode)
	}
	if cfg.BlockSecs == nil {
		cfg.BlockSecs = &defaultBlockSecs
		log.Info("ApplyDefaults", "BlockSecs", *cfg.BlockSecs)
	}
	if cfg.AttestationQuorum == nil {
		cfg.AttestationQuorum = &defaultAttestationQuorum
		log.Info("ApplyDefaults", "AttestationQuorum", *cfg.AttestationQuorum)
	}
	if cfg.MaxAttestChecks == nil {
		cfg.MaxAttestChecks = &defaultMaxAttestChecks
		log.Info("ApplyDefaults", "MaxAttestChecks", *cfg.MaxAttestChecks)
	}
	if cfg.RPSConcurrency == nil {
		cfg.RPSConcurrency = &defaultRPSConcurrency
		log.Info("ApplyDefaults", "RPSConcurrency", *cfg.RPSConcurrency)
	}
	if cfg.RetryMinBackoff == nil {
		cfg.RetryMinBackoff = &defaultRetryMinBackoff
		log.Info("ApplyDefaults", "RetryMinBackoff", *cfg.RetryMinBackoff)
	}
	if cfg.RetryMaxBackoff == nil {
		cfg.RetryMaxBackoff = &defaultRetryMaxBackoff
		log.Info("ApplyDefaults", "RetryMaxBackoff", *cfg.RetryMaxBackoff)
	}
	if cfg.RetryMaxAttempts == nil {
		cfg.RetryMaxAttempts = &defaultRetryMaxAttempts
		log.Info("ApplyDefaults", "RetryMaxAttempts", *cfg.RetryMaxAttempts)
	}
}

// Load reads and decodes a TOML config file, applying defaults afterward.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := new(Config)
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}
