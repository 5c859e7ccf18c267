// Package config loads the process-wide Archon 72 configuration, mirroring
// the recognized options of spec section 6.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config bundles every recognized runtime option for the governance engine.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDSN       string `toml:"DataDSN"`

	Conclave   ConclaveConfig   `toml:"Conclave"`
	Fates      FatesConfig      `toml:"Fates"`
	RateLimits RateLimitConfig  `toml:"RateLimits"`
	Ledger     LedgerConfig     `toml:"Ledger"`
	JobQueue   JobQueueConfig   `toml:"JobQueue"`
	Auth       AuthConfig       `toml:"Auth"`
}

// AuthConfig controls operator bearer-token authentication on the halt
// trigger/restore endpoints (spec section 6).
type AuthConfig struct {
	Enabled    bool   `toml:"Enabled"`
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
}

// ConclaveConfig controls the Parliamentary Deliberation Orchestrator.
type ConclaveConfig struct {
	DebateRounds                  int     `toml:"DebateRounds"`
	VotingConcurrency             int     `toml:"VotingConcurrency"`
	SupermajorityNumerator        int     `toml:"SupermajorityNumerator"`
	SupermajorityDenominator      int     `toml:"SupermajorityDenominator"`
	ConsensusBreakThreshold       float64 `toml:"ConsensusBreakThreshold"`
	RedTeamCount                  int     `toml:"RedTeamCount"`
	ThreeChannelVoteValidation    bool    `toml:"ThreeChannelVoteValidation"`
	ReconciliationTimeoutSeconds  int     `toml:"ReconciliationTimeoutSeconds"`
}

// FatesConfig controls the Three-Fates petition deliberation state machine.
type FatesConfig struct {
	MaxDeliberationRounds int `toml:"MaxDeliberationRounds"`
	DeliberationTimeoutSecs int `toml:"DeliberationTimeoutSecs"`
	ReferralDeadlineCycles int `toml:"ReferralDeadlineCycles"`
	ReferralMaxExtensions  int `toml:"ReferralMaxExtensions"`
}

// RateLimitConfig controls petition intake throttling.
type RateLimitConfig struct {
	PerHourPerSubmitter      int `toml:"PerHourPerSubmitter"`
	CosignPerHourPerSigner   int `toml:"CosignPerHourPerSigner"`
}

// LedgerConfig controls ledger write-time validation.
type LedgerConfig struct {
	ClockDriftThresholdSeconds int `toml:"ClockDriftThresholdSeconds"`
}

// JobQueueConfig controls the durable job runner.
type JobQueueConfig struct {
	MaxAttempts    int `toml:"MaxAttempts"`
	PollBatchSize  int `toml:"PollBatchSize"`
}

// Default returns the documented defaults of spec section 6.
func Default() *Config {
	return &Config{
		ListenAddress: ":7072",
		DataDSN:       "postgres://localhost:5432/archon72?sslmode=disable",
		Conclave: ConclaveConfig{
			DebateRounds:                 3,
			VotingConcurrency:            1,
			SupermajorityNumerator:       2,
			SupermajorityDenominator:     3,
			ConsensusBreakThreshold:      0.85,
			RedTeamCount:                 5,
			ThreeChannelVoteValidation:   false,
			ReconciliationTimeoutSeconds: 30,
		},
		Fates: FatesConfig{
			MaxDeliberationRounds:   3,
			DeliberationTimeoutSecs: 5 * 60,
			ReferralDeadlineCycles:  3,
			ReferralMaxExtensions:   2,
		},
		RateLimits: RateLimitConfig{
			PerHourPerSubmitter:    10,
			CosignPerHourPerSigner: 50,
		},
		Ledger: LedgerConfig{
			ClockDriftThresholdSeconds: 5,
		},
		JobQueue: JobQueueConfig{
			MaxAttempts:   3,
			PollBatchSize: 20,
		},
		Auth: AuthConfig{
			Enabled: false,
		},
	}
}

// Load reads the configuration from path, creating a default file if one
// does not yet exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create default %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: write default %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that would make the supermajority rule or
// debate schedule nonsensical.
func (c *Config) Validate() error {
	if c.Conclave.SupermajorityDenominator <= 0 {
		return fmt.Errorf("config: Conclave.SupermajorityDenominator must be positive")
	}
	if c.Conclave.SupermajorityNumerator <= 0 || c.Conclave.SupermajorityNumerator > c.Conclave.SupermajorityDenominator {
		return fmt.Errorf("config: Conclave.SupermajorityNumerator must be in (0, Denominator]")
	}
	if c.Conclave.DebateRounds < 0 {
		return fmt.Errorf("config: Conclave.DebateRounds must be >= 0")
	}
	if c.Conclave.VotingConcurrency < 0 {
		return fmt.Errorf("config: Conclave.VotingConcurrency must be >= 0 (0 = unlimited)")
	}
	if c.Fates.MaxDeliberationRounds <= 0 {
		return fmt.Errorf("config: Fates.MaxDeliberationRounds must be positive")
	}
	if c.JobQueue.MaxAttempts <= 0 {
		return fmt.Errorf("config: JobQueue.MaxAttempts must be positive")
	}
	return nil
}
