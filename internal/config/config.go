package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheMichaelB/vaultseal/internal/crypto"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config holds all application configuration.
type Config struct {
	Crypto CryptoConfig `json:"crypto" yaml:"crypto" mapstructure:"crypto"`
	Store  StoreConfig  `json:"store" yaml:"store" mapstructure:"store"`
	Log    LogConfig    `json:"log" yaml:"log" mapstructure:"log"`
	Policy PolicyConfig `json:"policy" yaml:"policy" mapstructure:"policy"`
}

// CryptoConfig selects the key derivation cost. When all three custom
// fields are zero the named profile is used.
type CryptoConfig struct {
	Profile     string `json:"profile" yaml:"profile" mapstructure:"profile"`
	MemoryKiB   uint32 `json:"memory_kib,omitempty" yaml:"memory_kib,omitempty" mapstructure:"memory_kib"`
	Iterations  uint32 `json:"iterations,omitempty" yaml:"iterations,omitempty" mapstructure:"iterations"`
	Parallelism uint32 `json:"parallelism,omitempty" yaml:"parallelism,omitempty" mapstructure:"parallelism"`

	BatchConcurrency  int           `json:"batch_concurrency" yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	VerifyMinDuration time.Duration `json:"verify_min_duration" yaml:"verify_min_duration" mapstructure:"verify_min_duration"`
	MaxPlaintextSize  int           `json:"max_plaintext_size" yaml:"max_plaintext_size" mapstructure:"max_plaintext_size"`
}

// StoreConfig selects where envelopes are kept.
type StoreConfig struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"` // memory, file, sqlite, s3
	Dir     string `json:"dir" yaml:"dir" mapstructure:"dir"`             // file backend
	Path    string `json:"path" yaml:"path" mapstructure:"path"`          // sqlite backend

	S3Bucket string `json:"s3_bucket,omitempty" yaml:"s3_bucket,omitempty" mapstructure:"s3_bucket"`
	S3Prefix string `json:"s3_prefix,omitempty" yaml:"s3_prefix,omitempty" mapstructure:"s3_prefix"`
	S3Region string `json:"s3_region,omitempty" yaml:"s3_region,omitempty" mapstructure:"s3_region"`

	// Retry transient failures of the sqlite and s3 backends.
	Retries       int           `json:"retries" yaml:"retries" mapstructure:"retries"`
	RetryDelay    time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`
	RetryMaxDelay time.Duration `json:"retry_max_delay" yaml:"retry_max_delay" mapstructure:"retry_max_delay"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format" mapstructure:"format"` // text, json
	File   string `json:"file" yaml:"file" mapstructure:"file"`       // empty = stderr
	Color  bool   `json:"color" yaml:"color" mapstructure:"color"`
}

// PolicyConfig for password strength checks in the CLI and service.
type PolicyConfig struct {
	MinLength int  `json:"min_length" yaml:"min_length" mapstructure:"min_length"`
	MinScore  int  `json:"min_score" yaml:"min_score" mapstructure:"min_score"` // zxcvbn 0-4
	Enforce   bool `json:"enforce" yaml:"enforce" mapstructure:"enforce"`       // reject instead of warn
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".vaultseal"

	return &Config{
		Crypto: CryptoConfig{
			Profile:           crypto.DefaultProfile.String(),
			BatchConcurrency:  4,
			VerifyMinDuration: 100 * time.Millisecond,
			MaxPlaintextSize:  crypto.DefaultMaxPlaintextSize,
		},
		Store: StoreConfig{
			Backend: BackendFile,
			Dir:     filepath.Join(dataDir, "secrets"),
			Path:    filepath.Join(dataDir, "secrets.db"),

			Retries:       3,
			RetryDelay:    200 * time.Millisecond,
			RetryMaxDelay: 2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
		Policy: PolicyConfig{
			MinLength: 8,
			MinScore:  2,
			Enforce:   false,
		},
	}
}

// HasCustomCost reports whether explicit Argon2id parameters were set.
func (c CryptoConfig) HasCustomCost() bool {
	return c.MemoryKiB != 0 || c.Iterations != 0 || c.Parallelism != 0
}

// Cost resolves the configured Argon2id cost and validates it.
func (c CryptoConfig) Cost() (crypto.KDFCost, error) {
	if c.HasCustomCost() {
		cost := crypto.KDFCost{MemoryKiB: c.MemoryKiB, Iterations: c.Iterations, Parallelism: c.Parallelism}
		if err := crypto.ValidateCost(cost); err != nil {
			return cost, err
		}
		return cost, nil
	}

	p, err := crypto.ParseProfile(c.Profile)
	if err != nil {
		return crypto.KDFCost{}, err
	}
	cost := p.Params()
	return cost, crypto.ValidateCost(cost)
}

// NewEngine builds the engine described by c.
func (c CryptoConfig) NewEngine() (*crypto.CryptoEngine, error) {
	var engine *crypto.CryptoEngine
	if c.HasCustomCost() {
		cost, err := c.Cost()
		if err != nil {
			return nil, err
		}
		if engine, err = crypto.NewEngineWithParams(cost); err != nil {
			return nil, err
		}
	} else {
		p, err := crypto.ParseProfile(c.Profile)
		if err != nil {
			return nil, err
		}
		engine = crypto.NewEngine(p)
	}

	if c.BatchConcurrency > 0 {
		engine = engine.WithBatchConcurrency(c.BatchConcurrency)
	}
	return engine, nil
}

// Validate checks configuration validity. Key derivation parameters are
// checked here so a bad configuration fails at startup.
func (c *Config) Validate() error {
	if _, err := c.Crypto.Cost(); err != nil {
		return fmt.Errorf("crypto: %w", err)
	}

	if c.Crypto.BatchConcurrency < 0 {
		return errors.New("crypto.batch_concurrency must not be negative")
	}

	if c.Crypto.VerifyMinDuration < 0 {
		return errors.New("crypto.verify_min_duration must not be negative")
	}

	if c.Crypto.MaxPlaintextSize <= 0 {
		return errors.New("crypto.max_plaintext_size must be positive")
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.Dir == "" {
			return errors.New("store.dir is required for the file backend")
		}
	case BackendSQLite:
		if c.Store.Path == "" {
			return errors.New("store.path is required for the sqlite backend")
		}
	case BackendS3:
		if c.Store.S3Bucket == "" {
			return errors.New("store.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}

	if c.Store.Retries < 0 {
		return errors.New("store.retries must not be negative")
	}
	if c.Store.RetryDelay < 0 || c.Store.RetryMaxDelay < 0 {
		return errors.New("store retry delays must not be negative")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	if c.Policy.MinLength < 0 {
		return errors.New("policy.min_length must not be negative")
	}
	if c.Policy.MinScore < 0 || c.Policy.MinScore > 4 {
		return fmt.Errorf("policy.min_score %d outside [0, 4]", c.Policy.MinScore)
	}

	return nil
}

// EnsureDirectories creates directories the configured backend writes to.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	switch c.Store.Backend {
	case BackendFile:
		dirs = append(dirs, c.Store.Dir)
	case BackendSQLite:
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
