package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, for example
// VAULTSEAL_CRYPTO_PROFILE or VAULTSEAL_LOG_LEVEL.
const EnvPrefix = "VAULTSEAL"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the default
// locations and falls back to defaults when none exists.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	return &Loader{
		configPath: configPath,
		v:          v,
	}
}

// Viper exposes the underlying instance so command flags can be bound to it.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// ConfigFile returns the file that was loaded, if any.
func (l *Loader) ConfigFile() string {
	return l.configPath
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	if l.configPath == "" {
		for _, path := range defaultPaths() {
			if _, err := os.Stat(path); err == nil {
				l.configPath = path
				break
			}
		}
	}

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultPaths returns default config file locations.
func defaultPaths() []string {
	paths := []string{
		"vaultseal.yaml",
		"vaultseal.json",
		".vaultseal.yaml",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "vaultseal", "config.yaml"),
			filepath.Join(homeDir, ".config", "vaultseal", "config.json"),
		)
	}

	return paths
}

// setDefaults registers every key so environment overrides apply even when
// no config file mentions them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("crypto.profile", d.Crypto.Profile)
	v.SetDefault("crypto.memory_kib", d.Crypto.MemoryKiB)
	v.SetDefault("crypto.iterations", d.Crypto.Iterations)
	v.SetDefault("crypto.parallelism", d.Crypto.Parallelism)
	v.SetDefault("crypto.batch_concurrency", d.Crypto.BatchConcurrency)
	v.SetDefault("crypto.verify_min_duration", d.Crypto.VerifyMinDuration)
	v.SetDefault("crypto.max_plaintext_size", d.Crypto.MaxPlaintextSize)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.dir", d.Store.Dir)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.s3_bucket", d.Store.S3Bucket)
	v.SetDefault("store.s3_prefix", d.Store.S3Prefix)
	v.SetDefault("store.s3_region", d.Store.S3Region)
	v.SetDefault("store.retries", d.Store.Retries)
	v.SetDefault("store.retry_delay", d.Store.RetryDelay)
	v.SetDefault("store.retry_max_delay", d.Store.RetryMaxDelay)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.color", d.Log.Color)

	v.SetDefault("policy.min_length", d.Policy.MinLength)
	v.SetDefault("policy.min_score", d.Policy.MinScore)
	v.SetDefault("policy.enforce", d.Policy.Enforce)
}

// SaveExample writes an example config file. The format follows the file
// extension: .json for JSON, anything else for YAML.
func SaveExample(path string) error {
	cfg := DefaultConfig()

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		data = append(out, '\n')
	default:
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		header := "# vaultseal configuration file\n" +
			"# Environment variables override these settings using the " + EnvPrefix + "_ prefix\n" +
			"# For example: " + EnvPrefix + "_LOG_LEVEL=debug\n\n"
		data = append([]byte(header), out...)
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("write file: %w", os.ErrExist)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat file: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
