package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultseal/internal/config"
	"github.com/TheMichaelB/vaultseal/internal/crypto"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	return rootCmd.Execute()
}

// Flags bound in setup must override env and file values. The env case runs
// first because pflag keeps a flag marked as changed across executions.
func TestRootSetupBindsFlags(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	t.Run("env override", func(t *testing.T) {
		t.Setenv("VAULTSEAL_CRYPTO_PROFILE", "fast")
		t.Setenv("VAULTSEAL_STORE_BACKEND", "memory")

		require.NoError(t, execute(t, "--json", "config", "show"))
		require.NotNil(t, cfg)
		assert.Equal(t, "fast", cfg.Crypto.Profile)
		assert.Equal(t, config.BackendMemory, cfg.Store.Backend)
		assert.Equal(t, crypto.ProfileFast.Params(), engine.Params())
	})

	t.Run("flag override", func(t *testing.T) {
		t.Setenv("VAULTSEAL_CRYPTO_PROFILE", "paranoid")

		require.NoError(t, execute(t, "--json", "--profile", "fast", "--backend", "memory", "--log-level", "error", "config", "show"))
		assert.Equal(t, "fast", cfg.Crypto.Profile)
		assert.Equal(t, config.BackendMemory, cfg.Store.Backend)
		assert.Equal(t, "error", cfg.Log.Level)
		assert.NotNil(t, logger)
	})
}
