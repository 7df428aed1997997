package crypto_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultseal/internal/crypto"
	"github.com/TheMichaelB/vaultseal/internal/models"
)

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name        string
		memory      uint32
		iterations  uint32
		parallelism uint32
		wantErr     string
	}{
		{"balanced defaults", 65536, 3, 4, ""},
		{"lower bounds", 47104, 2, 1, ""},
		{"upper bounds", 2097152, 10, 16, ""},
		{"memory too low", 1024, 3, 4, "memory cost 1024 KiB outside [47104, 2097152]"},
		{"memory too high", 2097153, 3, 4, "memory cost"},
		{"one iteration", 65536, 1, 4, "iterations 1 outside [2, 10]"},
		{"too many iterations", 65536, 11, 4, "iterations 11"},
		{"zero parallelism", 65536, 3, 0, "parallelism 0 outside [1, 16]"},
		{"too much parallelism", 65536, 3, 17, "parallelism 17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := crypto.ValidateParams(tt.memory, tt.iterations, tt.parallelism)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.Is(err, models.ErrInvalidParams))
		})
	}
}

func TestProfilesPassValidation(t *testing.T) {
	for _, p := range crypto.Profiles() {
		assert.NoError(t, crypto.ValidateCost(p.Params()), p.String())
	}
	assert.NoError(t, crypto.ValidateCost(crypto.RecommendedCost()))
}

func TestProfileOrdering(t *testing.T) {
	profiles := crypto.Profiles()
	for i := 1; i < len(profiles); i++ {
		prev, cur := profiles[i-1], profiles[i]
		assert.Less(t, prev.Cost(), cur.Cost(), "%s should be cheaper than %s", prev, cur)

		pc, cc := prev.Params(), cur.Params()
		assert.True(t, pc.MemoryKiB < cc.MemoryKiB || pc.Iterations < cc.Iterations)
	}
}

func TestBalancedIsDefault(t *testing.T) {
	assert.Equal(t, crypto.ProfileBalanced, crypto.DefaultProfile)
	assert.Equal(t, crypto.KDFCost{MemoryKiB: 65536, Iterations: 3, Parallelism: 4}, crypto.DefaultProfile.Params())
}

func TestParseProfile(t *testing.T) {
	for _, p := range crypto.Profiles() {
		got, err := crypto.ParseProfile(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.NotEmpty(t, p.Description())
	}

	got, err := crypto.ParseProfile("  SECURE ")
	require.NoError(t, err)
	assert.Equal(t, crypto.ProfileSecure, got)

	_, err = crypto.ParseProfile("ludicrous")
	assert.True(t, errors.Is(err, models.ErrInvalidParams))

	var p crypto.Profile
	require.NoError(t, p.UnmarshalText([]byte("paranoid")))
	assert.Equal(t, crypto.ProfileParanoid, p)

	text, err := crypto.ProfileFast.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "fast", string(text))

	assert.Equal(t, crypto.ProfileBalanced.Params(), crypto.Profile(42).Params())
	assert.False(t, crypto.Profile(42).Valid())
}

func TestNewKeyDerivationParams(t *testing.T) {
	cost := crypto.ProfileFast.Params()

	params, err := crypto.NewKeyDerivationParams(cost, make([]byte, crypto.SaltSize))
	require.NoError(t, err)
	assert.Equal(t, cost, params.Cost)

	_, err = crypto.NewKeyDerivationParams(cost, make([]byte, 16))
	assert.True(t, errors.Is(err, models.ErrInvalidSalt))

	_, err = crypto.NewKeyDerivationParams(crypto.KDFCost{MemoryKiB: 1024, Iterations: 1}, make([]byte, crypto.SaltSize))
	assert.True(t, errors.Is(err, models.ErrInvalidParams))

	random, err := crypto.RandomKeyDerivationParams(cost, crypto.DefaultEntropy)
	require.NoError(t, err)
	assert.NotEqual(t, [crypto.SaltSize]byte{}, random.Salt)
}
