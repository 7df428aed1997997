package crypto

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

const (
	// Sizes shared with the envelope format.
	KeySize   = models.KeySize
	NonceSize = models.NonceSize
	SaltSize  = models.SaltSize
	TagSize   = models.TagSize

	// Argon2Version is the Argon2id revision produced by x/crypto/argon2.
	Argon2Version = 0x13

	// Argon2id safety bounds enforced by ValidateParams.
	MinMemoryKiB   = 47104
	MaxMemoryKiB   = 2097152
	MinIterations  = 2
	MaxIterations  = 10
	MinParallelism = 1
	MaxParallelism = 16
)

// KDFCost is the Argon2id memory/time/parallelism triple.
type KDFCost = models.KDFParams

// Profile selects a fixed Argon2id cost tradeoff.
type Profile int

const (
	ProfileFast Profile = iota
	ProfileBalanced
	ProfileSecure
	ProfileParanoid
)

// DefaultProfile is used when nothing else is configured.
const DefaultProfile = ProfileBalanced

var profileCosts = [...]KDFCost{
	ProfileFast:     {MemoryKiB: 47104, Iterations: 2, Parallelism: 1},
	ProfileBalanced: {MemoryKiB: 65536, Iterations: 3, Parallelism: 4},
	ProfileSecure:   {MemoryKiB: 262144, Iterations: 5, Parallelism: 8},
	ProfileParanoid: {MemoryKiB: 1048576, Iterations: 10, Parallelism: 16},
}

var profileNames = [...]string{
	ProfileFast:     "fast",
	ProfileBalanced: "balanced",
	ProfileSecure:   "secure",
	ProfileParanoid: "paranoid",
}

var profileDescriptions = [...]string{
	ProfileFast:     "development and tests, lowest cost that still passes validation",
	ProfileBalanced: "default for everyday secrets",
	ProfileSecure:   "production credentials",
	ProfileParanoid: "highly sensitive data, expect seconds per derivation",
}

// Profiles returns every profile from cheapest to most expensive.
func Profiles() []Profile {
	return []Profile{ProfileFast, ProfileBalanced, ProfileSecure, ProfileParanoid}
}

// Valid reports whether p is a known profile.
func (p Profile) Valid() bool {
	return p >= ProfileFast && p <= ProfileParanoid
}

// Params returns the cost triple. Unknown profiles map to Balanced.
func (p Profile) Params() KDFCost {
	if !p.Valid() {
		return profileCosts[DefaultProfile]
	}
	return profileCosts[p]
}

// Cost returns memory times iterations, a single comparable work figure.
func (p Profile) Cost() uint64 {
	c := p.Params()
	return uint64(c.MemoryKiB) * uint64(c.Iterations)
}

// Description is a short human hint for CLI listings.
func (p Profile) Description() string {
	if !p.Valid() {
		return ""
	}
	return profileDescriptions[p]
}

func (p Profile) String() string {
	if !p.Valid() {
		return fmt.Sprintf("profile(%d)", int(p))
	}
	return profileNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p Profile) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown profile %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Profile) UnmarshalText(text []byte) error {
	parsed, err := ParseProfile(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseProfile parses a profile name, case-insensitively.
func ParseProfile(s string) (Profile, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range profileNames {
		if n == name {
			return Profile(i), nil
		}
	}
	return 0, models.NewCryptoError(models.ErrCodeConfig, "parse profile",
		fmt.Sprintf("unknown profile %q (want fast, balanced, secure or paranoid)", s), nil)
}

// ValidateParams rejects Argon2id costs outside the safety bounds. It must
// pass before any cost triple reaches the key derivation function.
func ValidateParams(memoryKiB, iterations, parallelism uint32) error {
	const op = "validate params"

	if memoryKiB < MinMemoryKiB || memoryKiB > MaxMemoryKiB {
		return models.NewCryptoError(models.ErrCodeConfig, op,
			fmt.Sprintf("memory cost %d KiB outside [%d, %d]", memoryKiB, MinMemoryKiB, MaxMemoryKiB), nil)
	}
	if iterations < MinIterations || iterations > MaxIterations {
		return models.NewCryptoError(models.ErrCodeConfig, op,
			fmt.Sprintf("iterations %d outside [%d, %d]", iterations, MinIterations, MaxIterations), nil)
	}
	if parallelism < MinParallelism || parallelism > MaxParallelism {
		return models.NewCryptoError(models.ErrCodeConfig, op,
			fmt.Sprintf("parallelism %d outside [%d, %d]", parallelism, MinParallelism, MaxParallelism), nil)
	}
	return nil
}

// ValidateCost is ValidateParams for a KDFCost.
func ValidateCost(c KDFCost) error {
	return ValidateParams(c.MemoryKiB, c.Iterations, c.Parallelism)
}

// RecommendedCost returns the Balanced cost with parallelism capped at the
// number of usable CPUs.
func RecommendedCost() KDFCost {
	c := ProfileBalanced.Params()
	if n := runtime.GOMAXPROCS(0); n < int(c.Parallelism) {
		c.Parallelism = uint32(max(n, MinParallelism))
	}
	return c
}

// KeyDerivationParams is a cost triple plus the salt it is applied with.
type KeyDerivationParams struct {
	Cost KDFCost
	Salt [SaltSize]byte
}

// NewKeyDerivationParams validates cost and copies salt, which must be
// exactly SaltSize bytes.
func NewKeyDerivationParams(cost KDFCost, salt []byte) (KeyDerivationParams, error) {
	var p KeyDerivationParams
	if len(salt) != SaltSize {
		return p, models.NewCryptoError(models.ErrCodeInvalidSalt, "key derivation params",
			fmt.Sprintf("salt must be %d bytes, got %d", SaltSize, len(salt)), nil)
	}
	if err := ValidateCost(cost); err != nil {
		return p, err
	}
	p.Cost = cost
	copy(p.Salt[:], salt)
	return p, nil
}

// RandomKeyDerivationParams pairs cost with a fresh salt from src.
func RandomKeyDerivationParams(cost KDFCost, src *EntropySource) (KeyDerivationParams, error) {
	salt, err := src.Salt()
	if err != nil {
		return KeyDerivationParams{}, err
	}
	return NewKeyDerivationParams(cost, salt[:])
}

// Validate runs ValidateParams over the cost triple.
func (p KeyDerivationParams) Validate() error {
	return ValidateCost(p.Cost)
}
