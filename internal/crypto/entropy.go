package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

// MaxRandomBytes caps a single Generate call.
const MaxRandomBytes = 1 << 20

// maxPasswordRounds bounds rejection sampling against a stuck source.
const maxPasswordRounds = 64

// PasswordCharset is the alphabet used by Password.
const PasswordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()_+-=[]{}|;:,.<>?"

// EntropySource wraps a CSPRNG with a sanity check against stuck output.
// The check only catches gross failure; it is not an entropy estimator.
// The reader must be safe for concurrent use when shared by batch sealing.
type EntropySource struct {
	r io.Reader
}

// DefaultEntropy reads from crypto/rand.
var DefaultEntropy = NewEntropySource(nil)

// NewEntropySource wraps r. A nil reader means crypto/rand.Reader.
func NewEntropySource(r io.Reader) *EntropySource {
	if r == nil {
		r = rand.Reader
	}
	return &EntropySource{r: r}
}

// Generate returns n random bytes. Output whose bytes are all identical is
// rejected as a failed source.
func (e *EntropySource) Generate(n int) ([]byte, error) {
	const op = "generate random"

	if n <= 0 || n > MaxRandomBytes {
		return nil, models.NewCryptoError(models.ErrCodeRandom, op,
			fmt.Sprintf("size %d outside [1, %d]", n, MaxRandomBytes), nil)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(e.r, buf); err != nil {
		return nil, models.NewCryptoError(models.ErrCodeRandom, op, "read entropy source", err)
	}
	if n > 1 && allSame(buf) {
		return nil, models.NewCryptoError(models.ErrCodeRandom, op, "output bytes are all identical", nil)
	}
	return buf, nil
}

// Bytes is Generate under the name used by callers wanting arbitrary lengths.
func (e *EntropySource) Bytes(n int) ([]byte, error) {
	return e.Generate(n)
}

// Salt returns a fresh SaltSize salt.
func (e *EntropySource) Salt() ([SaltSize]byte, error) {
	var salt [SaltSize]byte
	b, err := e.Generate(SaltSize)
	if err != nil {
		return salt, err
	}
	copy(salt[:], b)
	return salt, nil
}

// Nonce returns a fresh NonceSize nonce.
func (e *EntropySource) Nonce() ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	b, err := e.Generate(NonceSize)
	if err != nil {
		return nonce, err
	}
	copy(nonce[:], b)
	return nonce, nil
}

// Key returns a fresh KeySize key for the direct cipher path.
func (e *EntropySource) Key() ([]byte, error) {
	return e.Generate(KeySize)
}

// Password returns a random password of length n drawn from PasswordCharset.
// Bytes at or above the largest multiple of the charset size are discarded
// so every character is equally likely.
func (e *EntropySource) Password(n int) (string, error) {
	const op = "generate password"

	if n <= 0 || n > MaxRandomBytes {
		return "", models.NewCryptoError(models.ErrCodeInvalidInput, op,
			fmt.Sprintf("length %d outside [1, %d]", n, MaxRandomBytes), nil)
	}

	limit := byte(len(PasswordCharset) * (256 / len(PasswordCharset)))
	out := make([]byte, 0, n)
	chunk := make([]byte, n)
	defer Wipe(chunk)

	for round := 0; len(out) < n; round++ {
		if round == maxPasswordRounds {
			return "", models.NewCryptoError(models.ErrCodeRandom, op, "entropy source keeps producing rejected bytes", nil)
		}
		if _, err := io.ReadFull(e.r, chunk); err != nil {
			return "", models.NewCryptoError(models.ErrCodeRandom, op, "read entropy source", err)
		}
		for _, b := range chunk {
			if b >= limit {
				continue
			}
			out = append(out, PasswordCharset[int(b)%len(PasswordCharset)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

func allSame(b []byte) bool {
	for _, c := range b[1:] {
		if c != b[0] {
			return false
		}
	}
	return true
}
