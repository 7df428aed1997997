package models_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

func newSecret(t *testing.T, meta *models.SecretMetadata) *models.EncryptedSecret {
	t.Helper()
	s, err := models.NewEncryptedSecret(
		models.AlgorithmChaCha20Poly1305,
		models.KDFParams{MemoryKiB: 65536, Iterations: 3, Parallelism: 4},
		bytes.Repeat([]byte{0x01}, models.NonceSize),
		bytes.Repeat([]byte{0x02}, models.SaltSize),
		[]byte("ciphertext-and-tag-bytes"),
		meta,
	)
	require.NoError(t, err)
	return s
}

func TestNewEncryptedSecretValidatesSizes(t *testing.T) {
	tests := []struct {
		name    string
		nonce   int
		salt    int
		wantErr error
	}{
		{"valid", models.NonceSize, models.SaltSize, nil},
		{"short nonce", 8, models.SaltSize, models.ErrInvalidNonce},
		{"long nonce", 24, models.SaltSize, models.ErrInvalidNonce},
		{"short salt", models.NonceSize, 16, models.ErrInvalidSalt},
		{"empty salt", models.NonceSize, 0, models.ErrInvalidSalt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := models.NewEncryptedSecret(models.DefaultAlgorithm, models.KDFParams{},
				make([]byte, tt.nonce), make([]byte, tt.salt), nil, nil)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestNewEncryptedSecretRejectsInvalidUTF8(t *testing.T) {
	tests := []struct {
		name string
		meta *models.SecretMetadata
	}{
		{"description", &models.SecretMetadata{Description: "caf\xe9"}},
		{"secret type", &models.SecretMetadata{SecretType: models.SecretType("\xff")}},
		{"tag", &models.SecretMetadata{Tags: []string{"ok", "bad\xc3"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := models.NewEncryptedSecret(models.DefaultAlgorithm, models.KDFParams{},
				make([]byte, models.NonceSize), make([]byte, models.SaltSize), nil, tt.meta)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidInput), "got %v", err)
		})
	}

	assert.NoError(t, (&models.SecretMetadata{Description: "café ☕", Tags: []string{"日本"}}).Validate())
}

func TestEncryptedSecretIsImmutable(t *testing.T) {
	meta := &models.SecretMetadata{Description: "db", Tags: []string{"prod"}}
	s := newSecret(t, meta)

	// Mutating inputs and outputs must not leak into the envelope.
	meta.Description = "changed"
	meta.Tags[0] = "changed"
	ct := s.Ciphertext()
	ct[0] ^= 0xff
	got := s.Metadata()
	got.Tags[0] = "changed"

	assert.Equal(t, "db", s.Metadata().Description)
	assert.Equal(t, []string{"prod"}, s.Metadata().Tags)
	assert.Equal(t, []byte("ciphertext-and-tag-bytes"), s.Ciphertext())
}

func TestEncryptedSecretWithMetadata(t *testing.T) {
	s := newSecret(t, nil)
	withMeta := s.WithMetadata(&models.SecretMetadata{SecretType: models.SecretTypeAPIKey})

	assert.Nil(t, s.Metadata())
	assert.Equal(t, models.SecretTypeAPIKey, withMeta.Metadata().SecretType)
	assert.False(t, s.Equal(withMeta))
	assert.True(t, s.Equal(s.Clone()))
}

func TestEncryptedSecretStringOmitsCiphertext(t *testing.T) {
	s := newSecret(t, nil)
	str := s.String()
	assert.Contains(t, str, "chacha20-poly1305")
	assert.Contains(t, str, "ciphertext_len: 24")
	assert.NotContains(t, str, "ciphertext-and-tag-bytes")
}

func TestAlgorithm(t *testing.T) {
	alg, err := models.ParseAlgorithm("ChaCha20-Poly1305")
	require.NoError(t, err)
	assert.Equal(t, models.AlgorithmChaCha20Poly1305, alg)
	assert.True(t, alg.Supported())
	assert.Equal(t, 32, alg.KeyLength())
	assert.Equal(t, 12, alg.NonceLength())
	assert.Equal(t, 16, alg.TagLength())

	gcm, err := models.ParseAlgorithm("aes-256-gcm")
	require.NoError(t, err)
	assert.False(t, gcm.Supported())

	_, err = models.ParseAlgorithm("rot13")
	assert.True(t, errors.Is(err, models.ErrSerialization))
}

func TestParseSecretType(t *testing.T) {
	for _, s := range []string{"generic", "api_key", "password", "private_key", "database_url", "config", "custom:ssh", ""} {
		_, err := models.ParseSecretType(s)
		assert.NoError(t, err, s)
	}

	for _, s := range []string{"custom:", "apikey", "unknown"} {
		_, err := models.ParseSecretType(s)
		assert.Error(t, err, s)
	}

	ct := models.CustomSecretType("jwt")
	assert.True(t, ct.IsCustom())
	assert.True(t, strings.HasPrefix(string(ct), "custom:"))
	assert.False(t, models.SecretTypeConfig.IsCustom())
}

func TestPlaintextSecret(t *testing.T) {
	buf := []byte("hunter2")
	p := models.NewPlaintextSecret(buf)

	text, err := p.Text()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", text)
	assert.False(t, p.IsBinary())
	assert.NotContains(t, p.String(), "hunter2")

	p.Wipe()
	assert.Equal(t, make([]byte, 7), buf)
	assert.Zero(t, p.Len())

	bin := models.NewPlaintextSecret([]byte{0xff, 0xfe, 0x00})
	assert.True(t, bin.IsBinary())
	_, err = bin.Text()
	assert.Error(t, err)
}

func TestIsBinaryContent(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    bool
	}{
		{"empty", nil, false},
		{"text", []byte("API_KEY=abc\nOTHER=1\r\n"), false},
		{"nul byte", []byte("abc\x00def"), true},
		{"control heavy", []byte{1, 2, 3, 4, 'a'}, true},
		{"utf8", []byte("пароль ключ"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.IsBinaryContent(tt.content))
		})
	}
}
