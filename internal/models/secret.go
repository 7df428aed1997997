package models

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Envelope field sizes.
const (
	KeySize   = 32 // ChaCha20-Poly1305 key
	NonceSize = 12 // 96-bit nonce
	SaltSize  = 32 // Argon2id salt
	TagSize   = 16 // Poly1305 tag
)

// Algorithm identifies the authenticated cipher of an envelope.
type Algorithm uint8

const (
	AlgorithmChaCha20Poly1305 Algorithm = 1
	AlgorithmAES256GCM        Algorithm = 2
)

// DefaultAlgorithm is used for every new envelope.
const DefaultAlgorithm = AlgorithmChaCha20Poly1305

func (a Algorithm) String() string {
	switch a {
	case AlgorithmChaCha20Poly1305:
		return "chacha20-poly1305"
	case AlgorithmAES256GCM:
		return "aes-256-gcm"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAlgorithm parses the text form of an algorithm tag.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chacha20-poly1305", "chacha20poly1305":
		return AlgorithmChaCha20Poly1305, nil
	case "aes-256-gcm", "aes256gcm":
		return AlgorithmAES256GCM, nil
	default:
		return 0, SerializationError("parse algorithm", fmt.Sprintf("unknown algorithm %q", s), nil)
	}
}

// Supported reports whether envelopes with this algorithm can be opened.
// AES-256-GCM is recognised so that such envelopes fail with a clear error.
func (a Algorithm) Supported() bool {
	return a == AlgorithmChaCha20Poly1305
}

// KeyLength returns the key size in bytes.
func (a Algorithm) KeyLength() int { return KeySize }

// NonceLength returns the nonce size in bytes.
func (a Algorithm) NonceLength() int { return NonceSize }

// TagLength returns the authentication tag size in bytes.
func (a Algorithm) TagLength() int { return TagSize }

// KDFParams records the Argon2id costs an envelope was sealed with.
type KDFParams struct {
	MemoryKiB   uint32 `json:"memory_cost" yaml:"memory_cost"`
	Iterations  uint32 `json:"iterations" yaml:"iterations"`
	Parallelism uint32 `json:"parallelism" yaml:"parallelism"`
}

// IsZero reports whether no parameters were recorded.
func (p KDFParams) IsZero() bool {
	return p.MemoryKiB == 0 && p.Iterations == 0 && p.Parallelism == 0
}

func (p KDFParams) String() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", p.MemoryKiB, p.Iterations, p.Parallelism)
}

// SecretType is a hint about what an encrypted value holds.
type SecretType string

const (
	SecretTypeGeneric     SecretType = "generic"
	SecretTypeAPIKey      SecretType = "api_key"
	SecretTypePassword    SecretType = "password"
	SecretTypePrivateKey  SecretType = "private_key"
	SecretTypeDatabaseURL SecretType = "database_url"
	SecretTypeConfig      SecretType = "config"
)

const customTypePrefix = "custom:"

// CustomSecretType returns a user-defined type tag.
func CustomSecretType(name string) SecretType {
	return SecretType(customTypePrefix + name)
}

// IsCustom reports whether t was built by CustomSecretType.
func (t SecretType) IsCustom() bool {
	return strings.HasPrefix(string(t), customTypePrefix)
}

// ParseSecretType validates a type tag.
func ParseSecretType(s string) (SecretType, error) {
	t := SecretType(s)
	switch t {
	case SecretTypeGeneric, SecretTypeAPIKey, SecretTypePassword,
		SecretTypePrivateKey, SecretTypeDatabaseURL, SecretTypeConfig, "":
		return t, nil
	}
	if t.IsCustom() && len(s) > len(customTypePrefix) {
		return t, nil
	}
	return "", NewCryptoError(ErrCodeInvalidInput, "parse secret type", fmt.Sprintf("unknown secret type %q", s), nil)
}

// SecretMetadata is descriptive, non-secret data stored beside the ciphertext.
// It is not authenticated by the cipher.
type SecretMetadata struct {
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	SecretType  SecretType `json:"secret_type,omitempty" yaml:"secret_type,omitempty"`
	CreatedAt   int64      `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Tags        []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Clone returns a deep copy. Empty tag lists are normalised to nil.
func (m *SecretMetadata) Clone() *SecretMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.Tags = nil
	if len(m.Tags) > 0 {
		c.Tags = append([]string(nil), m.Tags...)
	}
	return &c
}

// Validate rejects strings that are not valid UTF-8. Text encodings would
// otherwise replace the bad bytes and no longer round-trip.
func (m *SecretMetadata) Validate() error {
	if m == nil {
		return nil
	}
	if !utf8.ValidString(m.Description) {
		return errors.New("description is not valid UTF-8")
	}
	if !utf8.ValidString(string(m.SecretType)) {
		return errors.New("secret type is not valid UTF-8")
	}
	for i, t := range m.Tags {
		if !utf8.ValidString(t) {
			return fmt.Errorf("tag %d is not valid UTF-8", i)
		}
	}
	return nil
}

// Equal compares two metadata values.
func (m *SecretMetadata) Equal(o *SecretMetadata) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Description != o.Description || m.SecretType != o.SecretType || m.CreatedAt != o.CreatedAt {
		return false
	}
	if len(m.Tags) != len(o.Tags) {
		return false
	}
	for i := range m.Tags {
		if m.Tags[i] != o.Tags[i] {
			return false
		}
	}
	return true
}

// EncryptedSecret is the at-rest envelope. It holds no key material and is
// immutable once built: accessors return copies.
type EncryptedSecret struct {
	algorithm  Algorithm
	kdf        KDFParams
	nonce      [NonceSize]byte
	salt       [SaltSize]byte
	ciphertext []byte
	metadata   *SecretMetadata
}

// NewEncryptedSecret assembles an envelope, rejecting wrong-size fields.
// ciphertext must include the trailing authentication tag.
func NewEncryptedSecret(alg Algorithm, kdf KDFParams, nonce, salt, ciphertext []byte, metadata *SecretMetadata) (*EncryptedSecret, error) {
	if len(nonce) != NonceSize {
		return nil, NewCryptoError(ErrCodeInvalidNonce, "build envelope",
			fmt.Sprintf("nonce must be %d bytes, got %d", NonceSize, len(nonce)), nil)
	}
	if len(salt) != SaltSize {
		return nil, NewCryptoError(ErrCodeInvalidSalt, "build envelope",
			fmt.Sprintf("salt must be %d bytes, got %d", SaltSize, len(salt)), nil)
	}
	if err := metadata.Validate(); err != nil {
		return nil, NewCryptoError(ErrCodeInvalidInput, "build envelope", "invalid metadata", err)
	}

	s := &EncryptedSecret{
		algorithm:  alg,
		kdf:        kdf,
		ciphertext: append([]byte(nil), ciphertext...),
		metadata:   metadata.Clone(),
	}
	copy(s.nonce[:], nonce)
	copy(s.salt[:], salt)
	return s, nil
}

// Algorithm returns the cipher tag.
func (s *EncryptedSecret) Algorithm() Algorithm { return s.algorithm }

// KDF returns the derivation costs recorded in the envelope.
func (s *EncryptedSecret) KDF() KDFParams { return s.kdf }

// Nonce returns a copy of the nonce.
func (s *EncryptedSecret) Nonce() [NonceSize]byte { return s.nonce }

// Salt returns a copy of the salt.
func (s *EncryptedSecret) Salt() [SaltSize]byte { return s.salt }

// Ciphertext returns a copy of the ciphertext including its tag.
func (s *EncryptedSecret) Ciphertext() []byte {
	return append([]byte(nil), s.ciphertext...)
}

// CiphertextLen returns the length of ciphertext plus tag.
func (s *EncryptedSecret) CiphertextLen() int { return len(s.ciphertext) }

// Metadata returns a copy of the metadata, or nil.
func (s *EncryptedSecret) Metadata() *SecretMetadata { return s.metadata.Clone() }

// WithMetadata returns a copy of the envelope carrying new metadata.
func (s *EncryptedSecret) WithMetadata(m *SecretMetadata) *EncryptedSecret {
	c := s.Clone()
	c.metadata = m.Clone()
	return c
}

// Clone returns a deep copy.
func (s *EncryptedSecret) Clone() *EncryptedSecret {
	if s == nil {
		return nil
	}
	c := *s
	c.ciphertext = append([]byte(nil), s.ciphertext...)
	c.metadata = s.metadata.Clone()
	return &c
}

// Equal reports whether two envelopes carry identical fields.
func (s *EncryptedSecret) Equal(o *EncryptedSecret) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.algorithm == o.algorithm &&
		s.kdf == o.kdf &&
		s.nonce == o.nonce &&
		s.salt == o.salt &&
		bytes.Equal(s.ciphertext, o.ciphertext) &&
		s.metadata.Equal(o.metadata)
}

// String never prints ciphertext bytes.
func (s *EncryptedSecret) String() string {
	return fmt.Sprintf("EncryptedSecret{algorithm: %s, kdf: %s, nonce: %s, salt: %s, ciphertext_len: %d}",
		s.algorithm, s.kdf, hex.EncodeToString(s.nonce[:]), hex.EncodeToString(s.salt[:]), len(s.ciphertext))
}
