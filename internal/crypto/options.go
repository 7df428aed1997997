package crypto

import (
	"time"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

// DefaultMaxPlaintextSize bounds a single plaintext.
const DefaultMaxPlaintextSize = 100 << 20

// EncryptionOptions tunes a single Encrypt or EncryptBatch call. A nil
// *EncryptionOptions means defaults.
type EncryptionOptions struct {
	// Metadata is copied into the envelope. Description and SecretType
	// below override its fields when set.
	Metadata    *models.SecretMetadata
	Description string
	SecretType  models.SecretType
	Tags        []string

	// Profile overrides the engine's cost for this call.
	Profile *Profile

	// Salt pins the derivation salt instead of drawing a fresh one.
	Salt []byte

	// MaxPlaintextSize rejects larger plaintexts; zero means
	// DefaultMaxPlaintextSize.
	MaxPlaintextSize int
}

// NewEncryptionOptions returns empty options for chaining.
func NewEncryptionOptions() *EncryptionOptions {
	return &EncryptionOptions{}
}

func (o *EncryptionOptions) WithMetadata(m *models.SecretMetadata) *EncryptionOptions {
	o.Metadata = m.Clone()
	return o
}

func (o *EncryptionOptions) WithDescription(d string) *EncryptionOptions {
	o.Description = d
	return o
}

func (o *EncryptionOptions) WithType(t models.SecretType) *EncryptionOptions {
	o.SecretType = t
	return o
}

func (o *EncryptionOptions) WithTags(tags ...string) *EncryptionOptions {
	o.Tags = append([]string(nil), tags...)
	return o
}

func (o *EncryptionOptions) WithProfile(p Profile) *EncryptionOptions {
	o.Profile = &p
	return o
}

func (o *EncryptionOptions) WithSalt(salt []byte) *EncryptionOptions {
	o.Salt = append([]byte(nil), salt...)
	return o
}

func (o *EncryptionOptions) WithMaxPlaintextSize(n int) *EncryptionOptions {
	o.MaxPlaintextSize = n
	return o
}

func (o *EncryptionOptions) maxPlaintext() int {
	if o == nil || o.MaxPlaintextSize <= 0 {
		return DefaultMaxPlaintextSize
	}
	return o.MaxPlaintextSize
}

// metadata builds the envelope metadata. CreatedAt defaults to now.
func (o *EncryptionOptions) metadata(now time.Time) *models.SecretMetadata {
	m := &models.SecretMetadata{}
	if o != nil {
		if o.Metadata != nil {
			m = o.Metadata.Clone()
		}
		if o.Description != "" {
			m.Description = o.Description
		}
		if o.SecretType != "" {
			m.SecretType = o.SecretType
		}
		if len(o.Tags) > 0 {
			m.Tags = append([]string(nil), o.Tags...)
		}
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = now.Unix()
	}
	return m
}
