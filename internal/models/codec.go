package models

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// BinaryFormatVersion is the first byte of every binary envelope.
const BinaryFormatVersion byte = 1

// binary header: version, algorithm, memory, iterations, parallelism, nonce, salt
const binaryHeaderSize = 1 + 1 + 4 + 4 + 4 + NonceSize + SaltSize

// envelopeWire is the text form shared by JSON and YAML.
type envelopeWire struct {
	Algorithm  string          `json:"algorithm" yaml:"algorithm"`
	KDF        *KDFParams      `json:"kdf,omitempty" yaml:"kdf,omitempty"`
	Nonce      string          `json:"nonce" yaml:"nonce"`
	Salt       string          `json:"salt" yaml:"salt"`
	Ciphertext string          `json:"ciphertext" yaml:"ciphertext"`
	Metadata   *SecretMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func (s *EncryptedSecret) toWire() envelopeWire {
	w := envelopeWire{
		Algorithm:  s.algorithm.String(),
		Nonce:      base64.StdEncoding.EncodeToString(s.nonce[:]),
		Salt:       base64.StdEncoding.EncodeToString(s.salt[:]),
		Ciphertext: base64.StdEncoding.EncodeToString(s.ciphertext),
		Metadata:   s.metadata.Clone(),
	}
	if !s.kdf.IsZero() {
		kdf := s.kdf
		w.KDF = &kdf
	}
	return w
}

func fromWire(op string, w envelopeWire) (*EncryptedSecret, error) {
	alg, err := ParseAlgorithm(w.Algorithm)
	if err != nil {
		return nil, err
	}

	nonce, err := base64.StdEncoding.DecodeString(w.Nonce)
	if err != nil {
		return nil, SerializationError(op, "nonce is not valid base64", err)
	}
	if len(nonce) != NonceSize {
		return nil, SerializationError(op, fmt.Sprintf("nonce must be %d bytes, got %d", NonceSize, len(nonce)), nil)
	}

	salt, err := base64.StdEncoding.DecodeString(w.Salt)
	if err != nil {
		return nil, SerializationError(op, "salt is not valid base64", err)
	}
	if len(salt) != SaltSize {
		return nil, SerializationError(op, fmt.Sprintf("salt must be %d bytes, got %d", SaltSize, len(salt)), nil)
	}

	ct, err := base64.StdEncoding.DecodeString(w.Ciphertext)
	if err != nil {
		return nil, SerializationError(op, "ciphertext is not valid base64", err)
	}

	var kdf KDFParams
	if w.KDF != nil {
		kdf = *w.KDF
	}

	return NewEncryptedSecret(alg, kdf, nonce, salt, ct, w.Metadata)
}

// MarshalJSON encodes the envelope with base64 byte fields.
func (s *EncryptedSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toWire())
}

// UnmarshalJSON decodes and validates an envelope.
func (s *EncryptedSecret) UnmarshalJSON(data []byte) error {
	var w envelopeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return SerializationError("decode json", "malformed envelope", err)
	}
	decoded, err := fromWire("decode json", w)
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s *EncryptedSecret) MarshalYAML() (interface{}, error) {
	return s.toWire(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *EncryptedSecret) UnmarshalYAML(node *yaml.Node) error {
	var w envelopeWire
	if err := node.Decode(&w); err != nil {
		return SerializationError("decode yaml", "malformed envelope", err)
	}
	decoded, err := fromWire("decode yaml", w)
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}

// ParseJSON decodes an envelope from its JSON text form.
func ParseJSON(data []byte) (*EncryptedSecret, error) {
	var s EncryptedSecret
	if err := json.Unmarshal(data, &s); err != nil {
		if ErrorCode(err) != "" {
			return nil, err
		}
		return nil, SerializationError("decode json", "malformed envelope", err)
	}
	return &s, nil
}

// ParseYAML decodes an envelope from its YAML text form.
func ParseYAML(data []byte) (*EncryptedSecret, error) {
	var s EncryptedSecret
	if err := yaml.Unmarshal(data, &s); err != nil {
		if ErrorCode(err) != "" {
			return nil, err
		}
		return nil, SerializationError("decode yaml", "malformed envelope", err)
	}
	return &s, nil
}

// MarshalBinary encodes the envelope in the compact binary layout:
//
//	version(1) algorithm(1) memory(4) iterations(4) parallelism(4)
//	nonce(12) salt(32) len(4) ciphertext len(4) metadata
//
// Integers are big-endian. A zero metadata length means no metadata.
func (s *EncryptedSecret) MarshalBinary() ([]byte, error) {
	var meta []byte
	if s.metadata != nil {
		meta = encodeMetadata(s.metadata)
	}

	buf := make([]byte, 0, binaryHeaderSize+8+len(s.ciphertext)+len(meta))
	buf = append(buf, BinaryFormatVersion, byte(s.algorithm))
	buf = binary.BigEndian.AppendUint32(buf, s.kdf.MemoryKiB)
	buf = binary.BigEndian.AppendUint32(buf, s.kdf.Iterations)
	buf = binary.BigEndian.AppendUint32(buf, s.kdf.Parallelism)
	buf = append(buf, s.nonce[:]...)
	buf = append(buf, s.salt[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s.ciphertext)))
	buf = append(buf, s.ciphertext...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(meta)))
	buf = append(buf, meta...)
	return buf, nil
}

// UnmarshalBinary decodes the layout written by MarshalBinary.
func (s *EncryptedSecret) UnmarshalBinary(data []byte) error {
	decoded, err := ParseBinary(data)
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}

// ParseBinary decodes a binary envelope. Truncated input, trailing bytes and
// unknown versions are rejected.
func ParseBinary(data []byte) (*EncryptedSecret, error) {
	const op = "decode binary"

	if len(data) < binaryHeaderSize+8 {
		return nil, SerializationError(op, fmt.Sprintf("envelope too short: %d bytes", len(data)), nil)
	}
	if data[0] != BinaryFormatVersion {
		return nil, SerializationError(op, fmt.Sprintf("unsupported format version %d", data[0]), nil)
	}

	alg := Algorithm(data[1])
	if alg != AlgorithmChaCha20Poly1305 && alg != AlgorithmAES256GCM {
		return nil, SerializationError(op, fmt.Sprintf("unknown algorithm id %d", data[1]), nil)
	}

	r := binReader{buf: data[2:]}
	kdf := KDFParams{
		MemoryKiB:   r.uint32(),
		Iterations:  r.uint32(),
		Parallelism: r.uint32(),
	}
	nonce := r.bytes(NonceSize)
	salt := r.bytes(SaltSize)
	ct := r.block()
	meta := r.block()
	if r.err != nil {
		return nil, SerializationError(op, "truncated envelope", r.err)
	}
	if len(r.buf) != 0 {
		return nil, SerializationError(op, fmt.Sprintf("%d trailing bytes", len(r.buf)), nil)
	}

	var metadata *SecretMetadata
	if len(meta) > 0 {
		m, err := decodeMetadata(meta)
		if err != nil {
			return nil, SerializationError(op, "invalid metadata block", err)
		}
		metadata = m
	}

	return NewEncryptedSecret(alg, kdf, nonce, salt, ct, metadata)
}

func encodeMetadata(m *SecretMetadata) []byte {
	var b bytes.Buffer
	b.Write(binary.BigEndian.AppendUint64(nil, uint64(m.CreatedAt)))
	writeString(&b, m.Description)
	writeString(&b, string(m.SecretType))
	b.Write(binary.BigEndian.AppendUint32(nil, uint32(len(m.Tags))))
	for _, t := range m.Tags {
		writeString(&b, t)
	}
	return b.Bytes()
}

func writeString(b *bytes.Buffer, s string) {
	b.Write(binary.BigEndian.AppendUint32(nil, uint32(len(s))))
	b.WriteString(s)
}

func decodeMetadata(data []byte) (*SecretMetadata, error) {
	r := binReader{buf: data}
	m := &SecretMetadata{}
	m.CreatedAt = int64(r.uint64())
	m.Description = string(r.block())
	m.SecretType = SecretType(r.block())
	n := r.uint32()
	if r.err == nil && uint64(n) > uint64(len(r.buf))/4 {
		return nil, fmt.Errorf("tag count %d exceeds remaining data", n)
	}
	for i := uint32(0); i < n && r.err == nil; i++ {
		m.Tags = append(m.Tags, string(r.block()))
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%d trailing bytes", len(r.buf))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// binReader consumes big-endian fields, remembering the first short read.
type binReader struct {
	buf []byte
	err error
}

func (r *binReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = fmt.Errorf("need %d bytes, have %d", n, len(r.buf))
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *binReader) uint32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *binReader) uint64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *binReader) block() []byte {
	n := r.uint32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(len(r.buf)) {
		r.err = fmt.Errorf("block length %d exceeds remaining %d bytes", n, len(r.buf))
		return nil
	}
	return r.bytes(int(n))
}
