package models

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// PlaintextSecret holds decrypted bytes. Callers own it and should Wipe it
// once done; the engine keeps no reference.
type PlaintextSecret struct {
	data []byte
}

// NewPlaintextSecret takes ownership of data without copying.
func NewPlaintextSecret(data []byte) *PlaintextSecret {
	return &PlaintextSecret{data: data}
}

// Bytes returns the underlying buffer. It is zeroed by Wipe.
func (p *PlaintextSecret) Bytes() []byte { return p.data }

// Len returns the plaintext length.
func (p *PlaintextSecret) Len() int { return len(p.data) }

// Text returns the plaintext as a string if it is valid UTF-8.
func (p *PlaintextSecret) Text() (string, error) {
	if !utf8.Valid(p.data) {
		return "", NewCryptoError(ErrCodeInvalidInput, "plaintext text", "not valid UTF-8", nil)
	}
	return string(p.data), nil
}

// IsBinary guesses whether the plaintext is binary rather than text.
func (p *PlaintextSecret) IsBinary() bool {
	return IsBinaryContent(p.data)
}

// Wipe zeroes the buffer and drops it.
func (p *PlaintextSecret) Wipe() {
	if p == nil {
		return
	}
	for i := range p.data {
		p.data[i] = 0
	}
	p.data = nil
}

// String never reveals the content.
func (p *PlaintextSecret) String() string {
	return fmt.Sprintf("PlaintextSecret{len: %d, content: [REDACTED]}", len(p.data))
}

// GoString never reveals the content.
func (p *PlaintextSecret) GoString() string { return p.String() }

// IsBinaryContent reports whether content looks binary: a NUL byte or more
// than 30% control characters in the first 8 KiB.
func IsBinaryContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	checkLen := len(content)
	if checkLen > 8192 {
		checkLen = 8192
	}
	head := content[:checkLen]

	if bytes.IndexByte(head, 0) != -1 {
		return true
	}

	control := 0
	for _, b := range head {
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return float64(control)/float64(checkLen) > 0.3
}
