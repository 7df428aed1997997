package models

import (
	"errors"
	"fmt"
)

// Error kinds for structured error handling.
const (
	ErrCodeKeyDerivation  = "KEY_DERIVATION_ERROR"
	ErrCodeEncryption     = "ENCRYPTION_ERROR"
	ErrCodeDecryption     = "DECRYPTION_ERROR"
	ErrCodeAuthentication = "AUTHENTICATION_FAILED"
	ErrCodeInvalidKey     = "INVALID_KEY"
	ErrCodeInvalidNonce   = "INVALID_NONCE"
	ErrCodeInvalidSalt    = "INVALID_SALT"
	ErrCodeRandom         = "RANDOM_GENERATION_ERROR"
	ErrCodeSerialization  = "SERIALIZATION_ERROR"
	ErrCodeConfig         = "CONFIG_ERROR"
	ErrCodeInvalidInput   = "INVALID_INPUT"
)

// Sentinel errors
var (
	ErrKeyDerivation        = errors.New("key derivation failed")
	ErrEncryption           = errors.New("encryption failed")
	ErrDecryption           = errors.New("decryption failed")
	ErrAuthenticationFailed = errors.New("authentication failed: wrong password or tampered data")
	ErrInvalidKey           = errors.New("invalid key")
	ErrInvalidNonce         = errors.New("invalid nonce")
	ErrInvalidSalt          = errors.New("invalid salt")
	ErrRandomGeneration     = errors.New("random generation failed")
	ErrSerialization        = errors.New("serialization error")
	ErrInvalidParams        = errors.New("invalid key derivation parameters")
	ErrInvalidInput         = errors.New("invalid input")
)

var sentinelByCode = map[string]error{
	ErrCodeKeyDerivation:  ErrKeyDerivation,
	ErrCodeEncryption:     ErrEncryption,
	ErrCodeDecryption:     ErrDecryption,
	ErrCodeAuthentication: ErrAuthenticationFailed,
	ErrCodeInvalidKey:     ErrInvalidKey,
	ErrCodeInvalidNonce:   ErrInvalidNonce,
	ErrCodeInvalidSalt:    ErrInvalidSalt,
	ErrCodeRandom:         ErrRandomGeneration,
	ErrCodeSerialization:  ErrSerialization,
	ErrCodeConfig:         ErrInvalidParams,
	ErrCodeInvalidInput:   ErrInvalidInput,
}

// CryptoError describes a failed cryptographic operation.
// errors.Is matches both the sentinel for Code and the wrapped cause.
type CryptoError struct {
	Code   string
	Op     string
	Reason string
	Err    error
}

// NewCryptoError builds a CryptoError for the given kind.
func NewCryptoError(code, op, reason string, err error) *CryptoError {
	return &CryptoError{Code: code, Op: op, Reason: reason, Err: err}
}

func (e *CryptoError) Error() string {
	base := e.Op
	if base == "" {
		base = "crypto"
	}
	kind := e.Code
	if s, ok := sentinelByCode[e.Code]; ok {
		kind = s.Error()
	}
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", base, kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s: %s", base, kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", base, kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", base, kind)
	}
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's code. An
// authentication failure is also a decryption failure.
func (e *CryptoError) Is(target error) bool {
	if e.Code == ErrCodeAuthentication && target == ErrDecryption {
		return true
	}
	s, ok := sentinelByCode[e.Code]
	return ok && s == target
}

// SerializationError builds a CryptoError of the serialization kind.
func SerializationError(op, reason string, err error) *CryptoError {
	return NewCryptoError(ErrCodeSerialization, op, reason, err)
}

// IsAuthFailure reports whether err is an authentication failure.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

// ErrorCode returns the code of the first CryptoError in err's chain.
func ErrorCode(err error) string {
	var ce *CryptoError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
