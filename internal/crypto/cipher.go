package crypto

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/poly1305"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

// EncryptDirect seals data with ChaCha20-Poly1305 under a caller-managed key
// and nonce. The output is ciphertext followed by the 16-byte tag.
//
// Nonce uniqueness is the caller's responsibility: reusing a nonce with the
// same key destroys confidentiality, and nothing here detects it.
func EncryptDirect(data, key, nonce []byte) ([]byte, error) {
	const op = "encrypt direct"

	if err := checkKeyNonce(op, key, nonce); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, models.NewCryptoError(models.ErrCodeEncryption, op, "create cipher", err)
	}
	return aead.Seal(nil, nonce, data, nil), nil
}

// DecryptDirect opens ciphertext produced by EncryptDirect. Any tag mismatch
// yields ErrAuthenticationFailed.
func DecryptDirect(ciphertext, key, nonce []byte) ([]byte, error) {
	const op = "decrypt direct"

	if err := checkKeyNonce(op, key, nonce); err != nil {
		return nil, err
	}
	if len(ciphertext) < TagSize {
		return nil, models.NewCryptoError(models.ErrCodeDecryption, op,
			fmt.Sprintf("ciphertext shorter than %d-byte tag", TagSize), nil)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, models.NewCryptoError(models.ErrCodeDecryption, op, "create cipher", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, models.NewCryptoError(models.ErrCodeAuthentication, op, "", nil)
	}
	return plaintext, nil
}

// checkTag recomputes the Poly1305 tag of a ChaCha20-Poly1305 ciphertext
// (RFC 8439, empty associated data) and compares it with the stored tag. No
// plaintext is produced.
func checkTag(sealed, key, nonce []byte) (bool, error) {
	const op = "check tag"

	if err := checkKeyNonce(op, key, nonce); err != nil {
		return false, err
	}
	if len(sealed) < TagSize {
		return false, models.NewCryptoError(models.ErrCodeDecryption, op,
			fmt.Sprintf("ciphertext shorter than %d-byte tag", TagSize), nil)
	}
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	stream, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return false, models.NewCryptoError(models.ErrCodeDecryption, op, "create stream", err)
	}

	// The one-time Poly1305 key is the first 32 bytes of keystream block 0.
	var polyKey [32]byte
	stream.XORKeyStream(polyKey[:], polyKey[:])
	defer Wipe(polyKey[:])

	mac := poly1305.New(&polyKey)
	_, _ = mac.Write(ct)
	if rem := len(ct) % 16; rem != 0 {
		var pad [16]byte
		_, _ = mac.Write(pad[:16-rem])
	}
	var lengths [16]byte
	binary.LittleEndian.PutUint64(lengths[0:8], 0)
	binary.LittleEndian.PutUint64(lengths[8:16], uint64(len(ct)))
	_, _ = mac.Write(lengths[:])

	return ConstantTimeCompare(mac.Sum(nil), tag), nil
}

func checkKeyNonce(op string, key, nonce []byte) error {
	if len(key) != KeySize {
		return models.NewCryptoError(models.ErrCodeInvalidKey, op,
			fmt.Sprintf("key must be %d bytes, got %d", KeySize, len(key)), nil)
	}
	if len(nonce) != NonceSize {
		return models.NewCryptoError(models.ErrCodeInvalidNonce, op,
			fmt.Sprintf("nonce must be %d bytes, got %d", NonceSize, len(nonce)), nil)
	}
	return nil
}
