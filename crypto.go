package webauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// TokenCipher encrypts refresh tokens for storage. The stored form must be
// symmetrically recoverable - rotation decrypts every stored record and
// compares against the presented plaintext - so this is AES-256-CBC, not a
// hash. Output format is "ivhex:cipherhex".
type TokenCipher struct {
	key []byte
}

// NewTokenCipher creates a cipher from a 32-byte hex-encoded key.
func NewTokenCipher(hexKey string) (*TokenCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key length %d, must be 32 bytes", len(key))
	}
	return &TokenCipher{key: key}, nil
}

// Encrypt encrypts plaintext with a fresh random IV.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(encrypted), nil
}

// Decrypt reverses Encrypt. Any structural problem (bad hex, short IV, bad
// padding) comes back as an error - callers treat it as a non-match.
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	ivPart, cipherPart, found := strings.Cut(encoded, ":")
	if !found {
		return "", fmt.Errorf("malformed encrypted token")
	}
	iv, err := hex.DecodeString(ivPart)
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("malformed iv")
	}
	encrypted, err := hex.DecodeString(cipherPart)
	if err != nil || len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return "", fmt.Errorf("malformed ciphertext")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	decrypted := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, encrypted)

	unpadded, err := pkcs7Unpad(decrypted, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
