package webauth_test

import (
	"strings"
	"testing"

	oa "github.com/panyam/webauth"
)

func TestTokenCipherRoundTrip(t *testing.T) {
	cipher, err := oa.NewTokenCipher(testEncryptionKey)
	if err != nil {
		t.Fatal(err)
	}

	plaintext := "eyJhbGciOiJIUzI1NiJ9.some.jwt"
	encrypted, err := cipher.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypting: %v", err)
	}
	if !strings.Contains(encrypted, ":") {
		t.Fatalf("encrypted form %q is not iv:ciphertext", encrypted)
	}
	decrypted, err := cipher.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("decrypting: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("round trip mismatch: %q != %q", decrypted, plaintext)
	}
}

// Fresh IVs mean two encryptions of one plaintext never collide, which is
// why session matching decrypts instead of comparing ciphertexts.
func TestTokenCipherFreshIVs(t *testing.T) {
	cipher, _ := oa.NewTokenCipher(testEncryptionKey)

	first, _ := cipher.Encrypt("same-plaintext")
	second, _ := cipher.Encrypt("same-plaintext")
	if first == second {
		t.Error("two encryptions produced identical output")
	}
}

func TestNewTokenCipherRejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not hex", strings.Repeat("zz", 32)},
		{"too short", "00112233"},
		{"too long", strings.Repeat("00", 48)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := oa.NewTokenCipher(tc.key); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDecryptRejectsMangledInput(t *testing.T) {
	cipher, _ := oa.NewTokenCipher(testEncryptionKey)
	encrypted, _ := cipher.Encrypt("plaintext")

	tests := []struct {
		name  string
		input string
	}{
		{"no separator", strings.ReplaceAll(encrypted, ":", "")},
		{"truncated ciphertext", encrypted[:strings.Index(encrypted, ":")+5]},
		{"bad hex", encrypted[:len(encrypted)-2] + "zz"},
		{"empty", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := cipher.Decrypt(tc.input); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
