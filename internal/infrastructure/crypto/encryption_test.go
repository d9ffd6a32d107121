package crypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestEncryptor_EncryptDecrypt(t *testing.T) {
	enc, err := NewEncryptorWithKey(testKey())
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"session json", `{"access_token":"eyJ.a.b","refresh_token":"r1","user_id":"farmer-1"}`},
		{"unicode", "किसान"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := enc.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("encrypt failed: %v", err)
			}
			decrypted, err := enc.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("decrypt failed: %v", err)
			}
			if decrypted != tt.plaintext {
				t.Errorf("roundtrip failed: got %q, want %q", decrypted, tt.plaintext)
			}
			if tt.plaintext != "" && ciphertext == tt.plaintext {
				t.Error("ciphertext should differ from plaintext")
			}
		})
	}
}

func TestEncryptor_InvalidKey(t *testing.T) {
	if _, err := NewEncryptorWithKey([]byte("short")); err == nil {
		t.Error("expected error for short key")
	}
}

func TestEncryptor_InvalidCiphertext(t *testing.T) {
	enc, _ := NewEncryptorWithKey(testKey())

	for _, in := range []string{"not-valid-base64!", "SGVsbG8gV29ybGQ="} {
		if _, err := enc.Decrypt(in); err != ErrInvalidCiphertext {
			t.Errorf("Decrypt(%q) error = %v, want ErrInvalidCiphertext", in, err)
		}
	}

	other, _ := NewEncryptorWithKey(make([]byte, KeySize))
	sealed, _ := enc.Encrypt("token")
	if _, err := other.Decrypt(sealed); err != ErrInvalidCiphertext {
		t.Errorf("wrong key error = %v, want ErrInvalidCiphertext", err)
	}
}

func TestEncryptor_DifferentCiphertexts(t *testing.T) {
	enc, _ := NewEncryptorWithKey(testKey())

	ct1, _ := enc.Encrypt("same")
	ct2, _ := enc.Encrypt("same")
	if ct1 == ct2 {
		t.Error("expected different ciphertexts for the same plaintext")
	}
}

func TestNewEncryptorFromDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cropcare")

	first, err := NewEncryptorFromDir(dir)
	if err != nil {
		t.Fatalf("NewEncryptorFromDir() error = %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, KeyFileName))
	if err != nil {
		t.Fatalf("key file not created: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	sealed, err := first.Encrypt("refresh-token")
	if err != nil {
		t.Fatal(err)
	}

	second, err := NewEncryptorFromDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := second.Decrypt(sealed)
	if err != nil || got != "refresh-token" {
		t.Errorf("reopened Decrypt() = %q, %v", got, err)
	}
}

func TestNewEncryptorFromDir_ReplacesTruncatedKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, KeyFileName)
	if err := os.WriteFile(path, []byte("short"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewEncryptorFromDir(dir); err != nil {
		t.Fatalf("NewEncryptorFromDir() error = %v", err)
	}
	key, _ := os.ReadFile(path)
	if len(key) != KeySize || bytes.Equal(key, []byte("short")) {
		t.Errorf("key not regenerated, len = %d", len(key))
	}
}
