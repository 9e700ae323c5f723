package phi

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

func generateTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func TestNewEncryptor_KeyLength(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"32 bytes", 32, false},
		{"too short", 16, true},
		{"too long", 64, true},
		{"empty", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEncryptor(make([]byte, tt.size))
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEncryptDecrypt(t *testing.T) {
	enc, err := NewEncryptor(generateTestKey(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, plain := range []string{"Jane Doe", "1234567", "O'Brien-Smith", "名前"} {
		sealed, err := enc.Encrypt(plain)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !IsEncrypted(sealed) || strings.Contains(sealed, plain) {
			t.Errorf("expected %q to be sealed, got %q", plain, sealed)
		}
		got, err := enc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != plain {
			t.Errorf("expected %q, got %q", plain, got)
		}
	}
}

func TestEncrypt_UniqueNonce(t *testing.T) {
	enc, _ := NewEncryptor(generateTestKey(t))
	a, _ := enc.Encrypt("Jane Doe")
	b, _ := enc.Encrypt("Jane Doe")
	if a == b {
		t.Error("expected different ciphertexts for the same plaintext")
	}
}

func TestEncrypt_PassThrough(t *testing.T) {
	enc, _ := NewEncryptor(generateTestKey(t))
	if got, _ := enc.Encrypt(""); got != "" {
		t.Errorf("expected empty value kept, got %q", got)
	}
	sealed, _ := enc.Encrypt("x")
	if again, _ := enc.Encrypt(sealed); again != sealed {
		t.Error("expected sealed value not to be sealed twice")
	}
	if got, _ := enc.Decrypt("plain text"); got != "plain text" {
		t.Errorf("expected unprefixed value unchanged, got %q", got)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	a, _ := NewEncryptor(generateTestKey(t))
	b, _ := NewEncryptor(generateTestKey(t))
	sealed, _ := a.Encrypt("Jane Doe")
	if _, err := b.Decrypt(sealed); err == nil {
		t.Fatal("expected error decrypting with the wrong key")
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	enc, _ := NewEncryptor(generateTestKey(t))
	tests := []string{
		Prefix + "!!!not-base64",
		Prefix + base64.StdEncoding.EncodeToString([]byte("short")),
	}
	for _, v := range tests {
		if _, err := enc.Decrypt(v); err == nil {
			t.Errorf("expected error for %q", v)
		}
	}
}

func TestParseKey(t *testing.T) {
	key := generateTestKey(t)
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"hex", hex.EncodeToString(key), false},
		{"base64", base64.StdEncoding.EncodeToString(key), false},
		{"base64 padded with space", " " + base64.StdEncoding.EncodeToString(key) + "\n", false},
		{"short", base64.StdEncoding.EncodeToString(key[:16]), true},
		{"garbage", "not a key", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != string(key) {
				t.Error("decoded key does not match")
			}
		})
	}
}
