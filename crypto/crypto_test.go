package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func newTestEncryptor(t *testing.T) *AESEncryptor {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate random key: %v", err)
	}
	enc, err := NewAESEncryptor(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}
	return enc
}

func TestNewAESEncryptor(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		errorMsg  string
		wantError bool
	}{
		{name: "empty key", key: "", wantError: true, errorMsg: "encryption key is empty"},
		{name: "invalid base64", key: "not-valid-base64!@#$", wantError: true, errorMsg: "base64 decode failed"},
		{name: "key too short", key: base64.StdEncoding.EncodeToString(make([]byte, 16)), wantError: true, errorMsg: "must be 32 bytes"},
		{name: "key too long", key: base64.StdEncoding.EncodeToString(make([]byte, 64)), wantError: true, errorMsg: "must be 32 bytes"},
		{name: "valid 32-byte key", key: base64.StdEncoding.EncodeToString(make([]byte, 32))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewAESEncryptor(tt.key)
			if tt.wantError {
				if err == nil {
					t.Fatal("NewAESEncryptor() expected error but got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("NewAESEncryptor() error = %v, want error containing %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil || enc == nil {
				t.Fatalf("NewAESEncryptor() = %v, %v", enc, err)
			}
			if len(enc.KeyID()) != 16 {
				t.Errorf("KeyID() = %q, want 16 hex chars", enc.KeyID())
			}
		})
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	enc := newTestEncryptor(t)
	payloads := []string{
		`{"teamNumber":"118","notes":"fast intake","events":[]}`,
		strings.Repeat("x", 4096),
		"notes with unicode é ✓",
	}
	for _, p := range payloads {
		sealed, err := enc.Seal([]byte(p), []byte("match-1"))
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}
		if bytes.Contains(sealed, []byte(p)) {
			t.Error("ciphertext contains plaintext")
		}
		opened, err := enc.Open(sealed, []byte("match-1"))
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if string(opened) != p {
			t.Errorf("Open() = %q, want %q", opened, p)
		}
	}
}

func TestSealIsRandomized(t *testing.T) {
	enc := newTestEncryptor(t)
	a, _ := enc.Seal([]byte("same"), nil)
	b, _ := enc.Seal([]byte("same"), nil)
	if bytes.Equal(a, b) {
		t.Error("two seals of the same plaintext are identical")
	}
}

func TestOpenRejectsWrongRow(t *testing.T) {
	enc := newTestEncryptor(t)
	sealed, err := enc.Seal([]byte("payload"), []byte("match-1"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if _, err := enc.Open(sealed, []byte("match-2")); !errors.Is(err, ErrOpen) {
		t.Errorf("Open() with other aad = %v, want ErrOpen", err)
	}
}

func TestOpenRejectsTamperingAndWrongKey(t *testing.T) {
	enc := newTestEncryptor(t)
	sealed, _ := enc.Seal([]byte("payload"), nil)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	if _, err := enc.Open(tampered, nil); !errors.Is(err, ErrOpen) {
		t.Errorf("Open(tampered) = %v, want ErrOpen", err)
	}

	other := newTestEncryptor(t)
	if _, err := other.Open(sealed, nil); !errors.Is(err, ErrOpen) {
		t.Errorf("Open(wrong key) = %v, want ErrOpen", err)
	}

	if _, err := enc.Open([]byte("short"), nil); err == nil || !strings.Contains(err.Error(), "too short") {
		t.Errorf("Open(short) = %v", err)
	}
}

func TestSealEmptyPlaintext(t *testing.T) {
	enc := newTestEncryptor(t)
	if _, err := enc.Seal(nil, nil); err == nil {
		t.Error("Seal(nil) expected error")
	}
}

func TestSealStringOpenString(t *testing.T) {
	enc := newTestEncryptor(t)

	empty, err := SealString(enc, "", "id")
	if err != nil || empty != "" {
		t.Errorf("SealString(empty) = %q, %v", empty, err)
	}

	sealed, err := SealString(enc, "scouting notes", "id")
	if err != nil {
		t.Fatalf("SealString() error = %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(sealed); err != nil {
		t.Errorf("sealed value is not base64: %v", err)
	}
	got, err := OpenString(enc, sealed, "id")
	if err != nil || got != "scouting notes" {
		t.Errorf("OpenString() = %q, %v", got, err)
	}

	if _, err := OpenString(enc, "%%%", "id"); err == nil || !strings.Contains(err.Error(), "base64") {
		t.Errorf("OpenString(bad base64) = %v", err)
	}
	if got, err := OpenString(enc, "", "id"); err != nil || got != "" {
		t.Errorf("OpenString(empty) = %q, %v", got, err)
	}
}
