package vault

import (
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/types"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	key := strings.Repeat("ab", 32)
	v, err := New(key, logging.New("error", false, io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return v
}

func TestVault_RoundTrip(t *testing.T) {
	v := newTestVault(t)

	urls := []string{
		"https://cdn.example/video/123.mp4?signature=abc&expires=1700000000",
		"https://cdn.example/v.m3u8",
		"http://plain.example/a b/c.mp4",
		"https://cdn.example/very/" + strings.Repeat("long/", 100) + "file.mp4",
	}

	for _, u := range urls {
		token, err := v.Encrypt(u)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", u, err)
		}
		got, err := v.Decrypt(token)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if got != u {
			t.Errorf("round trip = %q, want %q", got, u)
		}
	}
}

func TestVault_EncryptEmpty(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Encrypt(""); err == nil {
		t.Error("Encrypt(\"\") should fail")
	}
}

func TestVault_TokensDiffer(t *testing.T) {
	v := newTestVault(t)

	a, _ := v.Encrypt("https://cdn.example/v.mp4")
	b, _ := v.Encrypt("https://cdn.example/v.mp4")
	if a == b {
		t.Error("tokens for the same URL should differ (random nonce)")
	}
}

func TestVault_TamperedToken(t *testing.T) {
	v := newTestVault(t)

	token, err := v.Encrypt("https://cdn.example/v.mp4?expires=99")
	if err != nil {
		t.Fatal(err)
	}

	// Flip one ciphertext byte.
	nonceHex, cipherHex, _ := strings.Cut(token, ":")
	raw, _ := hex.DecodeString(cipherHex)
	raw[0] ^= 0xff
	tampered := nonceHex + ":" + hex.EncodeToString(raw)

	if _, err := v.Decrypt(tampered); !errors.Is(err, types.ErrInvalidToken) {
		t.Errorf("Decrypt(tampered) error = %v, want ErrInvalidToken", err)
	}
}

func TestVault_MalformedTokens(t *testing.T) {
	v := newTestVault(t)

	tests := []string{
		"",
		"nocolon",
		"zz:zz",
		"abcd:1234",
		"deadbeef:",
		":deadbeef",
	}

	for _, token := range tests {
		if _, err := v.Decrypt(token); !errors.Is(err, types.ErrInvalidToken) {
			t.Errorf("Decrypt(%q) error = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestVault_KeyValidation(t *testing.T) {
	log := logging.New("error", false, io.Discard)

	if _, err := New("abcd", log); err == nil {
		t.Error("short key should be rejected")
	}
	if _, err := New("not-hex", log); err == nil {
		t.Error("non-hex key should be rejected")
	}
	if _, err := New("", log); err != nil {
		t.Errorf("empty key should generate an ephemeral one, got %v", err)
	}
}
