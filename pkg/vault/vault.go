// Package vault turns resolved media URLs into opaque stream tokens.
//
// Tokens are AES-256-GCM sealed with a process-wide key and formatted as
// {nonceHex}:{ciphertextHex}. GCM authentication means a tampered token is
// rejected outright rather than decrypting to garbage.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/types"
)

const keySize = 32

// Vault encrypts and decrypts stream tokens.
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from a hex-encoded 32-byte key. With an empty key a
// random ephemeral one is generated; tokens then stop being decryptable
// after a restart, which is acceptable for short-lived stream links.
func New(keyHex string, log *logging.Logger) (*Vault, error) {
	var key []byte
	if keyHex == "" {
		key = make([]byte, keySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating vault key: %w", err)
		}
		log.WithComponent("vault").Warn("no vault key configured, generated an ephemeral key; stream tokens will not survive a restart")
	} else {
		var err error
		key, err = hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("decoding vault key: %w", err)
		}
		if len(key) != keySize {
			return nil, fmt.Errorf("vault key must be %d bytes, got %d", keySize, len(key))
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals a media URL into a stream token.
func (v *Vault) Encrypt(plainURL string) (string, error) {
	if plainURL == "" {
		return "", errors.New("empty url")
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plainURL), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens a stream token. Malformed or tampered input fails with
// types.ErrInvalidToken; it never panics into the streaming endpoint.
func (v *Vault) Decrypt(token string) (string, error) {
	nonceHex, cipherHex, ok := strings.Cut(token, ":")
	if !ok {
		return "", types.ErrInvalidToken
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != v.aead.NonceSize() {
		return "", types.ErrInvalidToken
	}
	sealed, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", types.ErrInvalidToken
	}

	plain, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", types.ErrInvalidToken
	}
	return string(plain), nil
}
