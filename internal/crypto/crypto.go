// Package crypto seals stored secrets (account tokens, push keys) with AES-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

var ErrShortCiphertext = errors.New("crypto: ciphertext too short")

type AEAD struct{ aead cipher.AEAD }

// New expects a 16, 24 or 32 byte key.
func New(key []byte) (*AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	a, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AEAD{aead: a}, nil
}

// Seal returns base64(nonce || ciphertext). The key name is bound as
// additional data so a sealed value cannot be moved to another key.
func (a *AEAD) Seal(key, plaintext string) (string, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	buf := a.aead.Seal(nonce, nonce, []byte(plaintext), []byte(key))
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

func (a *AEAD) Open(key, sealed string) (string, error) {
	buf, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	ns := a.aead.NonceSize()
	if len(buf) < ns {
		return "", ErrShortCiphertext
	}
	pt, err := a.aead.Open(nil, buf[:ns], buf[ns:], []byte(key))
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
