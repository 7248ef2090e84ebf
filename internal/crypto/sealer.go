// Package crypto seals persisted authorization state with AES-256-GCM.
//
// Each Seal call draws a fresh random nonce, so sealing the same plaintext
// twice produces different ciphertexts. The key is derived from an arbitrary
// passphrase with PBKDF2.
//
// Example usage:
//
//	sealer, err := crypto.NewSealer(os.Getenv("RESTIFY_STORE_KEY"))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	blob, err := sealer.SealJSON(state)
//	if err != nil {
//		log.Fatal(err)
//	}
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"golang.org/x/crypto/pbkdf2"
	"restify/internal/common/errors"
)

const (
	keySalt       = "restify-state-store"
	keyIterations = 10000
	keyLength     = 32
)

// Sealer encrypts and authenticates blobs.
// It is safe for concurrent use by multiple goroutines.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives an AES-256 key from passphrase and returns a Sealer using it.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.ValidationError("encryption key cannot be empty")
	}

	key := pbkdf2.Key([]byte(passphrase), []byte(keySalt), keyIterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.InternalError("failed to create cipher", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.InternalError("failed to create GCM", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext and returns the base64 encoded nonce and ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.InternalError("failed to create nonce", err)
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

// Open reverses Seal. Tampered or truncated input yields a validation error.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	data := make([]byte, base64.StdEncoding.DecodedLen(len(sealed)))
	n, err := base64.StdEncoding.Decode(data, sealed)
	if err != nil {
		return nil, errors.ValidationError("sealed data is not valid base64").WithCause(err)
	}
	data = data[:n]

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize+s.aead.Overhead() {
		return nil, errors.ValidationError("sealed data too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.ValidationError("failed to decrypt sealed data").WithCause(err)
	}

	return plaintext, nil
}

// SealJSON marshals v and seals the result.
func (s *Sealer) SealJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.InternalError("failed to marshal JSON", err)
	}
	return s.Seal(data)
}

// OpenJSON opens sealed and unmarshals the plaintext into v.
func (s *Sealer) OpenJSON(sealed []byte, v interface{}) error {
	data, err := s.Open(sealed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.ValidationError("sealed data is not valid JSON").WithCause(err)
	}
	return nil
}
