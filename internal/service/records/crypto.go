package records

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	dataKeyEnv       = "TAXFILER_DATA_KEY"
	ciphertextPrefix = "enc:v1:"
)

var errInvalidCiphertext = errors.New("invalid ciphertext")

type textCipher struct {
	aead cipher.AEAD
}

func newTextCipherFromEnv() (*textCipher, error) {
	raw := strings.TrimSpace(os.Getenv(dataKeyEnv))
	if raw == "" {
		return nil, fmt.Errorf("%s not set", dataKeyEnv)
	}
	key, err := decodeKey(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", dataKeyEnv, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &textCipher{aead: aead}, nil
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length %d, want 32", len(key))
	}
	return key, nil
}

// seal encrypts plain when a cipher is configured.
func (c *textCipher) seal(plain string) (string, error) {
	if c == nil || plain == "" {
		return plain, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return ciphertextPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// open reverses seal. Values without the prefix are legacy plaintext.
func (c *textCipher) open(stored string) (string, error) {
	if !strings.HasPrefix(stored, ciphertextPrefix) {
		return stored, nil
	}
	if c == nil {
		return "", errors.New("encrypted value but no data key configured")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, ciphertextPrefix))
	if err != nil {
		return "", errInvalidCiphertext
	}
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return "", errInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", errInvalidCiphertext
	}
	return string(plain), nil
}
