package encryption

import (
	"crypto/cipher"
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"
)

// ChaCha encrypts with ChaCha20-Poly1305. Each ciphertext is prefixed with its
// random 12-byte nonce and carries a 16-byte authentication tag.
type ChaCha struct {
	aead cipher.AEAD
}

var _ Encryption = (*ChaCha)(nil)

// NewChaCha20Poly1305 returns a ChaCha20-Poly1305 cipher. key must be 32 bytes.
func NewChaCha20Poly1305(key []byte) (*ChaCha, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, &EncryptionError{Algorithm: ChaCha20Poly1305, Op: "init", Err: err}
	}
	return &ChaCha{aead: aead}, nil
}

// Name implements [Encryption].
func (c *ChaCha) Name() string { return ChaCha20Poly1305 }

// Encrypt implements [Encryption].
func (c *ChaCha) Encrypt(plain []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	out := make([]byte, ns, ns+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, &EncryptionError{Algorithm: ChaCha20Poly1305, Op: "encrypt", Err: err}
	}
	return c.aead.Seal(out, out[:ns], plain, nil), nil
}

// Decrypt implements [Encryption].
func (c *ChaCha) Decrypt(data []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(data) < ns+c.aead.Overhead() {
		return nil, &EncryptionError{Algorithm: ChaCha20Poly1305, Op: "decrypt", Err: errShortCiphertext}
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, &EncryptionError{Algorithm: ChaCha20Poly1305, Op: "decrypt", Err: err}
	}
	return plain, nil
}
