// Package encryption provides the symmetric ciphers applied to encoded voice
// payloads before they leave the client.
//
// The server chooses the algorithm and key during the handshake. Every
// Encrypt call produces a self-contained ciphertext (random IV or nonce
// prefixed) so packets can be decrypted independently and in any order.
package encryption

import (
	"errors"
	"fmt"
)

// Algorithm names as advertised by the server.
const (
	AESCBC           = "AES_CBC"
	ChaCha20Poly1305 = "CHACHA20_POLY1305"
)

// ErrUnknownAlgorithm is returned by [New] for unsupported algorithm names.
var ErrUnknownAlgorithm = errors.New("encryption: unknown algorithm")

// Encryption encrypts and decrypts voice payloads. Implementations are safe
// for concurrent use.
type Encryption interface {
	// Name returns the algorithm identifier.
	Name() string

	// Encrypt returns the ciphertext of plain. Failures are *EncryptionError.
	Encrypt(plain []byte) ([]byte, error)

	// Decrypt reverses Encrypt. Failures are *EncryptionError.
	Decrypt(data []byte) ([]byte, error)
}

// EncryptionError wraps a failure raised by an Encryption.
type EncryptionError struct {
	// Algorithm is the algorithm name.
	Algorithm string

	// Op is "init", "encrypt", or "decrypt".
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encryption: %s %s: %v", e.Algorithm, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *EncryptionError) Unwrap() error { return e.Err }

// New returns the Encryption for algorithm keyed with key.
func New(algorithm string, key []byte) (Encryption, error) {
	switch algorithm {
	case AESCBC:
		return NewAESCBC(key)
	case ChaCha20Poly1305:
		return NewChaCha20Poly1305(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}
