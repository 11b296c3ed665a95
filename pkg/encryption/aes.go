package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

var (
	errShortCiphertext = errors.New("ciphertext too short")
	errBadPadding      = errors.New("invalid padding")
)

// AES encrypts with AES in CBC mode and PKCS#7 padding. Each ciphertext is
// prefixed with its random 16-byte IV.
type AES struct {
	block cipher.Block
}

var _ Encryption = (*AES)(nil)

// NewAESCBC returns an AES-CBC cipher. key must be 16, 24, or 32 bytes.
func NewAESCBC(key []byte) (*AES, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &EncryptionError{Algorithm: AESCBC, Op: "init", Err: err}
	}
	return &AES{block: block}, nil
}

// Name implements [Encryption].
func (a *AES) Name() string { return AESCBC }

// Encrypt implements [Encryption].
func (a *AES) Encrypt(plain []byte) ([]byte, error) {
	bs := a.block.BlockSize()
	pad := bs - len(plain)%bs
	out := make([]byte, bs+len(plain)+pad)
	iv := out[:bs]
	if _, err := rand.Read(iv); err != nil {
		return nil, &EncryptionError{Algorithm: AESCBC, Op: "encrypt", Err: err}
	}
	body := out[bs:]
	copy(body, plain)
	copy(body[len(plain):], bytes.Repeat([]byte{byte(pad)}, pad))
	cipher.NewCBCEncrypter(a.block, iv).CryptBlocks(body, body)
	return out, nil
}

// Decrypt implements [Encryption].
func (a *AES) Decrypt(data []byte) ([]byte, error) {
	bs := a.block.BlockSize()
	if len(data) < 2*bs || len(data)%bs != 0 {
		return nil, &EncryptionError{Algorithm: AESCBC, Op: "decrypt", Err: errShortCiphertext}
	}
	iv := data[:bs]
	body := make([]byte, len(data)-bs)
	cipher.NewCBCDecrypter(a.block, iv).CryptBlocks(body, data[bs:])
	pad := int(body[len(body)-1])
	if pad == 0 || pad > bs || pad > len(body) {
		return nil, &EncryptionError{Algorithm: AESCBC, Op: "decrypt", Err: errBadPadding}
	}
	for _, b := range body[len(body)-pad:] {
		if int(b) != pad {
			return nil, &EncryptionError{Algorithm: AESCBC, Op: "decrypt", Err: fmt.Errorf("%w: byte %d", errBadPadding, b)}
		}
	}
	return body[:len(body)-pad], nil
}
