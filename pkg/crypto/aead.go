package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"io"

	"golang.org/x/xerrors"
)

const (
	KeySize = 32 // AES-256
	IVSize  = 16
	TagSize = 16
)

// Sealed is the output of Encrypt. The tag is kept apart from the ciphertext.
type Sealed struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
}

// GenerateKey returns a fresh 256-bit symmetric key.
func GenerateKey(random io.Reader) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(orDefault(random), key); err != nil {
		return nil, xerrors.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, xerrors.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, IVSize)
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random 128-bit IV.
func Encrypt(random io.Reader, plaintext, key []byte) (*Sealed, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(orDefault(random), iv); err != nil {
		return nil, xerrors.Errorf("failed to generate iv: %w", err)
	}
	out := gcm.Seal(nil, iv, plaintext, nil)
	split := len(out) - TagSize
	return &Sealed{Ciphertext: out[:split], IV: iv, Tag: out[split:]}, nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any mismatch of key, IV,
// tag or ciphertext yields ErrAuthentication and no plaintext.
func Decrypt(ciphertext, key, iv, tag []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrAuthentication, err)
	}
	if len(iv) != IVSize || len(tag) != TagSize {
		return nil, xerrors.Errorf("%w: iv or tag has wrong length", ErrAuthentication)
	}
	buf := make([]byte, 0, len(ciphertext)+TagSize)
	buf = append(append(buf, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, buf, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
