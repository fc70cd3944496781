package crypto

import (
	"crypto/rsa"
	"encoding/hex"
	"io"

	"golang.org/x/xerrors"
	"votevault/pkg/config"
)

// FieldCiphertext is a sensitive non-vote field sealed under the process-wide key.
type FieldCiphertext struct {
	Encrypted string `json:"encrypted"` // hex
	IV        string `json:"iv"`        // hex
	Tag       string `json:"tag"`       // hex
}

// Service holds the authority key material for the lifetime of the process.
// Its fields are read-only after construction and the sources returned by
// RandomSource are safe for concurrent reads, so a Service may be shared
// between goroutines. A caller-supplied random reader must be as well.
type Service struct {
	keys     *KeyPair
	fieldKey []byte
	random   io.Reader
}

// NewService wires already-loaded key material into a Service.
func NewService(keys *KeyPair, fieldKey []byte, random io.Reader) (*Service, error) {
	if keys == nil || keys.Public == nil || keys.Private == nil {
		return nil, xerrors.New("incomplete key pair")
	}
	if len(fieldKey) != KeySize {
		return nil, xerrors.Errorf("field key must be %d bytes, got %d", KeySize, len(fieldKey))
	}
	return &Service{keys: keys, fieldKey: append([]byte(nil), fieldKey...), random: orDefault(random)}, nil
}

// LoadService loads key material as configured. Production mode never
// generates keys and fails with ErrKeyMaterialMissing instead.
func LoadService(cfg *config.Config, random io.Reader) (*Service, error) {
	allow := cfg.AllowKeyGeneration()
	keys, err := LoadKeyPair(cfg.KeyDir, allow, random)
	if err != nil {
		return nil, err
	}
	fieldKey, err := LoadFieldKey(cfg.FieldKeyHex, allow, random)
	if err != nil {
		return nil, err
	}
	return NewService(keys, fieldKey, random)
}

// PublicKey returns the authority public key used to wrap envelope keys.
func (s *Service) PublicKey() *rsa.PublicKey {
	return s.keys.Public
}

// PublicKeyPEM returns the public key in its portable textual encoding.
func (s *Service) PublicKeyPEM() ([]byte, error) {
	return s.keys.PublicPEM()
}

// Random returns the randomness source the Service was built with.
func (s *Service) Random() io.Reader {
	return s.random
}

// UnwrapKey decrypts an envelope key with the authority private key.
func (s *Service) UnwrapKey(wrapped string) ([]byte, error) {
	return UnwrapKey(wrapped, s.keys.Private)
}

// Sign signs data with the authority private key.
func (s *Service) Sign(data []byte) (string, error) {
	return Sign(data, s.keys.Private)
}

// Verify checks a signature made by Sign.
func (s *Service) Verify(data []byte, signature string) bool {
	return Verify(data, signature, s.keys.Public)
}

// EncryptField seals plaintext under the process-wide key.
func (s *Service) EncryptField(plaintext string) (*FieldCiphertext, error) {
	sealed, err := Encrypt(s.random, []byte(plaintext), s.fieldKey)
	if err != nil {
		return nil, err
	}
	return &FieldCiphertext{
		Encrypted: hex.EncodeToString(sealed.Ciphertext),
		IV:        hex.EncodeToString(sealed.IV),
		Tag:       hex.EncodeToString(sealed.Tag),
	}, nil
}

// DecryptField reverses EncryptField.
func (s *Service) DecryptField(fc *FieldCiphertext) (string, error) {
	if fc == nil {
		return "", xerrors.Errorf("%w: nil field", ErrDecryption)
	}
	ct, err1 := hex.DecodeString(fc.Encrypted)
	iv, err2 := hex.DecodeString(fc.IV)
	tag, err3 := hex.DecodeString(fc.Tag)
	if err1 != nil || err2 != nil || err3 != nil {
		return "", xerrors.Errorf("%w: field is not hex-encoded", ErrDecryption)
	}
	pt, err := Decrypt(ct, s.fieldKey, iv, tag)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
