package crypto

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"

	"golang.org/x/xerrors"
)

// DefaultKeyBits is the modulus size of the authority key pair.
const DefaultKeyBits = 2048

// KeyPair is the tallying authority's long-lived asymmetric key pair.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// GenerateKeyPair creates a new RSA key pair of the given modulus size.
func GenerateKeyPair(random io.Reader, bits int) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(orDefault(random), bits)
	if err != nil {
		return nil, xerrors.Errorf("failed to generate rsa key: %w", err)
	}
	return &KeyPair{Public: &priv.PublicKey, Private: priv}, nil
}

// PublicPEM encodes the public key as a PEM "PUBLIC KEY" (SPKI) block.
func (kp *KeyPair) PublicPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(kp.Public)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// PrivatePEM encodes the private key as a PEM "PRIVATE KEY" (PKCS#8) block.
func (kp *KeyPair) PrivatePEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(kp.Private)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParsePublicKeyPEM decodes an SPKI PEM block holding an RSA key.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, xerrors.New("no PUBLIC KEY block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, xerrors.Errorf("public key is %T, not RSA", key)
	}
	return pub, nil
}

// ParsePrivateKeyPEM decodes a PKCS#8 PEM block holding an RSA key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PRIVATE KEY" {
		return nil, xerrors.New("no PRIVATE KEY block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse private key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, xerrors.Errorf("private key is %T, not RSA", key)
	}
	return priv, nil
}

// WrapKey encrypts a short symmetric key with RSA-OAEP(SHA-256) and returns it base64-encoded.
func WrapKey(random io.Reader, key []byte, pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		return "", xerrors.New("nil public key")
	}
	out, err := rsa.EncryptOAEP(sha256.New(), orDefault(random), pub, key, nil)
	if err != nil {
		return "", xerrors.Errorf("failed to wrap key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// UnwrapKey reverses WrapKey. Bad encoding, padding or a non-matching private
// key all yield ErrDecryption.
func UnwrapKey(wrapped string, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, xerrors.Errorf("%w: nil private key", ErrDecryption)
	}
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, xerrors.Errorf("%w: wrapped key is not base64", ErrDecryption)
	}
	key, err := rsa.DecryptOAEP(sha256.New(), nil, priv, raw, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return key, nil
}

// Sign returns a base64 RSASSA-PKCS1-v1_5 signature over the SHA-256 digest of data.
func Sign(data []byte, priv *rsa.PrivateKey) (string, error) {
	if priv == nil {
		return "", xerrors.New("nil private key")
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, digest[:])
	if err != nil {
		return "", xerrors.Errorf("failed to sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether signature is a valid Sign output for data under pub.
// Malformed input verifies as false.
func Verify(data []byte, signature string, pub *rsa.PublicKey) bool {
	if pub == nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
}
