package crypto

import (
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/util/random"
	"golang.org/x/xerrors"
	"votevault/pkg/log"
)

const (
	PublicKeyFile  = "public.pem"
	PrivateKeyFile = "private.pem"
	ReceiptKeyFile = "receipt.key"
)

// LoadKeyPair reads the authority key pair from dir. When the files are absent
// it generates and persists a new pair if allowGenerate is set, and otherwise
// fails with ErrKeyMaterialMissing.
func LoadKeyPair(dir string, allowGenerate bool, rnd io.Reader) (*KeyPair, error) {
	pubPath := filepath.Join(dir, PublicKeyFile)
	privPath := filepath.Join(dir, PrivateKeyFile)

	pubPEM, pubErr := os.ReadFile(pubPath)
	privPEM, privErr := os.ReadFile(privPath)
	if pubErr == nil && privErr == nil {
		return parseKeyPair(pubPEM, privPEM)
	}
	if !missing(pubErr) || !missing(privErr) {
		// One file present, or an I/O error other than absence.
		return nil, xerrors.Errorf("incomplete key material in %s: %w", dir, errors.Join(pubErr, privErr))
	}
	if !allowGenerate {
		return nil, xerrors.Errorf("%w: %s and %s not found in %s", ErrKeyMaterialMissing, PublicKeyFile, PrivateKeyFile, dir)
	}

	log.Warn("RSA key pair not found in %s, generating a new one", dir)
	kp, err := GenerateKeyPair(rnd, DefaultKeyBits)
	if err != nil {
		return nil, err
	}
	if err := WriteKeyPair(dir, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

func missing(err error) bool {
	return err != nil && errors.Is(err, fs.ErrNotExist)
}

func parseKeyPair(pubPEM, privPEM []byte) (*KeyPair, error) {
	pub, err := ParsePublicKeyPEM(pubPEM)
	if err != nil {
		return nil, err
	}
	priv, err := ParsePrivateKeyPEM(privPEM)
	if err != nil {
		return nil, err
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, xerrors.New("public key does not match private key")
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// WriteKeyPair persists kp to dir. The private key file is readable by the owner only.
func WriteKeyPair(dir string, kp *KeyPair) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return xerrors.Errorf("failed to create key directory: %w", err)
	}
	pubPEM, err := kp.PublicPEM()
	if err != nil {
		return err
	}
	privPEM, err := kp.PrivatePEM()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, PublicKeyFile), pubPEM, 0644); err != nil {
		return xerrors.Errorf("failed to write public key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, PrivateKeyFile), privPEM, 0600); err != nil {
		return xerrors.Errorf("failed to write private key: %w", err)
	}
	return nil
}

// LoadFieldKey decodes the process-wide symmetric key from its hex form. An
// empty value yields a fresh random key if allowGenerate is set, and
// ErrKeyMaterialMissing otherwise.
func LoadFieldKey(hexKey string, allowGenerate bool, rnd io.Reader) ([]byte, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		if !allowGenerate {
			return nil, xerrors.Errorf("%w: field encryption key not set", ErrKeyMaterialMissing)
		}
		log.Warn("Field encryption key not set, generating an ephemeral one")
		return GenerateKey(rnd)
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != KeySize {
		return nil, xerrors.Errorf("field encryption key must be %d hex characters", 2*KeySize)
	}
	return key, nil
}

// LoadReceiptKey reads the Schnorr key used to sign vote receipts from dir,
// following the same generation policy as LoadKeyPair.
func LoadReceiptKey(dir string, allowGenerate bool, rnd io.Reader) (kyber.Scalar, kyber.Point, error) {
	path := filepath.Join(dir, ReceiptKeyFile)
	data, err := os.ReadFile(path)
	if err == nil {
		raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, nil, xerrors.Errorf("failed to decode receipt key: %w", err)
		}
		sk := Suite.Scalar()
		if err := sk.UnmarshalBinary(raw); err != nil {
			return nil, nil, xerrors.Errorf("failed to decode receipt key: %w", err)
		}
		return sk, Suite.Point().Mul(sk, G), nil
	}
	if !missing(err) {
		return nil, nil, xerrors.Errorf("failed to read receipt key: %w", err)
	}
	if !allowGenerate {
		return nil, nil, xerrors.Errorf("%w: %s not found in %s", ErrKeyMaterialMissing, ReceiptKeyFile, dir)
	}

	log.Warn("Receipt signing key not found in %s, generating a new one", dir)
	sk, pk := NewReceiptKey(rnd)
	if err := WriteReceiptKey(dir, sk); err != nil {
		return nil, nil, err
	}
	return sk, pk, nil
}

// NewReceiptKey picks a fresh Schnorr key pair.
func NewReceiptKey(rnd io.Reader) (kyber.Scalar, kyber.Point) {
	sk := Suite.Scalar().Pick(random.New(orDefault(rnd)))
	return sk, Suite.Point().Mul(sk, G)
}

// WriteReceiptKey persists the receipt signing scalar hex-encoded.
func WriteReceiptKey(dir string, sk kyber.Scalar) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return xerrors.Errorf("failed to create key directory: %w", err)
	}
	raw, err := sk.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ReceiptKeyFile), []byte(hex.EncodeToString(raw)), 0600); err != nil {
		return xerrors.Errorf("failed to write receipt key: %w", err)
	}
	return nil
}
