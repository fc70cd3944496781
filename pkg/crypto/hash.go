package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
	"golang.org/x/xerrors"
)

// Algorithm names a one-way digest.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	// Keccak256 is the legacy Keccak used by Ethereum, not NIST SHA3-256.
	Keccak256 Algorithm = "keccak256"
)

const (
	SaltSize        = 16
	saltedHashIter  = 100000
	saltedHashBytes = 64
	saltSeparator   = ":"
)

func newHash(alg Algorithm) (hash.Hash, error) {
	switch alg {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case Keccak256:
		return sha3.NewLegacyKeccak256(), nil
	default:
		return nil, xerrors.Errorf("unsupported digest algorithm %q", alg)
	}
}

// Digest returns the hex-encoded digest of data.
func Digest(data []byte, alg Algorithm) (string, error) {
	h, err := newHash(alg)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SHA256Hex is Digest with SHA256, which cannot fail.
func SHA256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// SaltedHash derives a PBKDF2-SHA512 digest of secret under a fresh random
// salt and returns "<saltHex>:<digestHex>". The hex text of the salt is the
// PBKDF2 salt input, so stored values stay verifiable by other implementations
// of the same scheme.
func SaltedHash(random io.Reader, secret string) (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(orDefault(random), salt); err != nil {
		return "", xerrors.Errorf("failed to generate salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)
	return saltHex + saltSeparator + hex.EncodeToString(deriveSalted(secret, saltHex)), nil
}

// VerifySaltedHash reports whether candidate is the value stored by SaltedHash.
// Malformed stored values never verify.
func VerifySaltedHash(candidate, stored string) bool {
	saltHex, digestHex, ok := strings.Cut(stored, saltSeparator)
	if !ok || len(saltHex) != 2*SaltSize {
		return false
	}
	if _, err := hex.DecodeString(saltHex); err != nil {
		return false
	}
	want, err := hex.DecodeString(digestHex)
	if err != nil || len(want) != saltedHashBytes {
		return false
	}
	return subtle.ConstantTimeCompare(deriveSalted(candidate, saltHex), want) == 1
}

func deriveSalted(secret, saltHex string) []byte {
	return pbkdf2.Key([]byte(secret), []byte(saltHex), saltedHashIter, saltedHashBytes, sha512.New)
}
