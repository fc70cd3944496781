// Package envelope implements hybrid vote encryption: each ballot is sealed
// with a one-time AES-256-GCM key, and that key is wrapped with the tallying
// authority's RSA public key.
package envelope

import (
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/xerrors"
	"votevault/pkg/crypto"
)

// Envelope is the stored, encrypted form of one vote.
type Envelope struct {
	EncryptedPayload string `json:"encryptedVote"` // hex ciphertext without tag
	WrappedKey       string `json:"encryptedKey"`  // base64 RSA-OAEP
	IV               string `json:"iv"`            // hex
	AuthTag          string `json:"tag"`           // hex
}

// KeyUnwrapper recovers the one-time key of an envelope.
type KeyUnwrapper interface {
	UnwrapKey(wrapped string) ([]byte, error)
}

type privateKey struct{ priv *rsa.PrivateKey }

func (p privateKey) UnwrapKey(wrapped string) ([]byte, error) {
	return crypto.UnwrapKey(wrapped, p.priv)
}

// Seal encrypts record for the holder of the private key matching pub. The
// caller must have checked CandidateChoice against the election beforehand.
func Seal(random io.Reader, record *VoteRecord, pub *rsa.PublicKey) (*Envelope, error) {
	plaintext, err := record.MarshalBinary()
	if err != nil {
		return nil, err
	}
	key, err := crypto.GenerateKey(random)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	sealed, err := crypto.Encrypt(random, plaintext, key)
	if err != nil {
		return nil, err
	}
	wrapped, err := crypto.WrapKey(random, key, pub)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EncryptedPayload: hex.EncodeToString(sealed.Ciphertext),
		WrappedKey:       wrapped,
		IV:               hex.EncodeToString(sealed.IV),
		AuthTag:          hex.EncodeToString(sealed.Tag),
	}, nil
}

// Open decrypts env with the authority private key.
func Open(env *Envelope, priv *rsa.PrivateKey) (*VoteRecord, error) {
	return OpenWith(env, privateKey{priv})
}

// OpenWith decrypts env using u to recover the one-time key. Failures wrap
// crypto.ErrDecryption or crypto.ErrAuthentication; the candidate choice is
// not range-checked here.
func OpenWith(env *Envelope, u KeyUnwrapper) (*VoteRecord, error) {
	if env == nil {
		return nil, xerrors.Errorf("%w: nil envelope", crypto.ErrDecryption)
	}
	ct, err1 := hex.DecodeString(env.EncryptedPayload)
	iv, err2 := hex.DecodeString(env.IV)
	tag, err3 := hex.DecodeString(env.AuthTag)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, xerrors.Errorf("%w: envelope field is not hex-encoded", crypto.ErrDecryption)
	}

	key, err := u.UnwrapKey(env.WrappedKey)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	plaintext, err := crypto.Decrypt(ct, key, iv, tag)
	if err != nil {
		return nil, err
	}
	record := new(VoteRecord)
	if err := record.UnmarshalBinary(plaintext); err != nil {
		return nil, xerrors.Errorf("%w: %v", crypto.ErrDecryption, err)
	}
	return record, nil
}

// ComputeVoteHash returns the receipt hash of a vote: SHA-256 over
// "electionRef-voterRef-candidateChoice-timestamp", hex-encoded. The field
// order is fixed; anyone holding the four values can recompute it.
func ComputeVoteHash(electionRef, voterRef string, candidateChoice int, timestamp int64) string {
	return crypto.SHA256Hex(fmt.Sprintf("%s-%s-%d-%d", electionRef, voterRef, candidateChoice, timestamp))
}

// Hash is ComputeVoteHash over the record's fields.
func (r *VoteRecord) Hash() string {
	return ComputeVoteHash(r.ElectionRef, r.VoterRef, r.CandidateChoice, r.Timestamp)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
