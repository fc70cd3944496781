// Package receipt builds the signed receipt a voter keeps after casting, and
// renders it as a QR code that can be printed and scanned back.
package receipt

import (
	"fmt"

	"go.dedis.ch/kyber/v3"
	"votevault/pkg/crypto"
	"votevault/pkg/serialization"
)

// Signer signs receipt messages on behalf of the tallying authority.
type Signer interface {
	SignReceipt(msg []byte) (*crypto.SchnorrSignature, error)
}

// Receipt proves that a vote with the given hash was accepted and anchored.
// It never contains the candidate choice.
type Receipt struct {
	VoteID         string
	ElectionRef    string
	VoteHash       string
	TransactionRef string
	Timestamp      int64

	AuthorityPk kyber.Point
	Sig         []byte
}

// MessageToSign returns the bytes covered by the authority signature.
func (r *Receipt) MessageToSign() ([]byte, error) {
	s := serialization.NewSerializer()
	s.WriteString(r.VoteID)
	s.WriteString(r.ElectionRef)
	s.WriteString(r.VoteHash)
	s.WriteString(r.TransactionRef)
	s.WriteInt64(r.Timestamp)
	return s.Bytes()
}

// Sign attaches the authority's signature.
func (r *Receipt) Sign(signer Signer) error {
	msg, err := r.MessageToSign()
	if err != nil {
		return err
	}
	sig, err := signer.SignReceipt(msg)
	if err != nil {
		return fmt.Errorf("failed to sign receipt: %w", err)
	}
	r.AuthorityPk = sig.Pk
	r.Sig = sig.Sig
	return nil
}

// Verify checks that the receipt was signed by authority.
func (r *Receipt) Verify(authority kyber.Point) error {
	if r.AuthorityPk == nil || len(r.Sig) == 0 {
		return fmt.Errorf("receipt for vote %s is not signed", r.VoteHash)
	}
	msg, err := r.MessageToSign()
	if err != nil {
		return err
	}
	sig := &crypto.SchnorrSignature{Pk: r.AuthorityPk, Sig: r.Sig}
	if err := sig.VerifyFor(authority, msg); err != nil {
		return fmt.Errorf("invalid receipt signature for vote %s: %w", r.VoteHash, err)
	}
	return nil
}

// Serialize returns the signed message, the authority key, then the signature.
func (r *Receipt) Serialize() ([]byte, error) {
	if r.AuthorityPk == nil {
		return nil, fmt.Errorf("receipt for vote %s is not signed", r.VoteHash)
	}
	msg, err := r.MessageToSign()
	if err != nil {
		return nil, err
	}
	s := serialization.NewSerializer()
	s.Write(msg)
	s.WriteKyber(r.AuthorityPk)
	s.Write(r.Sig)
	return s.Bytes()
}

// Deserialize populates the receipt from Serialize output.
func (r *Receipt) Deserialize(data []byte) error {
	r.AuthorityPk = crypto.Suite.Point()

	d := serialization.NewDeserializer(data)
	r.VoteID = d.ReadString()
	r.ElectionRef = d.ReadString()
	r.VoteHash = d.ReadString()
	r.TransactionRef = d.ReadString()
	r.Timestamp = d.ReadInt64()
	d.ReadKyber(r.AuthorityPk)
	r.Sig = d.ReadBytes() // the rest is the signature
	if err := d.ErrStrict(); err != nil {
		return fmt.Errorf("failed to deserialize receipt: %w", err)
	}
	if len(r.Sig) == 0 {
		return fmt.Errorf("failed to deserialize receipt: missing signature")
	}
	return nil
}

func (r *Receipt) String() string {
	return fmt.Sprintf("Receipt{Vote:%s Election:%s Hash:%s Tx:%s At:%d}",
		r.VoteID, r.ElectionRef, r.VoteHash, r.TransactionRef, r.Timestamp)
}
