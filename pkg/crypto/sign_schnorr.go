package crypto

import (
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
)

// SchnorrSignature pairs a Schnorr signature with the key that produced it.
type SchnorrSignature struct {
	Pk  kyber.Point
	Sig []byte
}

// NewSchnorrSignature signs msg with sk.
func NewSchnorrSignature(sk kyber.Scalar, pk kyber.Point, msg []byte) (*SchnorrSignature, error) {
	sig, err := schnorr.Sign(Suite, sk, msg)
	if err != nil {
		return nil, err
	}
	return &SchnorrSignature{Pk: pk, Sig: sig}, nil
}

// Verify validates the signature over msg against the embedded public key.
func (s *SchnorrSignature) Verify(msg []byte) error {
	return schnorr.Verify(Suite, s.Pk, msg, s.Sig)
}

// VerifyFor validates the signature over msg and that it was made by expected.
func (s *SchnorrSignature) VerifyFor(expected kyber.Point, msg []byte) error {
	if expected == nil || !s.Pk.Equal(expected) {
		return errSignerMismatch
	}
	return s.Verify(msg)
}
