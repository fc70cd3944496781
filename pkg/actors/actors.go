package actors

import (
	"crypto/rsa"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.dedis.ch/kyber/v3"
	"votevault/pkg/config"
	"votevault/pkg/crypto"
	"votevault/pkg/envelope"
)

// --- TallyingAuthority ---

// TallyingAuthority is the only actor holding private key material. Envelopes
// are sealed to its RSA public key and receipts are signed with its Schnorr key.
type TallyingAuthority struct {
	svc       *crypto.Service
	receiptSk kyber.Scalar
	receiptPk kyber.Point
}

// NewTallyingAuthority wires already-loaded key material into an authority.
func NewTallyingAuthority(svc *crypto.Service, receiptSk kyber.Scalar, receiptPk kyber.Point) (*TallyingAuthority, error) {
	if svc == nil || receiptSk == nil || receiptPk == nil {
		return nil, fmt.Errorf("tallying authority requires a crypto service and a receipt key")
	}
	return &TallyingAuthority{svc: svc, receiptSk: receiptSk, receiptPk: receiptPk}, nil
}

// LoadTallyingAuthority loads all authority keys from cfg.KeyDir and the environment.
func LoadTallyingAuthority(cfg *config.Config, random io.Reader) (*TallyingAuthority, error) {
	svc, err := crypto.LoadService(cfg, random)
	if err != nil {
		return nil, fmt.Errorf("failed to load crypto service: %w", err)
	}
	sk, pk, err := crypto.LoadReceiptKey(cfg.KeyDir, cfg.AllowKeyGeneration(), random)
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt key: %w", err)
	}
	return NewTallyingAuthority(svc, sk, pk)
}

// PublicKey returns the key voters seal their envelopes to.
func (ta *TallyingAuthority) PublicKey() *rsa.PublicKey {
	return ta.svc.PublicKey()
}

// ReceiptKey returns the public key receipts are verified against.
func (ta *TallyingAuthority) ReceiptKey() kyber.Point {
	return ta.receiptPk
}

// Service exposes the authority's crypto service for field encryption.
func (ta *TallyingAuthority) Service() *crypto.Service {
	return ta.svc
}

// Random returns the authority's randomness source.
func (ta *TallyingAuthority) Random() io.Reader {
	return ta.svc.Random()
}

// OpenVote decrypts a sealed vote.
func (ta *TallyingAuthority) OpenVote(env *envelope.Envelope) (*envelope.VoteRecord, error) {
	return envelope.OpenWith(env, ta.svc)
}

// SignReceipt signs a receipt message with the authority's Schnorr key.
func (ta *TallyingAuthority) SignReceipt(msg []byte) (*crypto.SchnorrSignature, error) {
	return crypto.NewSchnorrSignature(ta.receiptSk, ta.receiptPk, msg)
}

// SignResult produces the RSA signature published next to a result digest.
func (ta *TallyingAuthority) SignResult(digest []byte) (string, error) {
	return ta.svc.Sign(digest)
}

// --- Voter ---

// Voter is identified by a pseudonymous account address.
type Voter struct {
	Ref string
}

// NewVoter derives a stable Ethereum-style address for the voter at index i
// of an election, for simulations.
func NewVoter(electionRef string, i uint64) *Voter {
	seed := gethcrypto.Keccak256([]byte(fmt.Sprintf("%s/%d", electionRef, i)))
	return &Voter{Ref: common.BytesToAddress(seed).Hex()}
}
