package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"votevault/pkg/envelope"
)

// EntryKind distinguishes the transactions kept on the ledger.
type EntryKind uint8

const (
	KindVote EntryKind = iota + 1
	KindResult
)

// txBody is the RLP-encoded form hashed into a transaction reference.
type txBody struct {
	Kind        uint8
	Height      uint64
	ElectionRef string
	Subject     string // voter ref for votes, result digest for results
	Payload     []byte
}

// Entry is one transaction on the ledger.
type Entry struct {
	Kind        EntryKind
	Height      uint64
	TxRef       common.Hash
	ElectionRef string
	Subject     string
	Payload     []byte
}

func newEntry(kind EntryKind, height uint64, electionRef, subject string, payload []byte) (*Entry, error) {
	e := &Entry{Kind: kind, Height: height, ElectionRef: electionRef, Subject: subject, Payload: payload}
	h, err := e.hash()
	if err != nil {
		return nil, err
	}
	e.TxRef = h
	return e, nil
}

func (e *Entry) hash() (common.Hash, error) {
	buf, err := rlp.EncodeToBytes(&txBody{
		Kind:        uint8(e.Kind),
		Height:      e.Height,
		ElectionRef: e.ElectionRef,
		Subject:     e.Subject,
		Payload:     e.Payload,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode ledger entry: %w", err)
	}
	return gethcrypto.Keccak256Hash(buf), nil
}

// Verify recomputes the transaction reference of the entry.
func (e *Entry) Verify() error {
	h, err := e.hash()
	if err != nil {
		return err
	}
	if h != e.TxRef {
		return fmt.Errorf("entry at height %d: tx ref %s does not match contents", e.Height, e.TxRef.Hex())
	}
	return nil
}

// Envelope decodes the envelope carried by a vote entry.
func (e *Entry) Envelope() (*envelope.Envelope, error) {
	if e.Kind != KindVote {
		return nil, fmt.Errorf("entry at height %d is not a vote", e.Height)
	}
	env := new(envelope.Envelope)
	if err := json.Unmarshal(e.Payload, env); err != nil {
		return nil, err
	}
	return env, nil
}
