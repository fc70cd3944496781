// Package ledger is the anchoring collaborator: an append-only ledger that
// records sealed votes and result digests and hands out Ethereum-style
// transaction references for them.
package ledger

import (
	stdctx "context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"votevault/pkg/concurrency"
	"votevault/pkg/context"
	"votevault/pkg/election"
	"votevault/pkg/envelope"
	"votevault/pkg/log"
)

// Client is what the casting flow needs from a ledger.
type Client interface {
	SubmitVote(ctx stdctx.Context, electionRef, voterRef string, env *envelope.Envelope) (string, error)
	HasVoted(ctx stdctx.Context, electionRef, voterRef string) (bool, error)
}

// Anchorer records a result digest and reports where it landed.
type Anchorer interface {
	AnchorResult(ctx stdctx.Context, electionRef, digest string) (height uint64, txRef string, err error)
	NetworkID() uint64
	ContractAddress() string
}

type voterKey struct{ electionRef, voterRef string }

// Ledger is an in-process, append-only ledger. Heights start at 1.
type Ledger struct {
	mu        sync.RWMutex
	networkID uint64
	contract  common.Address
	entries   []*Entry
	voted     map[voterKey]*Entry
	results   map[string]*Entry
}

// NewLedger creates an empty ledger for the given network. The contract
// address is derived from the network id.
func NewLedger(networkID uint64) *Ledger {
	seed := make([]byte, 8)
	binary.BigEndian.PutUint64(seed, networkID)
	addr := common.BytesToAddress(gethcrypto.Keccak256([]byte("votevault"), seed))
	return &Ledger{
		networkID: networkID,
		contract:  addr,
		voted:     make(map[voterKey]*Entry),
		results:   make(map[string]*Entry),
	}
}

func (l *Ledger) NetworkID() uint64 { return l.networkID }

func (l *Ledger) ContractAddress() string { return l.contract.Hex() }

// Height returns the height of the latest entry, 0 when empty.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.entries))
}

func (l *Ledger) append(kind EntryKind, electionRef, subject string, payload []byte) (*Entry, error) {
	e, err := newEntry(kind, uint64(len(l.entries))+1, electionRef, subject, payload)
	if err != nil {
		return nil, err
	}
	l.entries = append(l.entries, e)
	return e, nil
}

// SubmitVote appends a sealed vote and returns its transaction reference.
// A second vote from the same voter in the same election is rejected.
func (l *Ledger) SubmitVote(ctx stdctx.Context, electionRef, voterRef string, env *envelope.Envelope) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	key := voterKey{electionRef, voterRef}
	if _, ok := l.voted[key]; ok {
		return "", fmt.Errorf("%w: %s already on ledger for election %s", election.ErrAlreadyVoted, voterRef, electionRef)
	}
	e, err := l.append(KindVote, electionRef, voterRef, payload)
	if err != nil {
		return "", err
	}
	l.voted[key] = e
	log.Trace("Ledger: vote for election %s at height %d, tx %s", electionRef, e.Height, e.TxRef.Hex())
	return e.TxRef.Hex(), nil
}

func (l *Ledger) HasVoted(ctx stdctx.Context, electionRef, voterRef string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.voted[voterKey{electionRef, voterRef}]
	return ok, nil
}

// AnchorResult records digest for an election. Anchoring the same digest again
// returns the original entry; a different digest is rejected.
func (l *Ledger) AnchorResult(ctx stdctx.Context, electionRef, digest string) (uint64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.results[electionRef]; ok {
		if prev.Subject != digest {
			return 0, "", fmt.Errorf("%w: election %s already anchored with a different digest", election.ErrDuplicateResult, electionRef)
		}
		return prev.Height, prev.TxRef.Hex(), nil
	}
	e, err := l.append(KindResult, electionRef, digest, nil)
	if err != nil {
		return 0, "", err
	}
	l.results[electionRef] = e
	log.Debug("Ledger: result for election %s anchored at height %d, tx %s", electionRef, e.Height, e.TxRef.Hex())
	return e.Height, e.TxRef.Hex(), nil
}

// VoteEntries returns the vote entries of an election in ledger order.
func (l *Ledger) VoteEntries(electionRef string) []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Entry
	for _, e := range l.entries {
		if e.Kind == KindVote && e.ElectionRef == electionRef {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns every entry in ledger order.
func (l *Ledger) Entries() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Entry(nil), l.entries...)
}

// VerifyLedgerContents checks that heights are contiguous and that every
// transaction reference matches its entry.
func VerifyLedgerContents(ctx *context.OperationContext, entries []*Entry) error {
	log.Debug("Verifying %d ledger entries", len(entries))
	for i, e := range entries {
		if e.Height != uint64(i)+1 {
			return fmt.Errorf("entry %d has height %d", i, e.Height)
		}
	}
	return concurrency.ForEach(ctx, entries, func(_ int, e *Entry) error {
		return e.Verify()
	})
}
