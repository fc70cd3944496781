package store

import (
	"context"
	"fmt"
	"sync"

	"votevault/pkg/election"
)

type voterKey struct{ electionRef, voterRef string }

// Memory is a Store held in process memory. It returns copies so callers
// cannot mutate stored records.
type Memory struct {
	sync.RWMutex
	elections map[string]*election.Election
	votes     map[string][]*VoteDocument
	voters    map[voterKey]bool
	hashes    map[string]*VoteDocument
	results   map[string]*election.TallyResult
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		elections: make(map[string]*election.Election),
		votes:     make(map[string][]*VoteDocument),
		voters:    make(map[voterKey]bool),
		hashes:    make(map[string]*VoteDocument),
		results:   make(map[string]*election.TallyResult),
	}
}

func (m *Memory) SaveElection(ctx context.Context, e *election.Election) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	m.elections[e.Ref] = e.Clone()
	return nil
}

func (m *Memory) FindElection(ctx context.Context, ref string) (*election.Election, error) {
	m.RLock()
	defer m.RUnlock()
	e, ok := m.elections[ref]
	if !ok {
		return nil, fmt.Errorf("election %s: %w", ref, election.ErrNotFound)
	}
	return e.Clone(), nil
}

func (m *Memory) UpdateElectionStatus(ctx context.Context, ref string, from, to election.Status) error {
	m.Lock()
	defer m.Unlock()
	e, ok := m.elections[ref]
	if !ok {
		return fmt.Errorf("election %s: %w", ref, election.ErrNotFound)
	}
	if e.Status != from {
		return fmt.Errorf("%w: election %s is %s, expected %s", election.ErrInvalidState, ref, e.Status, from)
	}
	e.Status = to
	return nil
}

func (m *Memory) SaveVote(ctx context.Context, doc *VoteDocument) error {
	m.Lock()
	defer m.Unlock()
	key := voterKey{doc.ElectionRef, doc.VoterRef}
	if m.voters[key] {
		return fmt.Errorf("%w: %s in election %s", election.ErrAlreadyVoted, doc.VoterRef, doc.ElectionRef)
	}
	if _, ok := m.hashes[doc.VoteHash]; ok {
		return fmt.Errorf("%w: vote hash %s already stored", election.ErrValidation, doc.VoteHash)
	}
	cp := cloneVote(doc)
	m.voters[key] = true
	m.hashes[doc.VoteHash] = cp
	m.votes[doc.ElectionRef] = append(m.votes[doc.ElectionRef], cp)
	return nil
}

func (m *Memory) ConfirmVote(ctx context.Context, voteHash, txRef string) error {
	m.Lock()
	defer m.Unlock()
	d, ok := m.hashes[voteHash]
	if !ok {
		return fmt.Errorf("vote %s: %w", voteHash, election.ErrNotFound)
	}
	d.TransactionRef = txRef
	d.Verified = true
	return nil
}

func (m *Memory) DiscardVote(ctx context.Context, voteHash string) error {
	m.Lock()
	defer m.Unlock()
	d, ok := m.hashes[voteHash]
	if !ok {
		return fmt.Errorf("vote %s: %w", voteHash, election.ErrNotFound)
	}
	if d.Verified {
		return fmt.Errorf("%w: vote %s is verified", election.ErrInvalidState, voteHash)
	}
	delete(m.hashes, voteHash)
	delete(m.voters, voterKey{d.ElectionRef, d.VoterRef})
	votes := m.votes[d.ElectionRef]
	for i, v := range votes {
		if v == d {
			m.votes[d.ElectionRef] = append(votes[:i:i], votes[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) FindVotes(ctx context.Context, electionRef string, verifiedOnly bool) ([]*VoteDocument, error) {
	m.RLock()
	defer m.RUnlock()
	var out []*VoteDocument
	for _, d := range m.votes[electionRef] {
		if verifiedOnly && !d.Verified {
			continue
		}
		out = append(out, cloneVote(d))
	}
	return out, nil
}

func (m *Memory) FindVoteByHash(ctx context.Context, voteHash string) (*VoteDocument, error) {
	m.RLock()
	defer m.RUnlock()
	d, ok := m.hashes[voteHash]
	if !ok {
		return nil, fmt.Errorf("vote %s: %w", voteHash, election.ErrNotFound)
	}
	return cloneVote(d), nil
}

func (m *Memory) HasVoted(ctx context.Context, electionRef, voterRef string) (bool, error) {
	m.RLock()
	defer m.RUnlock()
	return m.voters[voterKey{electionRef, voterRef}], nil
}

func (m *Memory) PublishResult(ctx context.Context, r *election.TallyResult) error {
	m.Lock()
	defer m.Unlock()
	if _, ok := m.results[r.ElectionRef]; ok {
		return fmt.Errorf("election %s: %w", r.ElectionRef, election.ErrDuplicateResult)
	}
	e, ok := m.elections[r.ElectionRef]
	if !ok {
		return fmt.Errorf("election %s: %w", r.ElectionRef, election.ErrNotFound)
	}
	if e.Status != election.StatusEnded {
		return fmt.Errorf("%w: election %s is %s, expected %s", election.ErrInvalidState, r.ElectionRef, e.Status, election.StatusEnded)
	}
	m.results[r.ElectionRef] = r.Clone()
	e.Status = election.StatusResultsPublished
	return nil
}

func (m *Memory) FindResult(ctx context.Context, electionRef string) (*election.TallyResult, error) {
	m.RLock()
	defer m.RUnlock()
	r, ok := m.results[electionRef]
	if !ok {
		return nil, fmt.Errorf("result for election %s: %w", electionRef, election.ErrNotFound)
	}
	return r.Clone(), nil
}

func (m *Memory) UpdateResultAnchor(ctx context.Context, electionRef string, anchor election.Anchor) (*election.TallyResult, error) {
	m.Lock()
	defer m.Unlock()
	r, ok := m.results[electionRef]
	if !ok {
		return nil, fmt.Errorf("result for election %s: %w", electionRef, election.ErrNotFound)
	}
	r.Metadata.Anchor = &anchor
	r.Finalized = true
	return r.Clone(), nil
}

func (m *Memory) Close() error { return nil }
