// Package store persists elections, vote documents and tally results.
package store

import (
	"context"
	"time"

	"votevault/pkg/election"
	"votevault/pkg/envelope"
)

// VoteDocument is one persisted vote: the sealed envelope plus the public
// metadata needed to verify a receipt.
type VoteDocument struct {
	ID             string            `json:"id"`
	ElectionRef    string            `json:"electionRef"`
	VoterRef       string            `json:"voterRef"`
	Envelope       envelope.Envelope `json:"envelope"`
	VoteHash       string            `json:"voteHash"`
	TransactionRef string            `json:"transactionRef"`
	Verified       bool              `json:"verified"`
	CastAt         time.Time         `json:"castAt"`
}

// Store is the document store used by the casting flow and the tally engine.
// Implementations enforce uniqueness of one vote per (election, voter), of
// vote hashes, and of one tally result per election, so that racing writers
// observe ErrAlreadyVoted or ErrDuplicateResult instead of double writes.
type Store interface {
	// SaveElection creates or replaces an election.
	SaveElection(ctx context.Context, e *election.Election) error
	FindElection(ctx context.Context, ref string) (*election.Election, error)
	// UpdateElectionStatus moves an election from one status to another and
	// fails with ErrInvalidState if the stored status is not from.
	UpdateElectionStatus(ctx context.Context, ref string, from, to election.Status) error

	SaveVote(ctx context.Context, doc *VoteDocument) error
	// ConfirmVote marks a stored vote verified under its ledger transaction.
	ConfirmVote(ctx context.Context, voteHash, txRef string) error
	// DiscardVote removes an unverified vote and frees its voter slot.
	// Verified votes fail with ErrInvalidState.
	DiscardVote(ctx context.Context, voteHash string) error
	// FindVotes returns the election's votes in insertion order.
	FindVotes(ctx context.Context, electionRef string, verifiedOnly bool) ([]*VoteDocument, error)
	FindVoteByHash(ctx context.Context, voteHash string) (*VoteDocument, error)
	HasVoted(ctx context.Context, electionRef, voterRef string) (bool, error)

	// PublishResult stores the first result of an ENDED election and moves the
	// election to RESULTS_PUBLISHED in the same write. An existing result fails
	// with ErrDuplicateResult before the status is checked.
	PublishResult(ctx context.Context, r *election.TallyResult) error
	FindResult(ctx context.Context, electionRef string) (*election.TallyResult, error)
	// UpdateResultAnchor sets the anchoring data and marks the result finalized.
	UpdateResultAnchor(ctx context.Context, electionRef string, anchor election.Anchor) (*election.TallyResult, error)

	Close() error
}

func cloneVote(d *VoteDocument) *VoteDocument {
	cp := *d
	return &cp
}
