// Package protocol implements the vote pipeline: election transitions, the
// casting flow that seals and anchors votes, and the tally engine.
package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"votevault/pkg/actors"
	"votevault/pkg/context"
	"votevault/pkg/election"
	"votevault/pkg/envelope"
	"votevault/pkg/ledger"
	"votevault/pkg/log"
	"votevault/pkg/metrics"
	"votevault/pkg/receipt"
	"votevault/pkg/store"
)

// Flow manages elections and accepts votes on behalf of the tallying authority.
type Flow struct {
	store     store.Store
	ledger    ledger.Client
	authority *actors.TallyingAuthority
	// Now is the clock used for vote timestamps and the voting window.
	Now func() time.Time
}

func NewFlow(s store.Store, l ledger.Client, ta *actors.TallyingAuthority) *Flow {
	return &Flow{store: s, ledger: l, authority: ta, Now: time.Now}
}

// VoteStatus is the public view of a cast vote. It never carries the envelope.
type VoteStatus struct {
	VoteID         string    `json:"voteId"`
	ElectionRef    string    `json:"electionRef"`
	VoteHash       string    `json:"voteHash"`
	TransactionRef string    `json:"transactionRef"`
	Verified       bool      `json:"verified"`
	CastAt         time.Time `json:"castAt"`
}

// CreateElection stores a new election in DRAFT.
func (f *Flow) CreateElection(ctx *context.OperationContext, subject actors.Subject, e *election.Election) error {
	if err := actors.Authorize(subject, actors.ActionManageElection); err != nil {
		return err
	}
	if e.Status == "" {
		e.Status = election.StatusDraft
	}
	if e.Status != election.StatusDraft {
		return fmt.Errorf("%w: new election %s must be %s", election.ErrValidation, e.Ref, election.StatusDraft)
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if _, err := f.store.FindElection(ctx.Context(), e.Ref); err == nil {
		return fmt.Errorf("%w: election %s already exists", election.ErrValidation, e.Ref)
	}
	return ctx.Recorder.Record("CreateElection", metrics.MStore, func() error {
		return f.store.SaveElection(ctx.Context(), e)
	})
}

// Transition moves an election to status to if the state machine allows it.
// RESULTS_PUBLISHED is only reachable through Engine.GenerateResults.
func (f *Flow) Transition(ctx *context.OperationContext, subject actors.Subject, electionRef string, to election.Status) error {
	if err := actors.Authorize(subject, actors.ActionManageElection); err != nil {
		return err
	}
	if to == election.StatusResultsPublished {
		return fmt.Errorf("%w: election %s is published by tallying it", election.ErrInvalidState, electionRef)
	}
	e, err := f.store.FindElection(ctx.Context(), electionRef)
	if err != nil {
		return err
	}
	if !election.CanTransition(e.Status, to) {
		return fmt.Errorf("%w: election %s cannot move from %s to %s", election.ErrInvalidState, electionRef, e.Status, to)
	}
	if err := f.store.UpdateElectionStatus(ctx.Context(), electionRef, e.Status, to); err != nil {
		return err
	}
	log.Info("Election %s: %s -> %s", electionRef, e.Status, to)
	return nil
}

// OpenElection schedules a draft election if needed and opens it for voting.
func (f *Flow) OpenElection(ctx *context.OperationContext, subject actors.Subject, electionRef string) error {
	e, err := f.store.FindElection(ctx.Context(), electionRef)
	if err != nil {
		return err
	}
	if e.Status == election.StatusDraft {
		if err := f.Transition(ctx, subject, electionRef, election.StatusScheduled); err != nil {
			return err
		}
	}
	return f.Transition(ctx, subject, electionRef, election.StatusActive)
}

// CloseElection ends voting.
func (f *Flow) CloseElection(ctx *context.OperationContext, subject actors.Subject, electionRef string) error {
	return f.Transition(ctx, subject, electionRef, election.StatusEnded)
}

// CastVote seals the subject's choice, stores it pending, submits it to the
// ledger, confirms it and returns a receipt signed by the tallying authority.
func (f *Flow) CastVote(ctx *context.OperationContext, subject actors.Subject, electionRef string, choice int) (*receipt.Receipt, error) {
	if err := actors.Authorize(subject, actors.ActionCastVote); err != nil {
		return nil, err
	}
	now := f.Now()

	var e *election.Election
	if err := ctx.Recorder.Record("Cast_0_CheckVoter", metrics.MStore, func() error {
		var err error
		e, err = f.checkVoter(ctx, electionRef, subject.ID, choice, now)
		return err
	}); err != nil {
		return nil, err
	}

	record := &envelope.VoteRecord{
		ElectionRef:     e.Ref,
		CandidateChoice: choice,
		VoterRef:        subject.ID,
		Timestamp:       now.Unix(),
	}

	var env *envelope.Envelope
	if err := ctx.Recorder.Record("Cast_1_Seal", metrics.MCrypto, func() error {
		var err error
		env, err = envelope.Seal(f.authority.Random(), record, f.authority.PublicKey())
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to seal vote: %w", err)
	}
	voteHash := record.Hash()

	// The vote is stored unverified first so the voter's slot is claimed
	// before anything reaches the append-only ledger.
	doc := &store.VoteDocument{
		ID:          uuid.NewString(),
		ElectionRef: e.Ref,
		VoterRef:    subject.ID,
		Envelope:    *env,
		VoteHash:    voteHash,
		CastAt:      now.UTC(),
	}
	if err := ctx.Recorder.Record("Cast_2_Store", metrics.MStore, func() error {
		return f.store.SaveVote(ctx.Context(), doc)
	}); err != nil {
		return nil, err
	}

	var txRef string
	if err := ctx.Recorder.Record("Cast_3_Submit", metrics.MLedger, func() error {
		var err error
		txRef, err = f.ledger.SubmitVote(ctx.Context(), e.Ref, subject.ID, env)
		return err
	}); err != nil {
		if derr := f.store.DiscardVote(ctx.Context(), voteHash); derr != nil {
			log.Error("Failed to discard pending vote %s: %v", voteHash, derr)
		}
		return nil, fmt.Errorf("failed to submit vote: %w", err)
	}

	if err := ctx.Recorder.Record("Cast_4_Confirm", metrics.MStore, func() error {
		return f.store.ConfirmVote(ctx.Context(), voteHash, txRef)
	}); err != nil {
		return nil, fmt.Errorf("vote %s is on the ledger at %s but not confirmed: %w", voteHash, txRef, err)
	}

	r := &receipt.Receipt{
		VoteID:         doc.ID,
		ElectionRef:    e.Ref,
		VoteHash:       voteHash,
		TransactionRef: txRef,
		Timestamp:      record.Timestamp,
	}
	if err := ctx.Recorder.Record("Cast_5_SignReceipt", metrics.MCrypto, func() error {
		return r.Sign(f.authority)
	}); err != nil {
		return nil, err
	}
	log.Debug("Vote %s cast in election %s, tx %s", voteHash, e.Ref, txRef)
	return r, nil
}

func (f *Flow) checkVoter(ctx *context.OperationContext, electionRef, voterRef string, choice int, now time.Time) (*election.Election, error) {
	e, err := f.store.FindElection(ctx.Context(), electionRef)
	if err != nil {
		return nil, err
	}
	if e.Status != election.StatusActive {
		return nil, fmt.Errorf("%w: election %s is %s", election.ErrInvalidState, electionRef, e.Status)
	}
	if !e.InWindow(now) {
		return nil, fmt.Errorf("%w: election %s is outside its voting window", election.ErrInvalidState, electionRef)
	}
	if !e.IsEligible(voterRef) {
		return nil, fmt.Errorf("%w: %s in election %s", election.ErrNotEligible, voterRef, electionRef)
	}
	if choice < 0 || choice >= len(e.Candidates) {
		return nil, fmt.Errorf("%w: choice %d out of range for %d candidates", election.ErrValidation, choice, len(e.Candidates))
	}
	voted, err := f.store.HasVoted(ctx.Context(), electionRef, voterRef)
	if err != nil {
		return nil, err
	}
	if !voted {
		if voted, err = f.ledger.HasVoted(ctx.Context(), electionRef, voterRef); err != nil {
			return nil, err
		}
	}
	if voted {
		return nil, fmt.Errorf("%w: %s in election %s", election.ErrAlreadyVoted, voterRef, electionRef)
	}
	return e, nil
}

// VerifyVote returns the public status of the vote with the given hash.
func (f *Flow) VerifyVote(ctx *context.OperationContext, voteHash string) (*VoteStatus, error) {
	doc, err := f.store.FindVoteByHash(ctx.Context(), voteHash)
	if err != nil {
		return nil, err
	}
	return &VoteStatus{
		VoteID:         doc.ID,
		ElectionRef:    doc.ElectionRef,
		VoteHash:       doc.VoteHash,
		TransactionRef: doc.TransactionRef,
		Verified:       doc.Verified,
		CastAt:         doc.CastAt,
	}, nil
}

// VerifyReceipt checks the authority signature on r and that the vote it
// names is stored with the same transaction reference.
func (f *Flow) VerifyReceipt(ctx *context.OperationContext, r *receipt.Receipt) (*VoteStatus, error) {
	if err := r.Verify(f.authority.ReceiptKey()); err != nil {
		return nil, err
	}
	status, err := f.VerifyVote(ctx, r.VoteHash)
	if err != nil {
		return nil, err
	}
	if status.VoteID != r.VoteID || status.TransactionRef != r.TransactionRef || status.ElectionRef != r.ElectionRef {
		return nil, fmt.Errorf("receipt for vote %s does not match the stored vote", r.VoteHash)
	}
	return status, nil
}
