package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats/scalar"
	"votevault/pkg/actors"
	"votevault/pkg/concurrency"
	"votevault/pkg/context"
	"votevault/pkg/election"
	"votevault/pkg/envelope"
	"votevault/pkg/log"
	"votevault/pkg/metrics"
	"votevault/pkg/store"
)

// VoteOpener decrypts a sealed vote. The tallying authority implements it.
type VoteOpener interface {
	OpenVote(env *envelope.Envelope) (*envelope.VoteRecord, error)
}

// Engine produces and finalizes tally results.
type Engine struct {
	store  store.Store
	opener VoteOpener
	// Now is the clock used for PublishedAt.
	Now func() time.Time
}

func NewEngine(s store.Store, opener VoteOpener) *Engine {
	return &Engine{store: s, opener: opener, Now: time.Now}
}

// tallyState carries the intermediate values between tally stages.
type tallyState struct {
	election *election.Election
	votes    []*store.VoteDocument
	opened   []concurrency.Outcome[*envelope.VoteRecord]

	counts  []int
	valid   int
	invalid int
	counted []string
}

// GenerateResults decrypts and counts the verified votes of an ended election,
// stores the result and moves the election to RESULTS_PUBLISHED.
func (e *Engine) GenerateResults(ctx *context.OperationContext, electionRef string) (*election.TallyResult, error) {
	var err error
	st := &tallyState{}

	log.Info("-- Tally Stage 0: Checking election %s...", electionRef)
	if err = ctx.Recorder.Record("Tally_0_CheckElection", metrics.MStore, func() error {
		return e.checkElection(ctx, electionRef, st)
	}); err != nil {
		return nil, err
	}

	log.Info("-- Tally Stage 1: Fetching verified votes...")
	if err = ctx.Recorder.Record("Tally_1_FetchVotes", metrics.MStore, func() error {
		st.votes, err = e.store.FindVotes(ctx.Context(), electionRef, true)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to fetch votes for election %s: %w", electionRef, err)
	}

	log.Info("-- Tally Stage 2: Decrypting %d votes...", len(st.votes))
	if err = ctx.Recorder.Record("Tally_2_DecryptVotes", metrics.MCrypto, func() error {
		st.opened, err = concurrency.Collect(ctx, st.votes, func(doc *store.VoteDocument) (*envelope.VoteRecord, error) {
			return e.opener.OpenVote(&doc.Envelope)
		})
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to decrypt votes: %w", err)
	}

	log.Info("-- Tally Stage 3: Counting votes...")
	if err = ctx.Recorder.Record("Tally_3_CountVotes", metrics.MLogic, func() error {
		st.count()
		return nil
	}); err != nil {
		return nil, err
	}

	var result *election.TallyResult
	log.Info("-- Tally Stage 4: Building result...")
	if err = ctx.Recorder.Record("Tally_4_BuildResult", metrics.MLogic, func() error {
		result, err = e.buildResult(ctx, st)
		return err
	}); err != nil {
		return nil, err
	}

	log.Info("-- Tally Stage 5: Publishing result...")
	if err = ctx.Recorder.Record("Tally_5_Publish", metrics.MStore, func() error {
		return e.store.PublishResult(ctx.Context(), result)
	}); err != nil {
		return nil, err
	}

	log.Info("Election %s tallied: %d valid, %d invalid, winner %s", electionRef, st.valid, st.invalid, result.Winner.CandidateID)
	return result, nil
}

// checkElection loads the election and rejects a second tally before the
// state check, so a published election reports the duplicate.
func (e *Engine) checkElection(ctx *context.OperationContext, electionRef string, st *tallyState) error {
	el, err := e.store.FindElection(ctx.Context(), electionRef)
	if err != nil {
		return err
	}
	if _, err := e.store.FindResult(ctx.Context(), electionRef); err == nil {
		return fmt.Errorf("%w: election %s", election.ErrDuplicateResult, electionRef)
	} else if !errors.Is(err, election.ErrNotFound) {
		return err
	}
	if el.Status != election.StatusEnded {
		return fmt.Errorf("%w: election %s is %s, want %s", election.ErrInvalidState, electionRef, el.Status, election.StatusEnded)
	}
	st.election = el
	return nil
}

// count tallies the opened votes. A vote that fails to open, belongs to
// another election, disagrees with its stored hash or names no candidate is
// invalid.
func (st *tallyState) count() {
	st.counts = make([]int, len(st.election.Candidates))
	for i, out := range st.opened {
		doc := st.votes[i]
		if out.Err != nil {
			log.Warn("Vote %s could not be decrypted: %v", doc.ID, out.Err)
			st.invalid++
			continue
		}
		rec := out.Value
		switch {
		case rec.ElectionRef != st.election.Ref:
			log.Warn("Vote %s belongs to election %s", doc.ID, rec.ElectionRef)
		case rec.Hash() != doc.VoteHash:
			log.Warn("Vote %s does not match its stored hash", doc.ID)
		case rec.CandidateChoice < 0 || rec.CandidateChoice >= len(st.counts):
			log.Warn("Vote %s has out-of-range choice %d", doc.ID, rec.CandidateChoice)
		default:
			st.counts[rec.CandidateChoice]++
			st.valid++
			st.counted = append(st.counted, doc.VoteHash)
			continue
		}
		st.invalid++
	}
}

func (e *Engine) buildResult(ctx *context.OperationContext, st *tallyState) (*election.TallyResult, error) {
	el := st.election
	results := make([]election.CandidateResult, len(el.Candidates))
	for i, c := range el.Candidates {
		results[i] = election.CandidateResult{
			CandidateID:   c.ID,
			CandidateName: c.Name,
			Party:         c.Party,
			Votes:         st.counts[i],
			Percentage:    percentage(st.counts[i], st.valid),
		}
	}

	// First strictly greater count wins, so ties go to the earlier candidate.
	winner, maxVotes := 0, -1
	for i, r := range results {
		if r.Votes > maxVotes {
			winner, maxVotes = i, r.Votes
		}
	}
	w := results[winner]

	root, err := VoteRoot(st.counted)
	if err != nil {
		return nil, err
	}

	electionType := el.ElectionType
	if electionType == "" && ctx.Config != nil {
		electionType = ctx.Config.ElectionType
	}

	return &election.TallyResult{
		ID:          uuid.NewString(),
		ElectionRef: el.Ref,
		Results:     results,
		Winner:      &w,
		Metadata: election.Metadata{
			TotalVoters:        len(el.EligibleVoters),
			VoterTurnout:       st.valid,
			TurnoutPercentage:  percentage(st.valid, len(el.EligibleVoters)),
			InvalidVotes:       st.invalid,
			ElectionType:       electionType,
			VerificationMethod: election.VerificationMethod,
		},
		VoteRoot:     root,
		CountedVotes: st.counted,
		PublishedAt:  e.Now().UTC(),
	}, nil
}

// percentage returns part/total*100 rounded to two decimals, 0 when total is 0.
func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return scalar.Round(float64(part)/float64(total)*100, 2)
}

// FinalizeResults attaches anchoring data to a stored result and marks it
// final. The network id comes from the configuration and the contract address
// from the election. Repeating the call with the same data leaves the result
// unchanged.
func (e *Engine) FinalizeResults(ctx *context.OperationContext, electionRef string, blockHeight uint64, txRef string) (*election.TallyResult, error) {
	el, err := e.store.FindElection(ctx.Context(), electionRef)
	if err != nil {
		return nil, err
	}
	anchor := election.Anchor{
		ContractAddress: el.ContractAddress,
		BlockHeight:     blockHeight,
		TransactionRef:  txRef,
	}
	if ctx.Config != nil {
		anchor.NetworkID = ctx.Config.NetworkID
	}
	return e.finalize(ctx, electionRef, anchor)
}

func (e *Engine) finalize(ctx *context.OperationContext, electionRef string, anchor election.Anchor) (*election.TallyResult, error) {
	if anchor.TransactionRef == "" {
		return nil, fmt.Errorf("%w: empty transaction reference", election.ErrValidation)
	}
	if anchor.BlockHeight == 0 {
		return nil, fmt.Errorf("%w: block height must be positive", election.ErrValidation)
	}
	var result *election.TallyResult
	err := ctx.Recorder.Record("FinalizeResults", metrics.MStore, func() error {
		var err error
		result, err = e.store.UpdateResultAnchor(ctx.Context(), electionRef, anchor)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info("Result for election %s finalized at height %d, tx %s", electionRef, anchor.BlockHeight, anchor.TransactionRef)
	return result, nil
}

// ProveInclusion returns a Merkle proof that the vote with voteHash was
// counted in the published result of its election.
func (e *Engine) ProveInclusion(ctx *context.OperationContext, voteHash string) (*InclusionProof, error) {
	doc, err := e.store.FindVoteByHash(ctx.Context(), voteHash)
	if err != nil {
		return nil, err
	}
	result, err := e.store.FindResult(ctx.Context(), doc.ElectionRef)
	if err != nil {
		return nil, err
	}
	counted := false
	for _, h := range result.CountedVotes {
		if h == voteHash {
			counted = true
			break
		}
	}
	if !counted {
		return nil, fmt.Errorf("vote %s: %w in the result of election %s", voteHash, election.ErrNotFound, doc.ElectionRef)
	}
	proof, err := newInclusionProof(doc.ElectionRef, voteHash, result.CountedVotes)
	if err != nil {
		return nil, err
	}
	if proof.Root != result.VoteRoot {
		return nil, fmt.Errorf("vote root of election %s does not match its counted votes", doc.ElectionRef)
	}
	return proof, nil
}

// GenerateResultsAs checks that subject may tally before calling GenerateResults.
func (e *Engine) GenerateResultsAs(ctx *context.OperationContext, subject actors.Subject, electionRef string) (*election.TallyResult, error) {
	if err := actors.Authorize(subject, actors.ActionGenerateResults); err != nil {
		return nil, err
	}
	return e.GenerateResults(ctx, electionRef)
}

// FinalizeResultsAs checks that subject may finalize before calling FinalizeResults.
func (e *Engine) FinalizeResultsAs(ctx *context.OperationContext, subject actors.Subject, electionRef string, blockHeight uint64, txRef string) (*election.TallyResult, error) {
	if err := actors.Authorize(subject, actors.ActionFinalizeResults); err != nil {
		return nil, err
	}
	return e.FinalizeResults(ctx, electionRef, blockHeight, txRef)
}
