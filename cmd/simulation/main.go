package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"

	"github.com/google/uuid"
	"votevault/pkg/actors"
	"votevault/pkg/config"
	"votevault/pkg/context"
	"votevault/pkg/crypto"
	"votevault/pkg/election"
	"votevault/pkg/envelope"
	"votevault/pkg/ledger"
	"votevault/pkg/log"
	"votevault/pkg/metrics"
	"votevault/pkg/protocol"
	"votevault/pkg/receipt"
	"votevault/pkg/result"
	"votevault/pkg/store"
)

// Simulation orchestrates one election end to end: setup, casting, tally,
// anchoring and export. It holds the configuration, the actors and the
// shared store and ledger.
type Simulation struct {
	config    *config.Config
	metrics   *metrics.Recorder
	authority *actors.TallyingAuthority
	store     store.Store
	ledger    *ledger.Ledger
	voters    []*actors.Voter
	rng       *rand.Rand

	admin        actors.Subject
	commissioner actors.Subject
	election     *election.Election
	receipts     []*receipt.Receipt
}

func main() {
	// 1. Load configuration from flags.
	cfg := config.NewConfig()

	rec := metrics.NewRecorder()
	sim, err := NewSimulation(cfg, rec)
	if err != nil {
		log.Fatalf("Failed to initialize simulation: %v", err)
	}
	defer sim.store.Close()

	var final *election.TallyResult
	if err = sim.metrics.Record("Simulation", metrics.MLogic, func() error {
		final, err = sim.Run()
		return err
	}); err != nil {
		log.Fatalf("Failed to run simulation: %v", err)
	}

	if cfg.PrintMetrics {
		rec.PrintTree(os.Stdout, 3)
	}

	analyzer := metrics.NewAnalyzer()
	analyzer.Add(rec)
	stages := analyzer.Analyze()

	resultsWriter := result.NewWriter(cfg.ResultsPath)
	if _, err := resultsWriter.WriteTally(final); err != nil {
		log.Fatalf("Failed to write tally: %v", err)
	}
	if _, err := resultsWriter.WriteStats(final.ElectionRef, stages); err != nil {
		log.Fatalf("Failed to write stats: %v", err)
	}

	printConsoleSummary(final, stages)
}

func printConsoleSummary(r *election.TallyResult, stages []metrics.StageResult) {
	fmt.Println("\n-------------------------------------------------")
	fmt.Printf("--- Result for %s ---\n", r.ElectionRef)
	fmt.Println("-------------------------------------------------")
	for _, c := range r.Results {
		fmt.Printf("%-14s %6d votes  %6.2f%%\n", c.CandidateName, c.Votes, c.Percentage)
	}
	fmt.Printf("Winner: %s, turnout %.2f%%, invalid %d\n", r.Winner.CandidateName, r.Metadata.TurnoutPercentage, r.Metadata.InvalidVotes)
	if a := r.Metadata.Anchor; a != nil {
		fmt.Printf("Anchored at height %d, tx %s\n", a.BlockHeight, a.TransactionRef)
	}
	fmt.Println("-------------------------------------------------")

	phases := map[string]bool{"Setup": true, "Voting": true, "Tally": true, "Anchor": true, "CastAVote": true}
	for _, s := range stages {
		if phases[s.Name] {
			fmt.Printf("Median %-12s Time: %s (n=%d)\n", s.Name, s.WallClock.P50, s.WallClock.Count)
		}
	}
	fmt.Println("-------------------------------------------------")
}

// NewSimulation creates and initializes all components required for a simulation.
func NewSimulation(cfg *config.Config, rec *metrics.Recorder) (*Simulation, error) {
	log.Debug("Initializing keys, store and ledger")

	random := crypto.RandomSource(cfg.Seed)
	authority, err := actors.LoadTallyingAuthority(cfg, random)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}

	sim := &Simulation{
		config:       cfg,
		metrics:      rec,
		authority:    authority,
		store:        st,
		ledger:       ledger.NewLedger(cfg.NetworkID),
		rng:          rand.New(rand.NewSource(seedInt(cfg.Seed))),
		admin:        actors.Subject{ID: "admin", Role: actors.RoleAdmin},
		commissioner: actors.Subject{ID: "commissioner", Role: actors.RoleElectionCommissioner},
	}

	ref := "election-" + uuid.NewString()[:8]
	sim.election = &election.Election{
		Ref:             ref,
		Title:           fmt.Sprintf("%s election", cfg.ElectionType),
		ElectionType:    cfg.ElectionType,
		ContractAddress: sim.ledger.ContractAddress(),
	}
	for i := uint64(0); i < cfg.Candidates; i++ {
		sim.election.Candidates = append(sim.election.Candidates, election.Candidate{
			ID:    fmt.Sprintf("candidate-%d", i),
			Name:  fmt.Sprintf("Candidate %c", 'A'+rune(i%26)),
			Party: fmt.Sprintf("Party %d", i%3),
		})
	}
	sim.voters = make([]*actors.Voter, cfg.EligibleVoters)
	for i := uint64(0); i < cfg.EligibleVoters; i++ {
		sim.voters[i] = actors.NewVoter(ref, i)
		sim.election.EligibleVoters = append(sim.election.EligibleVoters, sim.voters[i].Ref)
	}
	return sim, nil
}

// seedInt turns the configured seed into a math/rand seed for candidate choices.
func seedInt(seed string) int64 {
	if seed == "" {
		return rand.Int63()
	}
	sum := crypto.SHA256Hex(seed)
	raw, _ := hex.DecodeString(sum[:16])
	return int64(binary.BigEndian.Uint64(raw) >> 1)
}

// Run runs the simulation and returns the finalized result.
func (s *Simulation) Run() (*election.TallyResult, error) {
	log.Info("Starting simulation with %d of %d eligible voters and %d candidates...",
		s.config.Voters, s.config.EligibleVoters, s.config.Candidates)
	var err error

	runCtx := context.NewContext(s.config, s.metrics)
	flow := protocol.NewFlow(s.store, s.ledger, s.authority)
	engine := protocol.NewEngine(s.store, s.authority)
	ref := s.election.Ref

	// --- Setup Phase ---
	if err = s.metrics.Record("Setup", metrics.MLogic, func() error {
		if err := flow.CreateElection(runCtx, s.admin, s.election); err != nil {
			return err
		}
		return flow.OpenElection(runCtx, s.commissioner, ref)
	}); err != nil {
		return nil, fmt.Errorf("failed during setup: %w", err)
	}

	// --- Voting Phase ---
	log.Info("--- Starting Voting Phase ---")
	honest := s.config.Voters - s.config.CorruptVotes
	if err = s.metrics.Record("Voting", metrics.MLogic, func() error {
		for i := uint64(0); i < s.config.Voters; i++ {
			voter := s.voters[i]
			choice := s.rng.Intn(int(s.config.Candidates))
			if i >= honest {
				if err := s.metrics.Record("CorruptAVote", metrics.MLogic, func() error {
					return s.storeCorruptVote(runCtx, voter, choice)
				}); err != nil {
					return err
				}
				continue
			}
			if err := s.metrics.Record("CastAVote", metrics.MLogic, func() error {
				r, err := flow.CastVote(runCtx, actors.Subject{ID: voter.Ref, Role: actors.RoleVoter}, ref, choice)
				if err != nil {
					return err
				}
				s.receipts = append(s.receipts, r)
				return nil
			}); err != nil {
				return fmt.Errorf("voter %d: %w", i, err)
			}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed during voting phase: %w", err)
	}

	if err = s.metrics.Record("Receipts", metrics.MLogic, func() error {
		return s.renderReceipts(runCtx, flow)
	}); err != nil {
		return nil, fmt.Errorf("failed to render receipts: %w", err)
	}

	if err = flow.CloseElection(runCtx, s.commissioner, ref); err != nil {
		return nil, err
	}

	// --- Tallying Phase ---
	log.Info("--- Starting Tallying Phase ---")
	if err = s.metrics.Record("VerifyLedger", metrics.MLedger, func() error {
		return ledger.VerifyLedgerContents(runCtx, s.ledger.Entries())
	}); err != nil {
		return nil, fmt.Errorf("ledger verification failed: %w", err)
	}

	if err = s.metrics.Record("Tally", metrics.MLogic, func() error {
		_, err := engine.GenerateResultsAs(runCtx, s.commissioner, ref)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed during tallying phase: %w", err)
	}

	// --- Anchoring Phase ---
	var final *election.TallyResult
	if err = s.metrics.Record("Anchor", metrics.MLedger, func() error {
		if err := actors.Authorize(s.admin, actors.ActionFinalizeResults); err != nil {
			return err
		}
		var signature string
		final, signature, err = engine.AnchorResult(runCtx, ref, s.ledger, s.authority)
		if err != nil {
			return err
		}
		log.Debug("Result signature: %s", signature)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed during anchoring phase: %w", err)
	}

	if len(s.receipts) > 0 {
		proof, err := engine.ProveInclusion(runCtx, s.receipts[0].VoteHash)
		if err != nil {
			return nil, err
		}
		if !proof.Verify() {
			return nil, fmt.Errorf("inclusion proof for vote %s does not verify", proof.VoteHash)
		}
		log.Info("Vote %s is included under root %s", proof.VoteHash, proof.Root)
	}
	return final, nil
}

// storeCorruptVote stores a verified vote whose envelope fails authentication,
// as a tampered document in the store would.
func (s *Simulation) storeCorruptVote(ctx *context.OperationContext, voter *actors.Voter, choice int) error {
	record := &envelope.VoteRecord{
		ElectionRef:     s.election.Ref,
		CandidateChoice: choice,
		VoterRef:        voter.Ref,
		Timestamp:       int64(s.rng.Int31()),
	}
	env, err := envelope.Seal(s.authority.Random(), record, s.authority.PublicKey())
	if err != nil {
		return err
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil {
		return err
	}
	tag[0] ^= 0xff
	env.AuthTag = hex.EncodeToString(tag)

	return s.store.SaveVote(ctx.Context(), &store.VoteDocument{
		ID:          uuid.NewString(),
		ElectionRef: s.election.Ref,
		VoterRef:    voter.Ref,
		Envelope:    *env,
		VoteHash:    record.Hash(),
		Verified:    true,
	})
}

// renderReceipts writes the first receipts as PDFs, reads them back and
// verifies each against the store.
func (s *Simulation) renderReceipts(ctx *context.OperationContext, flow *protocol.Flow) error {
	n := s.config.Receipts
	if n > config.MaxReceiptsToRender {
		n = config.MaxReceiptsToRender
	}
	if n > len(s.receipts) {
		n = len(s.receipts)
	}
	if n == 0 {
		return nil
	}
	dir, err := config.EnsureDirectory(s.config.ReceiptsPath)
	if err != nil {
		return err
	}
	writer := receipt.NewPDFWriter(dir)
	reader := receipt.NewPDFReader()
	for _, r := range s.receipts[:n] {
		path, err := writer.Write(ctx, r)
		if err != nil {
			return err
		}
		scanned, err := reader.Read(ctx, path)
		if err != nil {
			return err
		}
		if _, err := flow.VerifyReceipt(ctx, scanned); err != nil {
			return err
		}
	}
	log.Info("Rendered and verified %d receipts under %s", n, dir)
	return nil
}
