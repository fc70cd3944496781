package protocol

import (
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	"votevault/pkg/actors"
	"votevault/pkg/config"
	"votevault/pkg/context"
	"votevault/pkg/crypto"
	"votevault/pkg/election"
	"votevault/pkg/envelope"
	"votevault/pkg/metrics"
	"votevault/pkg/store"
)

var (
	authorityOnce sync.Once
	authority     *actors.TallyingAuthority
	authorityErr  error
)

// testAuthority builds one tallying authority per test binary.
func testAuthority(t *testing.T) *actors.TallyingAuthority {
	t.Helper()
	authorityOnce.Do(func() {
		kp, err := crypto.GenerateKeyPair(nil, crypto.DefaultKeyBits)
		if err != nil {
			authorityErr = err
			return
		}
		fieldKey, err := crypto.GenerateKey(nil)
		if err != nil {
			authorityErr = err
			return
		}
		svc, err := crypto.NewService(kp, fieldKey, nil)
		if err != nil {
			authorityErr = err
			return
		}
		sk, pk := crypto.NewReceiptKey(nil)
		authority, authorityErr = actors.NewTallyingAuthority(svc, sk, pk)
	})
	if authorityErr != nil {
		t.Fatalf("building tallying authority: %v", authorityErr)
	}
	return authority
}

func testContext() *context.OperationContext {
	cfg := config.Default()
	cfg.Cores = 2
	return context.NewContext(cfg, metrics.NewRecorder())
}

// voterRef returns the i-th eligible voter of the test elections.
func voterRef(i int) string {
	return fmt.Sprintf("0x%040d", i)
}

func newTestElection(ref string, status election.Status, candidates, eligible int) *election.Election {
	e := &election.Election{
		Ref:          ref,
		Title:        "Test election",
		ElectionType: "General",
		Status:       status,
	}
	for i := 0; i < candidates; i++ {
		e.Candidates = append(e.Candidates, election.Candidate{
			ID:   string(rune('a' + i)),
			Name: "Candidate " + string(rune('A'+i)),
		})
	}
	for i := 0; i < eligible; i++ {
		e.EligibleVoters = append(e.EligibleVoters, voterRef(i))
	}
	return e
}

// storeVote seals a vote for voter i and saves it as verified. A corrupt vote
// gets its authentication tag flipped after sealing.
func storeVote(t *testing.T, s store.Store, ta *actors.TallyingAuthority, ref string, i, choice int, corrupt bool) string {
	t.Helper()
	record := &envelope.VoteRecord{
		ElectionRef:     ref,
		CandidateChoice: choice,
		VoterRef:        voterRef(i),
		Timestamp:       1700000000 + int64(i),
	}
	env, err := envelope.Seal(nil, record, ta.PublicKey())
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if corrupt {
		tag, _ := hex.DecodeString(env.AuthTag)
		tag[0] ^= 0x01
		env.AuthTag = hex.EncodeToString(tag)
	}
	doc := &store.VoteDocument{
		ID:          fmt.Sprintf("vote-%s-%d", ref, i),
		ElectionRef: ref,
		VoterRef:    record.VoterRef,
		Envelope:    *env,
		VoteHash:    record.Hash(),
		Verified:    true,
	}
	if err := s.SaveVote(testContext().Context(), doc); err != nil {
		t.Fatalf("SaveVote() error = %v", err)
	}
	return doc.VoteHash
}

// setupTally stores an ENDED election with the given votes and returns the store.
func setupTally(t *testing.T, ref string, candidates, eligible int, choices []int, corrupt int) store.Store {
	t.Helper()
	ta := testAuthority(t)
	s := store.NewMemory()
	if err := s.SaveElection(testContext().Context(), newTestElection(ref, election.StatusEnded, candidates, eligible)); err != nil {
		t.Fatalf("SaveElection() error = %v", err)
	}
	for i, c := range choices {
		storeVote(t, s, ta, ref, i, c, false)
	}
	for i := 0; i < corrupt; i++ {
		storeVote(t, s, ta, ref, len(choices)+i, 0, true)
	}
	return s
}
