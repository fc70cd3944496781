package actors

import (
	"errors"
	"strings"
	"testing"

	"votevault/pkg/config"
	"votevault/pkg/crypto"
	"votevault/pkg/envelope"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		role   Role
		action Action
		ok     bool
	}{
		{RoleAdmin, ActionGenerateResults, true},
		{RoleElectionCommissioner, ActionGenerateResults, true},
		{RoleVoter, ActionGenerateResults, false},
		{RoleAdmin, ActionFinalizeResults, true},
		{RoleElectionCommissioner, ActionFinalizeResults, false},
		{RoleVoter, ActionCastVote, true},
		{RoleAdmin, ActionCastVote, false},
		{Role("guest"), ActionManageElection, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.action), func(t *testing.T) {
			err := Authorize(Subject{ID: "u1", Role: tt.role}, tt.action)
			if tt.ok && err != nil {
				t.Errorf("Authorize() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrForbidden) {
				t.Errorf("Authorize() error = %v, want ErrForbidden", err)
			}
		})
	}
}

func TestTallyingAuthority(t *testing.T) {
	cfg := config.Default()
	cfg.KeyDir = t.TempDir()

	ta, err := LoadTallyingAuthority(cfg, nil)
	if err != nil {
		t.Fatalf("LoadTallyingAuthority() error = %v", err)
	}

	record := &envelope.VoteRecord{ElectionRef: "e1", CandidateChoice: 0, VoterRef: "0x1", Timestamp: 1}
	env, err := envelope.Seal(nil, record, ta.PublicKey())
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	got, err := ta.OpenVote(env)
	if err != nil {
		t.Fatalf("OpenVote() error = %v", err)
	}
	if *got != *record {
		t.Errorf("OpenVote() = %+v, want %+v", got, record)
	}

	sig, err := ta.SignReceipt([]byte("receipt"))
	if err != nil {
		t.Fatalf("SignReceipt() error = %v", err)
	}
	if err := sig.VerifyFor(ta.ReceiptKey(), []byte("receipt")); err != nil {
		t.Errorf("receipt signature does not verify: %v", err)
	}

	rs, err := ta.SignResult([]byte("digest"))
	if err != nil {
		t.Fatalf("SignResult() error = %v", err)
	}
	if !crypto.Verify([]byte("digest"), rs, ta.PublicKey()) {
		t.Error("result signature does not verify")
	}

	cfg.Mode = config.ModeProduction
	cfg.FieldKeyHex = strings.Repeat("ab", crypto.KeySize)
	reloaded, err := LoadTallyingAuthority(cfg, nil)
	if err != nil {
		t.Fatalf("reloading persisted keys in production failed: %v", err)
	}
	if !reloaded.ReceiptKey().Equal(ta.ReceiptKey()) {
		t.Error("reloaded receipt key differs")
	}
}

func TestNewVoter(t *testing.T) {
	a := NewVoter("e1", 1)
	if !strings.HasPrefix(a.Ref, "0x") || len(a.Ref) != 42 {
		t.Errorf("unexpected voter ref %q", a.Ref)
	}
	if NewVoter("e1", 1).Ref != a.Ref {
		t.Error("voter ref is not stable")
	}
	if NewVoter("e1", 2).Ref == a.Ref || NewVoter("e2", 1).Ref == a.Ref {
		t.Error("distinct voters share a ref")
	}
}
