package envelope

import (
	"errors"
	"sync"
	"testing"

	"votevault/pkg/crypto"
)

var (
	keysOnce sync.Once
	keys     *crypto.KeyPair
	keysErr  error
)

func testKeys(t *testing.T) *crypto.KeyPair {
	t.Helper()
	keysOnce.Do(func() {
		keys, keysErr = crypto.GenerateKeyPair(nil, crypto.DefaultKeyBits)
	})
	if keysErr != nil {
		t.Fatalf("GenerateKeyPair() error = %v", keysErr)
	}
	return keys
}

// flipHex replaces the hex digit at i with a different valid hex digit.
func flipHex(s string, i int) string {
	b := []byte(s)
	if b[i] == '0' {
		b[i] = '1'
	} else {
		b[i] = '0'
	}
	return string(b)
}

func TestSealOpen(t *testing.T) {
	kp := testKeys(t)
	record := &VoteRecord{ElectionRef: "42", CandidateChoice: 1, VoterRef: "0xAbC", Timestamp: 1700000000}

	env, err := Seal(nil, record, kp.Public)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	t.Run("round trip", func(t *testing.T) {
		got, err := Open(env, kp.Private)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if *got != *record {
			t.Errorf("Open() = %+v, want %+v", got, record)
		}
	})

	t.Run("fresh key material per seal", func(t *testing.T) {
		again, err := Seal(nil, record, kp.Public)
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}
		if again.IV == env.IV || again.WrappedKey == env.WrappedKey || again.EncryptedPayload == env.EncryptedPayload {
			t.Error("two seals of the same record share key material")
		}
	})

	t.Run("tamper detection", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(e *Envelope)
		}{
			{"payload first byte", func(e *Envelope) { e.EncryptedPayload = flipHex(e.EncryptedPayload, 0) }},
			{"payload last byte", func(e *Envelope) { e.EncryptedPayload = flipHex(e.EncryptedPayload, len(e.EncryptedPayload)-1) }},
			{"iv", func(e *Envelope) { e.IV = flipHex(e.IV, 3) }},
			{"auth tag", func(e *Envelope) { e.AuthTag = flipHex(e.AuthTag, 7) }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				cp := *env
				tt.mutate(&cp)
				got, err := Open(&cp, kp.Private)
				if !errors.Is(err, crypto.ErrAuthentication) {
					t.Errorf("Open() error = %v, want ErrAuthentication", err)
				}
				if got != nil {
					t.Errorf("Open() returned %+v on failure", got)
				}
			})
		}
	})

	t.Run("decryption errors", func(t *testing.T) {
		other, err := crypto.GenerateKeyPair(nil, 1024)
		if err != nil {
			t.Fatalf("GenerateKeyPair() error = %v", err)
		}
		tests := []struct {
			name string
			env  *Envelope
			priv *crypto.KeyPair
		}{
			{"wrong private key", env, other},
			{"wrapped key not base64", &Envelope{EncryptedPayload: env.EncryptedPayload, WrappedKey: "***", IV: env.IV, AuthTag: env.AuthTag}, kp},
			{"payload not hex", &Envelope{EncryptedPayload: "zz", WrappedKey: env.WrappedKey, IV: env.IV, AuthTag: env.AuthTag}, kp},
			{"nil envelope", nil, kp},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := Open(tt.env, tt.priv.Private); !errors.Is(err, crypto.ErrDecryption) {
					t.Errorf("Open() error = %v, want ErrDecryption", err)
				}
			})
		}
	})

	t.Run("out of range choice is not checked", func(t *testing.T) {
		e, err := Seal(nil, &VoteRecord{ElectionRef: "42", CandidateChoice: 5, VoterRef: "0x1"}, kp.Public)
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}
		got, err := Open(e, kp.Private)
		if err != nil || got.CandidateChoice != 5 {
			t.Errorf("Open() = %+v, %v", got, err)
		}
	})
}

func TestComputeVoteHash(t *testing.T) {
	base := ComputeVoteHash("42", "0xabc", 1, 1700000000)

	if again := ComputeVoteHash("42", "0xabc", 1, 1700000000); again != base {
		t.Fatalf("hash is not deterministic: %s != %s", again, base)
	}
	if want := crypto.SHA256Hex("42-0xabc-1-1700000000"); base != want {
		t.Errorf("ComputeVoteHash() = %s, want %s", base, want)
	}

	tests := []struct {
		name string
		hash string
	}{
		{"election", ComputeVoteHash("43", "0xabc", 1, 1700000000)},
		{"voter", ComputeVoteHash("42", "0xabd", 1, 1700000000)},
		{"choice", ComputeVoteHash("42", "0xabc", 0, 1700000000)},
		{"timestamp", ComputeVoteHash("42", "0xabc", 1, 1700000001)},
	}
	for _, tt := range tests {
		t.Run("changing "+tt.name, func(t *testing.T) {
			if tt.hash == base {
				t.Error("hash did not change")
			}
		})
	}

	record := &VoteRecord{ElectionRef: "42", VoterRef: "0xabc", CandidateChoice: 1, Timestamp: 1700000000}
	if record.Hash() != base {
		t.Error("VoteRecord.Hash() differs from ComputeVoteHash()")
	}
}

func TestVoteRecordBinary(t *testing.T) {
	record := &VoteRecord{ElectionRef: "e-1", CandidateChoice: 3, VoterRef: "0xdef", Timestamp: -1}
	data, err := record.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}

	var got VoteRecord
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if got != *record {
		t.Errorf("UnmarshalBinary() = %+v, want %+v", got, *record)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", data[:len(data)-3]},
		{"trailing bytes", append(append([]byte(nil), data...), 0)},
		{"bad version", append([]byte{9}, data[1:]...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r VoteRecord
			if err := r.UnmarshalBinary(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}
