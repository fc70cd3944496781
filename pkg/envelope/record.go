package envelope

import (
	"fmt"

	"votevault/pkg/serialization"
)

const recordVersion = 1

// VoteRecord is the plaintext sealed inside an Envelope.
type VoteRecord struct {
	ElectionRef     string
	CandidateChoice int // 0-based index into the election's candidates
	VoterRef        string
	Timestamp       int64 // Unix seconds at casting time
}

// MarshalBinary returns the canonical byte form: a version byte followed by
// length-prefixed strings and big-endian integers in field order.
func (r *VoteRecord) MarshalBinary() ([]byte, error) {
	s := serialization.NewSerializer()
	s.WriteVersion(recordVersion)
	s.WriteString(r.ElectionRef)
	s.WriteInt(r.CandidateChoice)
	s.WriteString(r.VoterRef)
	s.WriteInt64(r.Timestamp)
	return s.Bytes()
}

// UnmarshalBinary parses the output of MarshalBinary. Trailing bytes are rejected.
func (r *VoteRecord) UnmarshalBinary(data []byte) error {
	d := serialization.NewDeserializer(data)
	d.ExpectVersion(recordVersion)
	electionRef := d.ReadString()
	choice := d.ReadInt()
	voterRef := d.ReadString()
	timestamp := d.ReadInt64()
	if err := d.Finish(); err != nil {
		return fmt.Errorf("failed to decode vote record: %w", err)
	}
	*r = VoteRecord{ElectionRef: electionRef, CandidateChoice: choice, VoterRef: voterRef, Timestamp: timestamp}
	return nil
}
