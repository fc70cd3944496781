package election

import "time"

// VerificationMethod is recorded on every result produced by the tally engine.
const VerificationMethod = "hybrid-rsa-aes-gcm"

// CandidateResult is one row of a tally.
type CandidateResult struct {
	CandidateID   string  `json:"candidateId"`
	CandidateName string  `json:"candidateName"`
	Party         string  `json:"party"`
	Votes         int     `json:"votes"`
	Percentage    float64 `json:"percentage"`
}

// Anchor links a result to an external ledger.
type Anchor struct {
	NetworkID       uint64 `json:"networkId"`
	ContractAddress string `json:"contractAddress"`
	BlockHeight     uint64 `json:"finalizedBlockNumber"`
	TransactionRef  string `json:"finalizationTxHash"`
}

// Metadata carries turnout and provenance data for a result.
type Metadata struct {
	TotalVoters        int     `json:"totalVoters"`
	VoterTurnout       int     `json:"voterTurnout"`
	TurnoutPercentage  float64 `json:"turnoutPercentage"`
	InvalidVotes       int     `json:"invalidVotes"`
	ElectionType       string  `json:"electionType"`
	VerificationMethod string  `json:"verificationMethod"`
	Anchor             *Anchor `json:"blockchainInfo,omitempty"`
}

// TallyResult is the aggregate outcome of one election. Counts never change
// after creation; only Metadata.Anchor and Finalized are set later.
type TallyResult struct {
	ID          string            `json:"id"`
	ElectionRef string            `json:"electionRef"`
	Results     []CandidateResult `json:"results"`
	Winner      *CandidateResult  `json:"winner,omitempty"`
	Metadata    Metadata          `json:"metadata"`
	// VoteRoot is the hex Merkle root over the hashes of every counted vote.
	VoteRoot string `json:"voteRoot,omitempty"`
	// CountedVotes lists the hashes of the counted votes in Merkle leaf order.
	CountedVotes []string  `json:"countedVotes,omitempty"`
	Finalized    bool      `json:"isFinalized"`
	PublishedAt  time.Time `json:"publishedAt"`
}

// Clone returns a deep copy.
func (r *TallyResult) Clone() *TallyResult {
	cp := *r
	cp.Results = append([]CandidateResult(nil), r.Results...)
	cp.CountedVotes = append([]string(nil), r.CountedVotes...)
	if r.Winner != nil {
		w := *r.Winner
		cp.Winner = &w
	}
	if r.Metadata.Anchor != nil {
		a := *r.Metadata.Anchor
		cp.Metadata.Anchor = &a
	}
	return &cp
}
