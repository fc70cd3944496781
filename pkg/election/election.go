// Package election holds the records exchanged with the document store.
package election

import (
	"fmt"
	"time"
)

// Status is a stage in an election's lifecycle.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusScheduled        Status = "SCHEDULED"
	StatusActive           Status = "ACTIVE"
	StatusEnded            Status = "ENDED"
	StatusResultsPublished Status = "RESULTS_PUBLISHED"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusScheduled},
	StatusScheduled: {StatusActive},
	StatusActive:    {StatusEnded},
	StatusEnded:     {StatusResultsPublished},
}

// CanTransition reports whether an election may move from one status to the next.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Candidate is one choice on the ballot. Its position in Election.Candidates
// is the candidateChoice index voters submit.
type Candidate struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Party string `json:"party"`
}

// Election is the subset of an election document the vote pipeline needs.
type Election struct {
	Ref             string      `json:"ref"`
	Title           string      `json:"title"`
	ElectionType    string      `json:"electionType"`
	Candidates      []Candidate `json:"candidates"`
	EligibleVoters  []string    `json:"eligibleVoters"`
	Status          Status      `json:"status"`
	Start           time.Time   `json:"start"`
	End             time.Time   `json:"end"`
	ContractAddress string      `json:"contractAddress,omitempty"`
}

// Validate checks the fields required before an election can be stored.
func (e *Election) Validate() error {
	if e.Ref == "" {
		return fmt.Errorf("%w: election ref is empty", ErrValidation)
	}
	if len(e.Candidates) < 2 {
		return fmt.Errorf("%w: election %s needs at least 2 candidates", ErrValidation, e.Ref)
	}
	seen := make(map[string]bool, len(e.Candidates))
	for _, c := range e.Candidates {
		if c.ID == "" || seen[c.ID] {
			return fmt.Errorf("%w: election %s has an empty or duplicate candidate id %q", ErrValidation, e.Ref, c.ID)
		}
		seen[c.ID] = true
	}
	if !e.End.IsZero() && e.End.Before(e.Start) {
		return fmt.Errorf("%w: election %s ends before it starts", ErrValidation, e.Ref)
	}
	switch e.Status {
	case StatusDraft, StatusScheduled, StatusActive, StatusEnded, StatusResultsPublished:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrValidation, e.Status)
	}
	return nil
}

// IsEligible reports whether voterRef appears in the eligible voter list.
func (e *Election) IsEligible(voterRef string) bool {
	for _, v := range e.EligibleVoters {
		if v == voterRef {
			return true
		}
	}
	return false
}

// InWindow reports whether t lies inside the voting window. A zero bound is open.
func (e *Election) InWindow(t time.Time) bool {
	if !e.Start.IsZero() && t.Before(e.Start) {
		return false
	}
	if !e.End.IsZero() && t.After(e.End) {
		return false
	}
	return true
}

// Clone returns a deep copy.
func (e *Election) Clone() *Election {
	cp := *e
	cp.Candidates = append([]Candidate(nil), e.Candidates...)
	cp.EligibleVoters = append([]string(nil), e.EligibleVoters...)
	return &cp
}
