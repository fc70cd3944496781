package actors

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned when a subject's role does not permit an action.
var ErrForbidden = errors.New("forbidden")

// Role is the role resolved for an authenticated subject.
type Role string

const (
	RoleVoter                Role = "voter"
	RoleAdmin                Role = "admin"
	RoleElectionCommissioner Role = "election_commissioner"
)

// Action is an operation guarded by a role check.
type Action string

const (
	ActionCastVote        Action = "cast_vote"
	ActionManageElection  Action = "manage_election"
	ActionGenerateResults Action = "generate_results"
	ActionFinalizeResults Action = "finalize_results"
)

var permissions = map[Action][]Role{
	ActionCastVote:        {RoleVoter},
	ActionManageElection:  {RoleAdmin, RoleElectionCommissioner},
	ActionGenerateResults: {RoleAdmin, RoleElectionCommissioner},
	ActionFinalizeResults: {RoleAdmin},
}

// Subject is an already-authenticated caller.
type Subject struct {
	ID   string
	Role Role
}

// Authorize returns ErrForbidden unless s may perform a.
func Authorize(s Subject, a Action) error {
	for _, r := range permissions[a] {
		if r == s.Role {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (%s) may not %s", ErrForbidden, s.ID, s.Role, a)
}
