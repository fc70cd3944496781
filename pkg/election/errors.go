package election

import "errors"

var (
	ErrValidation      = errors.New("validation failed")
	ErrInvalidState    = errors.New("invalid election state")
	ErrDuplicateResult = errors.New("result already exists")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyVoted    = errors.New("voter has already voted")
	ErrNotEligible     = errors.New("voter is not eligible")
)
