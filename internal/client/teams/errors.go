package teams

import (
	"errors"
	"strings"
)

var (
	ErrInvalidTeam      = errors.New("invalid team")
	ErrInvalidAnswer    = errors.New("invalid answer")
	ErrNotAuthenticated = errors.New("sign in first")
	ErrTeamNotFound     = errors.New("team not found")
	ErrNotMember        = errors.New("only team members can answer")
)

// ValidationError lists every problem found in one form submission.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return ErrInvalidTeam.Error() + ": " + strings.Join(e.Problems, "; ")
}

// Is makes errors.Is(err, ErrInvalidTeam) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidTeam
}
