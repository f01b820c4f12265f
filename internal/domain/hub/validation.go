package hub

import (
	"math/big"
	"strings"
)

const (
	// MaxNameLength bounds project names in bytes.
	MaxNameLength = 64
	// NameSeparator joins names in the serialized project lists.
	NameSeparator = ","
)

// ValidateName checks a project name for registry use.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" || name != strings.TrimSpace(name) {
		return ErrInvalidName
	}
	if len(name) > MaxNameLength {
		return ErrInvalidName
	}
	if strings.Contains(name, NameSeparator) {
		return ErrInvalidName
	}
	return nil
}

// ValidateCreateInput validates fields required to create a project.
func ValidateCreateInput(req CreateRequest, now int64) error {
	if err := ValidateName(req.Name); err != nil {
		return err
	}
	if req.AmountNeeded == nil || req.AmountNeeded.Sign() <= 0 {
		return ErrInvalidGoal
	}
	if req.Deadline <= now {
		return ErrDeadlineNotInFuture
	}
	return nil
}

func hasValue(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
