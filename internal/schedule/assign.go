package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lexlab/internal/catalog"
)

// ErrInvalidIdentifier reports a participant code outside the accepted range.
// Shown inline to the participant; never fatal.
var ErrInvalidIdentifier = errors.New("invalid participant identifier")

// Assignment design constants. Codes 001..040 rotate through a 20-slot cycle
// split into four bands of five, one band per variant.
const (
	MinParticipantNo = 1
	MaxParticipantNo = 40

	bandCycle    = 20
	variantCount = 4
	bandSize     = bandCycle / variantCount
)

// AssignVariant maps a participant code to its test variant.
// Deterministic and total over codes 001..040; leading zeros are accepted.
func AssignVariant(code string) (catalog.Variant, error) {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil || n < MinParticipantNo || n > MaxParticipantNo {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, code)
	}
	position := ((n - 1) % bandCycle) + 1
	band := (position - 1) / bandSize
	return catalog.Variants[band], nil
}
