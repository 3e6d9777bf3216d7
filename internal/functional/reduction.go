package functional

import (
	"github.com/pkg/errors"
)

var (
	ErrInvalidReduction = errors.New("invalid reduction")
	ErrInvalidShape     = errors.New("invalid input shape")
	ErrNotImplemented   = errors.New("not implemented")
)

// Reduction selects how per-element losses are collapsed.
type Reduction int

const (
	ReductionNone Reduction = iota
	ReductionMean
	ReductionSum
)

var reductionNames = [...]string{"none", "mean", "sum"}

func (r Reduction) String() string {
	if r < 0 || int(r) >= len(reductionNames) {
		return "invalid"
	}
	return reductionNames[r]
}

// ParseReduction maps "none", "mean" or "sum" to a Reduction.
func ParseReduction(s string) (Reduction, error) {
	for i, name := range reductionNames {
		if name == s {
			return Reduction(i), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidReduction, "%q", s)
}
