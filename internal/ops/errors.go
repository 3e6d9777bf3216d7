package ops

import "github.com/pkg/errors"

// Error categories returned by this package. Errors are wrapped with
// context, so test for them with errors.Is.
var (
	ErrDTypeMismatch  = errors.New("dtype is not supported")
	ErrShapeMismatch  = errors.New("shapes are not aligned")
	ErrInvalidAxis    = errors.New("invalid axis")
	ErrAxisOutOfRange = errors.New("axis is out of range")
	ErrInvalidOrder   = errors.New("invalid norm order")
	ErrImproperDims   = errors.New("improper number of dimensions to norm")
)
