package ops

import (
	"github.com/pkg/errors"

	"github.com/23skdu/longbow-torchcompat/internal/device"
)

// NormalizeAxisIndex maps axis from [-ndim, ndim) into [0, ndim).
func NormalizeAxisIndex(axis, ndim int) (int, error) {
	switch {
	case axis >= 0 && axis < ndim:
		return axis, nil
	case axis < 0 && axis >= -ndim:
		return ndim + axis, nil
	default:
		return 0, errors.Wrapf(ErrAxisOutOfRange, "axis %d for %d dimensions", axis, ndim)
	}
}

// MoveAxis transposes x with the permutation obtained by swapping, for each
// (source, destination) pair in turn, the two positions of the identity
// permutation. With a single pair this exchanges the two axes, so applying
// the same call twice restores x.
func MoveAxis(x device.Tensor, source, destination []int) (device.Tensor, error) {
	if len(source) != len(destination) {
		return nil, errors.Wrapf(ErrInvalidAxis, "moveaxis: %d source axes but %d destinations", len(source), len(destination))
	}
	ndim := x.Rank()
	perm := make([]int, ndim)
	for i := range perm {
		perm[i] = i
	}
	for i := range source {
		s, err := NormalizeAxisIndex(source[i], ndim)
		if err != nil {
			return nil, err
		}
		d, err := NormalizeAxisIndex(destination[i], ndim)
		if err != nil {
			return nil, err
		}
		perm[s], perm[d] = perm[d], perm[s]
	}
	return device.Catch(func() (device.Tensor, error) {
		return device.Transpose(x, perm...), nil
	})
}
