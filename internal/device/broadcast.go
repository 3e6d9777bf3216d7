package device

import (
	"slices"

	"github.com/gomlx/exceptions"
)

// numElements returns the product of the dimensions; 1 for a scalar.
func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// rowMajorStrides returns the element strides of a contiguous row-major layout.
func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// broadcastShapes returns the shape both operands broadcast to, following
// the usual array-library rules: dimensions are aligned from the right and
// must be equal or 1.
func broadcastShapes(a, b []int) ([]int, bool) {
	rank := max(len(a), len(b))
	out := make([]int, rank)
	for i := 1; i <= rank; i++ {
		da, db := 1, 1
		if i <= len(a) {
			da = a[len(a)-i]
		}
		if i <= len(b) {
			db = b[len(b)-i]
		}
		switch {
		case da == db, db == 1:
			out[rank-i] = da
		case da == 1:
			out[rank-i] = db
		default:
			return nil, false
		}
	}
	return out, true
}

// broadcastStrides maps an operand of the given shape onto out: broadcast
// dimensions get a zero stride.
func broadcastStrides(shape, out []int) []int {
	own := rowMajorStrides(shape)
	strides := make([]int, len(out))
	offset := len(out) - len(shape)
	for i := range shape {
		if shape[i] != 1 || out[offset+i] == 1 {
			strides[offset+i] = own[i]
		}
	}
	return strides
}

// forEachIndex walks out in row-major order, calling fn with the flat output
// position and the flat positions of every operand described by strides.
func forEachIndex(out []int, strides [][]int, fn func(pos int, offsets []int)) {
	n := numElements(out)
	if n == 0 {
		return
	}
	rank := len(out)
	counter := make([]int, rank)
	offsets := make([]int, len(strides))
	for pos := 0; pos < n; pos++ {
		fn(pos, offsets)
		// Increment the multi-dimensional counter, updating offsets.
		for axis := rank - 1; axis >= 0; axis-- {
			counter[axis]++
			for k := range strides {
				offsets[k] += strides[k][axis]
			}
			if counter[axis] < out[axis] {
				break
			}
			for k := range strides {
				offsets[k] -= strides[k][axis] * counter[axis]
			}
			counter[axis] = 0
		}
	}
}

// normalizeAxis maps a possibly negative axis into [0, rank).
func normalizeAxis(axis, rank int, op string) int {
	if axis < -rank || axis >= rank {
		exceptions.Panicf("%s: axis %d out of range for rank %d", op, axis, rank)
	}
	if axis < 0 {
		axis += rank
	}
	return axis
}

// normalizeAxes normalizes and sorts reduction axes, rejecting duplicates.
func normalizeAxes(axes []int, rank int, op string) []int {
	out := make([]int, len(axes))
	for i, a := range axes {
		out[i] = normalizeAxis(a, rank, op)
	}
	slices.Sort(out)
	for i := 1; i < len(out); i++ {
		if out[i] == out[i-1] {
			exceptions.Panicf("%s: duplicate axis %d", op, out[i])
		}
	}
	return out
}
