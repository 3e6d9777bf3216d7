package ops

import (
	"math"

	"github.com/pkg/errors"

	"github.com/23skdu/longbow-torchcompat/internal/device"
)

// Norm computes a vector or matrix norm of x.
//
// axis selects the reduced axes: nil means all of them, one axis computes a
// vector norm and two axes a matrix norm. Supported orders:
//
//	ord    vector norm              matrix norm
//	None   2-norm                   Frobenius
//	"fro"  -                        Frobenius
//	"nuc"  -                        sum of singular values
//	inf    max(|x|)                 max row sum of |x|
//	-inf   min(|x|)                 min row sum of |x|
//	0      count of nonzeros        -
//	1      sum(|x|)                 max column sum of |x|
//	-1     sum(|x|^-1)^-1           min column sum of |x|
//	2      2-norm                   largest singular value
//	-2     sum(|x|^-2)^-1/2         smallest singular value
//	p      sum(|x|^p)^(1/p)         -
//
// With keepDims the reduced axes are kept with size 1.
func Norm(x device.Tensor, ord Order, axis []int, keepDims bool) (device.Tensor, error) {
	return device.Catch(func() (device.Tensor, error) { return norm(x, ord, axis, keepDims) })
}

func norm(x device.Tensor, ord Order, axis []int, keepDims bool) (device.Tensor, error) {
	nd := x.Rank()

	// Fast path for the common full reductions.
	if axis == nil {
		if ord.IsNone() || (ord.isName("f", "fro") && nd == 2) || (ord.is(2) && nd == 1) {
			flat := device.Ravel(x)
			sqnorm, err := dot(flat, flat)
			if err != nil {
				return nil, err
			}
			ret := sqrt(sqnorm)
			if keepDims {
				ret = device.Reshape(ret, ones(nd)...)
			}
			return ret, nil
		}
		axis = make([]int, nd)
		for i := range axis {
			axis[i] = i
		}
	}

	switch len(axis) {
	case 1:
		return vectorNorm(x, ord, axis[0], keepDims)
	case 2:
		return matrixNorm(x, ord, axis[0], axis[1], keepDims)
	default:
		return nil, errors.Wrapf(ErrImproperDims, "%d axes given", len(axis))
	}
}

func vectorNorm(x device.Tensor, ord Order, axis int, keepDims bool) (device.Tensor, error) {
	axis, err := NormalizeAxisIndex(axis, x.Rank())
	if err != nil {
		return nil, err
	}

	switch {
	case ord.is(math.Inf(1)):
		return device.Max(device.Abs(x), keepDims, axis), nil
	case ord.is(math.Inf(-1)):
		return device.Min(device.Abs(x), keepDims, axis), nil
	case ord.is(0):
		nonzero := device.Cast(device.NotEqualScalar(x, 0), x.DType())
		return device.Sum(nonzero, keepDims, axis), nil
	case ord.is(1):
		return reduceSumFor(keepDims).Apply(device.Abs(x), axis), nil
	case ord.IsNone() || ord.is(2):
		s := device.Mul(device.Conj(x), x)
		return sqrt(reduceSumFor(keepDims).Apply(s, axis)), nil
	case ord.IsNamed():
		// None of the named orders are valid for vectors.
		return nil, errors.Wrapf(ErrInvalidOrder, "'%s' for vectors", ord)
	}

	absx := device.Abs(x)
	if !absx.DType().IsFloat() {
		// Negative and fractional powers of integers need a float dtype.
		absx = device.Cast(absx, device.Float32)
	}
	absx = device.PowScalar(absx, ord.p)
	ret := reduceSumFor(keepDims).Apply(absx, axis)
	ret = device.PowScalar(ret, ReciprocalScalar(ord.p))
	// Roots that come out as NaN are reported as zero.
	return device.MaskedFill(ret, device.IsNaN(ret), 0), nil
}

func matrixNorm(x device.Tensor, ord Order, rowAxis, colAxis int, keepDims bool) (device.Tensor, error) {
	nd := x.Rank()
	row, err := NormalizeAxisIndex(rowAxis, nd)
	if err != nil {
		return nil, err
	}
	col, err := NormalizeAxisIndex(colAxis, nd)
	if err != nil {
		return nil, err
	}
	if row == col {
		return nil, errors.Wrapf(ErrInvalidAxis, "Duplicate axes given (%d, %d)", rowAxis, colAxis)
	}

	// Reducing one axis first shifts the later one down by one.
	colAfterRow, rowAfterCol := col, row
	if col > row {
		colAfterRow--
	}
	if row > col {
		rowAfterCol--
	}

	var ret device.Tensor
	switch {
	case ord.is(2):
		ret = multiSVDNorm(x, row, col, device.ReduceMax)
	case ord.is(-2):
		ret = multiSVDNorm(x, row, col, device.ReduceMin)
	case ord.is(1):
		ret = device.Max(device.Sum(device.Abs(x), false, row), false, colAfterRow)
	case ord.is(math.Inf(1)):
		ret = device.Max(device.Sum(device.Abs(x), false, col), false, rowAfterCol)
	case ord.is(-1):
		ret = device.Min(device.Sum(device.Abs(x), false, row), false, colAfterRow)
	case ord.is(math.Inf(-1)):
		ret = device.Min(device.Sum(device.Abs(x), false, col), false, rowAfterCol)
	case ord.IsNone() || ord.isName("fro", "f"):
		ret = sqrt(device.Sum(device.Mul(device.Conj(x), x), false, row, col))
	case ord.isName("nuc"):
		ret = multiSVDNorm(x, row, col, device.ReduceSum)
	default:
		return nil, errors.Wrapf(ErrInvalidOrder, "%s for matrices", ord)
	}

	if keepDims {
		shape := x.Shape()
		shape[row] = 1
		shape[col] = 1
		ret = device.Reshape(ret, shape...)
	}
	return ret, nil
}

// multiSVDNorm moves the row and column axes to the end, computes the
// singular values of every matrix and reduces them with op.
func multiSVDNorm(x device.Tensor, row, col int, op device.ReduceOp) device.Tensor {
	perm := make([]int, 0, x.Rank())
	for i := 0; i < x.Rank(); i++ {
		if i != row && i != col {
			perm = append(perm, i)
		}
	}
	perm = append(perm, row, col)
	y := device.Transpose(device.Cast(x, device.Float32), perm...)
	sv := device.SingularValues(y)
	return sv.Backend().Reduce(op, sv, false, -1)
}

func ones(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = 1
	}
	return s
}
