package device

import (
	"math"

	"github.com/gomlx/exceptions"
)

// Catch runs fn and reports a panic raised by the backend as an error, so
// that library entry points can return host failures unmodified.
func Catch(fn func() (Tensor, error)) (t Tensor, err error) {
	if caught := exceptions.TryCatch[error](func() { t, err = fn() }); caught != nil {
		return nil, caught
	}
	return t, err
}

// The functions below are shorthands over Backend methods, taking the
// backend from their first tensor operand.

func Abs(x Tensor) Tensor        { return x.Backend().Unary(OpAbs, x) }
func Neg(x Tensor) Tensor        { return x.Backend().Unary(OpNeg, x) }
func Exp(x Tensor) Tensor        { return x.Backend().Unary(OpExp, x) }
func Log(x Tensor) Tensor        { return x.Backend().Unary(OpLog, x) }
func Sqrt(x Tensor) Tensor       { return x.Backend().Unary(OpSqrt, x) }
func Reciprocal(x Tensor) Tensor { return x.Backend().Unary(OpReciprocal, x) }
func Conj(x Tensor) Tensor       { return x.Backend().Unary(OpConj, x) }
func IsNaN(x Tensor) Tensor      { return x.Backend().Unary(OpIsNaN, x) }

func Add(a, b Tensor) Tensor      { return a.Backend().Binary(OpAdd, a, b) }
func Sub(a, b Tensor) Tensor      { return a.Backend().Binary(OpSub, a, b) }
func Mul(a, b Tensor) Tensor      { return a.Backend().Binary(OpMul, a, b) }
func Div(a, b Tensor) Tensor      { return a.Backend().Binary(OpDiv, a, b) }
func Pow(a, b Tensor) Tensor      { return a.Backend().Binary(OpPow, a, b) }
func Maximum(a, b Tensor) Tensor  { return a.Backend().Binary(OpMaximum, a, b) }
func Minimum(a, b Tensor) Tensor  { return a.Backend().Binary(OpMinimum, a, b) }
func Equal(a, b Tensor) Tensor    { return a.Backend().Binary(OpEqual, a, b) }
func NotEqual(a, b Tensor) Tensor { return a.Backend().Binary(OpNotEqual, a, b) }

// scalarLike returns v as a scalar tensor that combines with x without
// changing x's dtype, unless v is fractional and x is not a float tensor.
func scalarLike(x Tensor, v float64) Tensor {
	dtype := x.DType()
	switch {
	case dtype == Bool:
		dtype = Int64
		if v != math.Trunc(v) {
			dtype = Float32
		}
	case !dtype.IsFloat() && v != math.Trunc(v):
		dtype = Float32
	}
	return x.Backend().Full(dtype, []int{}, v)
}

func AddScalar(x Tensor, v float64) Tensor     { return Add(x, scalarLike(x, v)) }
func MulScalar(x Tensor, v float64) Tensor     { return Mul(x, scalarLike(x, v)) }
func DivScalar(x Tensor, v float64) Tensor     { return Div(x, scalarLike(x, v)) }
func PowScalar(x Tensor, v float64) Tensor     { return Pow(x, scalarLike(x, v)) }
func MaximumScalar(x Tensor, v float64) Tensor { return Maximum(x, scalarLike(x, v)) }
func EqualScalar(x Tensor, v float64) Tensor   { return Equal(x, scalarLike(x, v)) }
func NotEqualScalar(x Tensor, v float64) Tensor {
	return NotEqual(x, scalarLike(x, v))
}

// ScalarSub returns v - x.
func ScalarSub(v float64, x Tensor) Tensor { return Sub(scalarLike(x, v), x) }

func ReduceAllSum(x Tensor) Tensor  { return x.Backend().Reduce(ReduceSum, x, false) }
func ReduceAllMean(x Tensor) Tensor { return x.Backend().Reduce(ReduceMean, x, false) }

func Sum(x Tensor, keepDims bool, axes ...int) Tensor {
	return x.Backend().Reduce(ReduceSum, x, keepDims, axes...)
}

func Max(x Tensor, keepDims bool, axes ...int) Tensor {
	return x.Backend().Reduce(ReduceMax, x, keepDims, axes...)
}

func Min(x Tensor, keepDims bool, axes ...int) Tensor {
	return x.Backend().Reduce(ReduceMin, x, keepDims, axes...)
}

func Reshape(x Tensor, dims ...int) Tensor   { return x.Backend().Reshape(x, dims...) }
func Transpose(x Tensor, perm ...int) Tensor { return x.Backend().Transpose(x, perm...) }
func ExpandDims(x Tensor, axis int) Tensor   { return x.Backend().ExpandDims(x, axis) }
func Squeeze(x Tensor, axis int) Tensor      { return x.Backend().Squeeze(x, axis) }
func Cast(x Tensor, dtype DType) Tensor      { return x.Backend().Cast(x, dtype) }
func Ravel(x Tensor) Tensor                  { return Reshape(x, -1) }
func MatMul(a, b Tensor) Tensor              { return a.Backend().MatMul(a, b) }
func SingularValues(x Tensor) Tensor         { return x.Backend().SingularValues(x) }
func Softmax(x Tensor, axis int) Tensor      { return x.Backend().Softmax(x, axis) }
func LogSoftmax(x Tensor, axis int) Tensor   { return x.Backend().LogSoftmax(x, axis) }
func Take(x, index Tensor) Tensor            { return x.Backend().Take(x, index) }

func GatherAxis(x Tensor, axis int, index Tensor) Tensor {
	return x.Backend().GatherAxis(x, axis, index)
}

func MaskedFill(x, mask Tensor, value float64) Tensor {
	return x.Backend().MaskedFill(x, mask, value)
}

func ZerosLike(x Tensor) Tensor { return x.Backend().Full(x.DType(), x.Shape(), 0) }
func OnesLike(x Tensor) Tensor  { return x.Backend().Full(x.DType(), x.Shape(), 1) }
