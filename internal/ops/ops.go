// Package ops provides array-library style numeric operations (dot, norm,
// batched matmul, axis helpers) composed from the primitives of a
// device.Backend.
//
// Every function returns a new tensor; inputs are never modified. Failures
// raised by the backend (for instance incompatible broadcast shapes) are
// returned as errors unmodified.
package ops

import (
	"github.com/pkg/errors"

	"github.com/23skdu/longbow-torchcompat/internal/device"
)

// checkDType returns the dtype of a dot product between a and b: float32 if
// either operand is float32, otherwise both operands must agree.
func checkDType(a, b device.DType) (device.DType, error) {
	if a == device.Float32 || b == device.Float32 {
		return device.Float32, nil
	}
	if a == b {
		return a, nil
	}
	return 0, errors.Wrapf(ErrDTypeMismatch, "dot of %s and %s", a, b)
}

// Dot generalizes matrix multiplication to arbitrary ranks: it contracts
// the last axis of a with the last axis of b, after swapping the last two
// axes of b when it has two or more. A scalar operand is multiplied
// elementwise.
func Dot(a, b device.Tensor) (device.Tensor, error) {
	return device.Catch(func() (device.Tensor, error) { return dot(a, b) })
}

func dot(a, b device.Tensor) (device.Tensor, error) {
	resDType, err := checkDType(a.DType(), b.DType())
	if err != nil {
		return nil, err
	}
	if a.Rank() == 0 || b.Rank() == 0 {
		return device.Mul(a, b), nil
	}
	if b.Rank() >= 2 {
		perm := make([]int, b.Rank())
		for i := range perm {
			perm[i] = i
		}
		n := len(perm)
		perm[n-2], perm[n-1] = perm[n-1], perm[n-2]
		b = device.Transpose(b, perm...)
	}

	aShape, bShape := a.Shape(), b.Shape()
	k := aShape[len(aShape)-1]
	if k != bShape[len(bShape)-1] {
		return nil, errors.Wrapf(ErrShapeMismatch, "dot of %v and %v", a.Shape(), b.Shape())
	}
	aLead, bLead := aShape[:len(aShape)-1], bShape[:len(bShape)-1]
	a2 := device.Cast(device.Reshape(a, product(aLead), k), device.Float32)
	b2 := device.Cast(device.Reshape(b, product(bLead), k), device.Float32)

	res := device.MatMul(a2, device.Transpose(b2, 1, 0))
	outShape := append(append([]int{}, aLead...), bLead...)
	return device.Cast(device.Reshape(res, outShape...), resDType), nil
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// Sqrt computes the elementwise square root in float32.
func Sqrt(x device.Tensor) (device.Tensor, error) {
	return device.Catch(func() (device.Tensor, error) { return sqrt(x), nil })
}

func sqrt(x device.Tensor) device.Tensor {
	return device.Sqrt(device.Cast(x, device.Float32))
}

// Reciprocal computes 1/x elementwise.
func Reciprocal(x device.Tensor) (device.Tensor, error) {
	return device.Catch(func() (device.Tensor, error) { return device.Reciprocal(x), nil })
}

// ReciprocalScalar is Reciprocal for plain numbers.
func ReciprocalScalar(x float64) float64 {
	return 1 / x
}

// MaskedFill returns inputs with value written where mask is true.
func MaskedFill(inputs, mask device.Tensor, value float64) (device.Tensor, error) {
	return device.Catch(func() (device.Tensor, error) {
		return device.MaskedFill(inputs, mask, value), nil
	})
}

// BMM multiplies batches of matrices, optionally transposing either operand.
func BMM(x, y device.Tensor, transposeX, transposeY bool) (device.Tensor, error) {
	return device.Catch(func() (device.Tensor, error) {
		return batchMatMulFor(transposeX, transposeY).Apply(x, y), nil
	})
}
