package device

import (
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/floats"
)

// ensure interface compliance
var _ Backend = (*CPUBackend)(nil)
var _ Tensor = (*CPUTensor)(nil)

// CPUBackend keeps tensors in host memory and delegates the linear algebra
// to gonum.
type CPUBackend struct{}

func NewCPUBackend() *CPUBackend {
	return &CPUBackend{}
}

func (b *CPUBackend) Name() string {
	return "CPU"
}

// CPUTensor stores every dtype as float64 values already rounded to the
// dtype's precision.
type CPUTensor struct {
	backend *CPUBackend
	dtype   DType
	shape   []int
	data    []float64
}

func (t *CPUTensor) Shape() []int     { return append([]int{}, t.shape...) }
func (t *CPUTensor) DType() DType     { return t.dtype }
func (t *CPUTensor) Rank() int        { return len(t.shape) }
func (t *CPUTensor) Size() int        { return len(t.data) }
func (t *CPUTensor) Backend() Backend { return t.backend }

func (t *CPUTensor) Values() []float64 {
	return slices.Clone(t.data)
}

func (t *CPUTensor) Item() float64 {
	if len(t.data) != 1 {
		exceptions.Panicf("Item: tensor of shape %v has %d elements", t.shape, len(t.data))
	}
	return t.data[0]
}

func (b *CPUBackend) NewTensor(dtype DType, shape []int, data []float64) Tensor {
	for _, d := range shape {
		if d < 0 {
			exceptions.Panicf("NewTensor: negative dimension in shape %v", shape)
		}
	}
	size := numElements(shape)
	t := &CPUTensor{
		backend: b,
		dtype:   dtype,
		shape:   slices.Clone(shape),
		data:    make([]float64, size),
	}
	if data != nil {
		if len(data) != size {
			exceptions.Panicf("NewTensor: provided data length %d does not match shape %v", len(data), shape)
		}
		for i, v := range data {
			t.data[i] = dtype.Round(v)
		}
	}
	return t
}

func (b *CPUBackend) Full(dtype DType, shape []int, v float64) Tensor {
	t := b.NewTensor(dtype, shape, nil).(*CPUTensor)
	v = dtype.Round(v)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// wrap builds a tensor from freshly computed values, taking ownership of data.
func (b *CPUBackend) wrap(dtype DType, shape []int, data []float64) *CPUTensor {
	for i, v := range data {
		data[i] = dtype.Round(v)
	}
	return &CPUTensor{backend: b, dtype: dtype, shape: shape, data: data}
}

func (b *CPUBackend) cpu(x Tensor, op string) *CPUTensor {
	ct, ok := x.(*CPUTensor)
	if !ok || ct == nil {
		exceptions.Panicf("%s: tensor from backend %T is not a CPU tensor", op, x)
	}
	return ct
}

func (b *CPUBackend) Unary(op UnaryOp, x Tensor) Tensor {
	xt := b.cpu(x, op.String())
	countOp(b, op.String())

	dtype := xt.dtype
	var fn func(float64) float64
	switch op {
	case OpAbs:
		fn = math.Abs
	case OpNeg:
		fn = func(v float64) float64 { return -v }
	case OpConj:
		// Real dtypes only: the conjugate is the identity.
		fn = func(v float64) float64 { return v }
	case OpExp:
		dtype, fn = floatResult(dtype), math.Exp
	case OpLog:
		dtype, fn = floatResult(dtype), math.Log
	case OpSqrt:
		dtype, fn = floatResult(dtype), math.Sqrt
	case OpReciprocal:
		dtype, fn = floatResult(dtype), func(v float64) float64 { return 1 / v }
	case OpIsNaN:
		dtype = Bool
		fn = func(v float64) float64 {
			if math.IsNaN(v) {
				return 1
			}
			return 0
		}
	default:
		exceptions.Panicf("Unary: unknown op %d", int(op))
	}

	out := make([]float64, len(xt.data))
	for i, v := range xt.data {
		out[i] = fn(v)
	}
	return b.wrap(dtype, slices.Clone(xt.shape), out)
}

func (b *CPUBackend) Binary(op BinaryOp, x, y Tensor) Tensor {
	xt := b.cpu(x, op.String())
	yt := b.cpu(y, op.String())
	countOp(b, op.String())

	shape, ok := broadcastShapes(xt.shape, yt.shape)
	if !ok {
		exceptions.Panicf("%s: shapes %v and %v cannot be broadcast together", op, xt.shape, yt.shape)
	}

	dtype := Promote(xt.dtype, yt.dtype)
	var fn func(a, b float64) float64
	switch op {
	case OpAdd:
		fn = func(a, b float64) float64 { return a + b }
	case OpSub:
		fn = func(a, b float64) float64 { return a - b }
	case OpMul:
		fn = func(a, b float64) float64 { return a * b }
	case OpDiv:
		dtype = floatResult(dtype)
		fn = func(a, b float64) float64 { return a / b }
	case OpPow:
		fn = math.Pow
	case OpMaximum:
		fn = math.Max
	case OpMinimum:
		fn = math.Min
	case OpEqual:
		dtype = Bool
		fn = func(a, b float64) float64 { return boolValue(a == b) }
	case OpNotEqual:
		dtype = Bool
		fn = func(a, b float64) float64 { return boolValue(a != b) }
	default:
		exceptions.Panicf("Binary: unknown op %d", int(op))
	}

	out := make([]float64, numElements(shape))
	strides := [][]int{broadcastStrides(xt.shape, shape), broadcastStrides(yt.shape, shape)}
	forEachIndex(shape, strides, func(pos int, offsets []int) {
		out[pos] = fn(xt.data[offsets[0]], yt.data[offsets[1]])
	})
	return b.wrap(dtype, shape, out)
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func (b *CPUBackend) Reduce(op ReduceOp, x Tensor, keepDims bool, axes ...int) Tensor {
	xt := b.cpu(x, op.String())
	countOp(b, op.String())

	rank := len(xt.shape)
	if len(axes) == 0 {
		axes = make([]int, rank)
		for i := range axes {
			axes[i] = i
		}
	}
	axes = normalizeAxes(axes, rank, op.String())

	// Move the kept axes first and the reduced ones last, so that every
	// output element reduces one contiguous row.
	reduced := make([]bool, rank)
	for _, a := range axes {
		reduced[a] = true
	}
	perm := make([]int, 0, rank)
	var outShape []int
	inner := 1
	for i := 0; i < rank; i++ {
		if !reduced[i] {
			perm = append(perm, i)
			outShape = append(outShape, xt.shape[i])
		} else if keepDims {
			outShape = append(outShape, 1)
		}
	}
	for _, a := range axes {
		perm = append(perm, a)
		inner *= xt.shape[a]
	}
	if outShape == nil {
		outShape = []int{}
	}
	rows := b.transpose(xt, perm).data
	outer := numElements(outShape)

	dtype := xt.dtype
	var fn func(row []float64) float64
	switch op {
	case ReduceSum:
		if dtype == Bool {
			dtype = Int64
		}
		fn = floats.Sum
	case ReduceMean:
		dtype = floatResult(dtype)
		fn = func(row []float64) float64 { return floats.Sum(row) / float64(len(row)) }
	case ReduceMax, ReduceMin:
		if inner == 0 {
			exceptions.Panicf("%s: zero-size reduction has no identity", op)
		}
		fn = floats.Max
		if op == ReduceMin {
			fn = floats.Min
		}
	default:
		exceptions.Panicf("Reduce: unknown op %d", int(op))
	}

	out := make([]float64, outer)
	for i := range out {
		out[i] = fn(rows[i*inner : (i+1)*inner])
	}
	return b.wrap(dtype, outShape, out)
}

func (b *CPUBackend) Cast(x Tensor, dtype DType) Tensor {
	xt := b.cpu(x, "cast")
	countOp(b, "cast")
	return b.wrap(dtype, slices.Clone(xt.shape), slices.Clone(xt.data))
}
