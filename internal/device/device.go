package device

// Tensor is an immutable n-dimensional array owned by a Backend.
// Every Backend operation returns a new Tensor and leaves its inputs untouched.
type Tensor interface {
	// Shape returns a copy of the dimensions. A scalar has an empty shape.
	Shape() []int

	// DType returns the element type.
	DType() DType

	// Rank returns the number of dimensions.
	Rank() int

	// Size returns the number of elements.
	Size() int

	// Values copies the elements to a Go slice in row-major order.
	Values() []float64

	// Item returns the only element of a tensor with Size() == 1.
	Item() float64

	// Backend returns the backend that created the tensor.
	Backend() Backend
}

// UnaryOp enumerates the elementwise single-operand primitives.
type UnaryOp int

const (
	OpAbs UnaryOp = iota
	OpNeg
	OpExp
	OpLog
	OpSqrt
	OpReciprocal
	OpConj
	OpIsNaN
)

// BinaryOp enumerates the broadcasting two-operand primitives.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpPow
	OpMaximum
	OpMinimum
	OpEqual
	OpNotEqual
)

// ReduceOp enumerates the axis reductions.
type ReduceOp int

const (
	ReduceSum ReduceOp = iota
	ReduceMean
	ReduceMax
	ReduceMin
)

// Backend creates tensors and implements the primitive operation set.
//
// Invalid arguments (incompatible broadcast shapes, out of range axes or
// indices) are reported by panicking with an error, following the
// github.com/gomlx/exceptions convention. Callers that want an error value
// convert with exceptions.TryCatch[error].
type Backend interface {
	Name() string

	// NewTensor copies data (rounded to dtype) into a new tensor. A nil data
	// slice yields zeros.
	NewTensor(dtype DType, shape []int, data []float64) Tensor

	// Full returns a tensor with every element set to v.
	Full(dtype DType, shape []int, v float64) Tensor

	Unary(op UnaryOp, x Tensor) Tensor
	Binary(op BinaryOp, a, b Tensor) Tensor

	// Reduce collapses the given axes (all of them when axes is empty).
	Reduce(op ReduceOp, x Tensor, keepDims bool, axes ...int) Tensor

	// Reshape accepts a single -1 dimension to be inferred.
	Reshape(x Tensor, dims ...int) Tensor
	Transpose(x Tensor, perm ...int) Tensor
	ExpandDims(x Tensor, axis int) Tensor
	Squeeze(x Tensor, axis int) Tensor

	// GatherAxis picks x values along axis using index, which must have the
	// same rank as x. The result has the shape of index.
	GatherAxis(x Tensor, axis int, index Tensor) Tensor

	// Take gathers rows of x along axis 0. The result shape is
	// index.Shape() followed by x.Shape()[1:].
	Take(x Tensor, index Tensor) Tensor

	// MaskedFill returns x with value written wherever mask (broadcast to
	// x's shape) is true.
	MaskedFill(x, mask Tensor, value float64) Tensor

	// MatMul multiplies two matrices.
	MatMul(a, b Tensor) Tensor

	// BatchMatMul multiplies the trailing matrices of x and y, whose leading
	// batch dimensions must match.
	BatchMatMul(x, y Tensor, transposeX, transposeY bool) Tensor

	// SingularValues returns the singular values, in descending order, of
	// the trailing matrices of x. Factors are not computed.
	SingularValues(x Tensor) Tensor

	Softmax(x Tensor, axis int) Tensor
	LogSoftmax(x Tensor, axis int) Tensor

	Cast(x Tensor, dtype DType) Tensor
}

var unaryNames = [...]string{"abs", "neg", "exp", "log", "sqrt", "reciprocal", "conj", "isnan"}

func (op UnaryOp) String() string { return unaryNames[op] }

var binaryNames = [...]string{"add", "sub", "mul", "div", "pow", "maximum", "minimum", "equal", "not_equal"}

func (op BinaryOp) String() string { return binaryNames[op] }

// IsComparison reports whether op produces a Bool tensor.
func (op BinaryOp) IsComparison() bool { return op == OpEqual || op == OpNotEqual }

var reduceNames = [...]string{"reduce_sum", "reduce_mean", "reduce_max", "reduce_min"}

func (op ReduceOp) String() string { return reduceNames[op] }
