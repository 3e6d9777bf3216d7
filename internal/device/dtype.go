package device

import (
	"fmt"
	"math"

	"github.com/x448/float16"
)

// DType is the element type of a Tensor. The order of the constants is the
// promotion order: the result of mixing two dtypes is the larger one.
type DType int

const (
	Bool DType = iota
	Int32
	Int64
	Float16
	Float32
	Float64
)

var dtypeNames = [...]string{
	Bool:    "bool",
	Int32:   "int32",
	Int64:   "int64",
	Float16: "float16",
	Float32: "float32",
	Float64: "float64",
}

func (d DType) String() string {
	if d < 0 || int(d) >= len(dtypeNames) {
		return fmt.Sprintf("DType(%d)", int(d))
	}
	return dtypeNames[d]
}

// IsFloat reports whether d is a floating point type.
func (d DType) IsFloat() bool {
	return d == Float16 || d == Float32 || d == Float64
}

// ParseDType maps a dtype name ("float32", "int64", ...) to its DType.
func ParseDType(s string) (DType, error) {
	for i, name := range dtypeNames {
		if name == s {
			return DType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown dtype %q", s)
}

// Promote returns the dtype two operands are computed in.
func Promote(a, b DType) DType {
	if a > b {
		return a
	}
	return b
}

// Round converts v to the nearest value representable in dtype d.
// Integers truncate toward zero and booleans are 0 or 1.
func (d DType) Round(v float64) float64 {
	switch d {
	case Float32:
		return float64(float32(v))
	case Float16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case Int32:
		if math.IsNaN(v) {
			return 0
		}
		// Out-of-range values saturate.
		return math.Max(math.MinInt32, math.Min(math.MaxInt32, math.Trunc(v)))
	case Int64:
		if math.IsNaN(v) {
			return 0
		}
		return math.Trunc(v)
	case Bool:
		if v != 0 {
			return 1
		}
		return 0
	default:
		return v
	}
}

// floatResult returns the dtype of an operation that always produces
// floating point values, such as exp or true division.
func floatResult(d DType) DType {
	if d.IsFloat() {
		return d
	}
	return Float32
}
