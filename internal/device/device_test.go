package device

import (
	"errors"
	"math"
	"slices"
	"testing"
)

func checkValues(t *testing.T, name string, got Tensor, want []float64, tol float64) {
	t.Helper()
	data := got.Values()
	if len(data) != len(want) {
		t.Fatalf("%s: got %d values, want %d", name, len(data), len(want))
	}
	for i, v := range want {
		if math.Abs(data[i]-v) > tol {
			t.Errorf("%s mismatch at %d: got %f, want %f", name, i, data[i], v)
		}
	}
}

func checkShape(t *testing.T, name string, got Tensor, want ...int) {
	t.Helper()
	if !slices.Equal(got.Shape(), want) {
		t.Errorf("%s: shape %v, want %v", name, got.Shape(), want)
	}
}

func TestCPUBackend_TensorOps(t *testing.T) {
	backend := NewCPUBackend()

	t.Run("Add", func(t *testing.T) {
		a := backend.NewTensor(Float32, []int{2, 2}, []float64{1, 2, 3, 4})
		b := backend.NewTensor(Float32, []int{2, 2}, []float64{10, 20, 30, 40})

		c := Add(a, b)

		checkValues(t, "Add", c, []float64{11, 22, 33, 44}, 1e-6)
		checkValues(t, "Add leaves operands", a, []float64{1, 2, 3, 4}, 0)
	})

	t.Run("Broadcast", func(t *testing.T) {
		a := backend.NewTensor(Float32, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
		row := backend.NewTensor(Float32, []int{3}, []float64{10, 20, 30})
		col := backend.NewTensor(Float32, []int{2, 1}, []float64{100, 200})

		checkValues(t, "row", Add(a, row), []float64{11, 22, 33, 14, 25, 36}, 1e-6)
		checkValues(t, "col", Mul(a, col), []float64{100, 200, 300, 800, 1000, 1200}, 1e-6)
		checkShape(t, "outer", Add(row, col), 2, 3)
	})

	t.Run("MatMul", func(t *testing.T) {
		// A: 2x3, B: 3x2 -> C: 2x2
		a := backend.NewTensor(Float32, []int{2, 3}, []float64{
			1, 2, 3,
			4, 5, 6,
		})
		b := backend.NewTensor(Float32, []int{3, 2}, []float64{
			7, 8,
			9, 10,
			11, 12,
		})

		c := MatMul(a, b)

		checkShape(t, "MatMul", c, 2, 2)
		checkValues(t, "MatMul", c, []float64{58, 64, 139, 154}, 1e-6)
	})

	t.Run("Scalars", func(t *testing.T) {
		a := backend.NewTensor(Float32, []int{2, 2}, []float64{1, 2, 3, 4})

		checkValues(t, "MulScalar", MulScalar(a, 2.0), []float64{2, 4, 6, 8}, 1e-6)
		checkValues(t, "ScalarSub", ScalarSub(1, a), []float64{0, -1, -2, -3}, 1e-6)
		checkValues(t, "MaximumScalar", MaximumScalar(a, 2.5), []float64{2.5, 2.5, 3, 4}, 1e-6)
	})

	t.Run("Comparisons", func(t *testing.T) {
		a := backend.NewTensor(Int64, []int{3}, []float64{1, -100, 3})

		eq := EqualScalar(a, -100)
		if eq.DType() != Bool {
			t.Errorf("Equal dtype %v, want bool", eq.DType())
		}
		checkValues(t, "Equal", eq, []float64{0, 1, 0}, 0)
		checkValues(t, "NotEqual", NotEqualScalar(a, -100), []float64{1, 0, 1}, 0)
	})

	t.Run("Unary", func(t *testing.T) {
		a := backend.NewTensor(Int32, []int{3}, []float64{1, 4, 9})

		root := Sqrt(a)
		if root.DType() != Float32 {
			t.Errorf("Sqrt of int32 has dtype %v, want float32", root.DType())
		}
		checkValues(t, "Sqrt", root, []float64{1, 2, 3}, 1e-6)
		checkValues(t, "Abs", Abs(Neg(a)), []float64{1, 4, 9}, 0)
		checkValues(t, "Reciprocal", Reciprocal(a), []float64{1, 0.25, 1.0 / 9}, 1e-6)
	})
}

func TestCPUBackend_Reduce(t *testing.T) {
	backend := NewCPUBackend()
	x := backend.NewTensor(Float64, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	checkValues(t, "sum all", ReduceAllSum(x), []float64{21}, 0)
	checkShape(t, "sum all", ReduceAllSum(x))
	checkValues(t, "mean all", ReduceAllMean(x), []float64{3.5}, 0)

	rows := Sum(x, false, 1)
	checkShape(t, "sum rows", rows, 2)
	checkValues(t, "sum rows", rows, []float64{6, 15}, 0)

	cols := Sum(x, true, 0)
	checkShape(t, "sum cols keepdims", cols, 1, 3)
	checkValues(t, "sum cols keepdims", cols, []float64{5, 7, 9}, 0)

	checkValues(t, "max", Max(x, false, -1), []float64{3, 6}, 0)
	checkValues(t, "min", Min(x, false, 0), []float64{1, 2, 3}, 0)

	mask := backend.NewTensor(Bool, []int{3}, []float64{1, 0, 1})
	count := ReduceAllSum(mask)
	if count.DType() != Int64 || count.Item() != 2 {
		t.Errorf("sum of bools = %v %v, want int64 2", count.DType(), count.Item())
	}

	_, err := Catch(func() (Tensor, error) { return Sum(x, false, 0, -2), nil })
	if err == nil {
		t.Error("duplicate axes should fail")
	}
}

func TestCPUBackend_Shapes(t *testing.T) {
	backend := NewCPUBackend()
	x := backend.NewTensor(Float32, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	r := Reshape(x, 3, -1)
	checkShape(t, "Reshape", r, 3, 2)
	checkValues(t, "Reshape", r, []float64{1, 2, 3, 4, 5, 6}, 0)

	tr := Transpose(x, 1, 0)
	checkShape(t, "Transpose", tr, 3, 2)
	checkValues(t, "Transpose", tr, []float64{1, 4, 2, 5, 3, 6}, 0)

	e := ExpandDims(x, -1)
	checkShape(t, "ExpandDims", e, 2, 3, 1)
	checkShape(t, "Squeeze", Squeeze(e, 2), 2, 3)
	checkShape(t, "Ravel", Ravel(x), 6)

	if _, err := Catch(func() (Tensor, error) { return Reshape(x, 4, -1), nil }); err == nil {
		t.Error("reshape of 6 elements into (4, -1) should fail")
	}
	if _, err := Catch(func() (Tensor, error) { return Squeeze(x, 0), nil }); err == nil {
		t.Error("squeeze of a non-unit axis should fail")
	}
}

func TestCPUBackend_Gather(t *testing.T) {
	backend := NewCPUBackend()
	x := backend.NewTensor(Float32, []int{3, 2}, []float64{
		-1, -2,
		-3, -4,
		-5, -6,
	})

	t.Run("GatherAxis", func(t *testing.T) {
		index := backend.NewTensor(Int64, []int{3, 1}, []float64{0, 1, 1})
		g := GatherAxis(x, 1, index)
		checkShape(t, "GatherAxis", g, 3, 1)
		checkValues(t, "GatherAxis", g, []float64{-1, -4, -6}, 0)

		bad := backend.NewTensor(Int64, []int{3, 1}, []float64{0, 2, 1})
		if _, err := Catch(func() (Tensor, error) { return GatherAxis(x, 1, bad), nil }); err == nil {
			t.Error("out of range index should fail")
		}
	})

	t.Run("Take", func(t *testing.T) {
		weights := backend.NewTensor(Float32, []int{2}, []float64{2, 0.5})
		index := backend.NewTensor(Int64, []int{3, 1}, []float64{0, 1, 1})
		w := Take(weights, index)
		checkShape(t, "Take", w, 3, 1)
		checkValues(t, "Take", w, []float64{2, 0.5, 0.5}, 0)

		rows := Take(x, backend.NewTensor(Int64, []int{2}, []float64{2, 0}))
		checkShape(t, "Take rows", rows, 2, 2)
		checkValues(t, "Take rows", rows, []float64{-5, -6, -1, -2}, 0)
	})

	t.Run("MaskedFill", func(t *testing.T) {
		mask := backend.NewTensor(Bool, []int{3, 1}, []float64{0, 1, 0})
		m := MaskedFill(x, mask, 0)
		checkValues(t, "MaskedFill", m, []float64{-1, -2, 0, 0, -5, -6}, 0)
	})
}

func TestCPUBackend_Linalg(t *testing.T) {
	backend := NewCPUBackend()

	t.Run("SingularValues", func(t *testing.T) {
		x := backend.NewTensor(Float64, []int{2, 2, 2}, []float64{
			3, 0, 0, 4,
			1, -2, 3, 4,
		})
		s := SingularValues(x)
		checkShape(t, "SingularValues", s, 2, 2)
		checkValues(t, "SingularValues", s, []float64{
			4, 3,
			math.Sqrt(15 + math.Sqrt(125)), math.Sqrt(15 - math.Sqrt(125)),
		}, 1e-9)
	})

	t.Run("BatchMatMul", func(t *testing.T) {
		x := backend.NewTensor(Float32, []int{1, 2, 3}, []float64{1, 2, 3, 4, 5, 6})
		got := backend.BatchMatMul(x, x, false, true)
		checkShape(t, "BatchMatMul", got, 1, 2, 2)
		checkValues(t, "BatchMatMul", got, []float64{14, 32, 32, 77}, 1e-5)
	})

	t.Run("Softmax", func(t *testing.T) {
		x := backend.NewTensor(Float64, []int{2, 2}, []float64{0, 0, 1000, 0})
		s := Softmax(x, -1)
		checkValues(t, "Softmax", s, []float64{0.5, 0.5, 1, 0}, 1e-12)

		ls := LogSoftmax(x, -1)
		checkValues(t, "LogSoftmax", ls, []float64{-math.Ln2, -math.Ln2, 0, -1000}, 1e-9)
	})
}

func TestDType_Round(t *testing.T) {
	backend := NewCPUBackend()

	half := backend.NewTensor(Float16, []int{2}, []float64{1.0 / 3, 65504})
	checkValues(t, "float16", half, []float64{0.333251953125, 65504}, 0)

	ints := backend.NewTensor(Int32, []int{3}, []float64{2.7, -2.7, math.NaN()})
	checkValues(t, "int32", ints, []float64{2, -2, 0}, 0)

	wide := backend.NewTensor(Int32, []int{2}, []float64{1e10, -1e10})
	checkValues(t, "int32 saturation", wide, []float64{math.MaxInt32, math.MinInt32}, 0)

	if got := Promote(Int64, Float16); got != Float16 {
		t.Errorf("Promote(int64, float16) = %v", got)
	}
	if d, err := ParseDType("float32"); err != nil || d != Float32 {
		t.Errorf("ParseDType(float32) = %v, %v", d, err)
	}
	if _, err := ParseDType("complex64"); err == nil {
		t.Error("ParseDType should reject complex64")
	}

	div := Div(ints, ints)
	if div.DType() != Float32 {
		t.Errorf("int division has dtype %v, want float32", div.DType())
	}
}

func TestCatch(t *testing.T) {
	backend := NewCPUBackend()
	a := backend.NewTensor(Float32, []int{2}, nil)
	b := backend.NewTensor(Float32, []int{3}, nil)

	got, err := Catch(func() (Tensor, error) { return Add(a, b), nil })
	if err == nil || got != nil {
		t.Fatalf("Catch returned %v, %v; want an error", got, err)
	}

	sentinel := errors.New("sentinel")
	if _, err := Catch(func() (Tensor, error) { return nil, sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("Catch should pass returned errors through, got %v", err)
	}
}
