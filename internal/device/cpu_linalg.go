package device

import (
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// matmulInto computes a·b (optionally transposed) with gonum, which routes
// through whatever blas64 implementation is registered.
func matmulInto(a, b []float64, ar, ac, br, bc int, transA, transB bool) ([]float64, int, int) {
	var ma, mb mat.Matrix
	ma = mat.NewDense(ar, ac, a)
	mb = mat.NewDense(br, bc, b)
	if transA {
		ma = ma.T()
	}
	if transB {
		mb = mb.T()
	}
	r, k1 := ma.Dims()
	k2, c := mb.Dims()
	if k1 != k2 {
		exceptions.Panicf("matmul: dimension mismatch, %dx%d times %dx%d", r, k1, k2, c)
	}
	out := mat.NewDense(r, c, nil)
	out.Mul(ma, mb)
	return out.RawMatrix().Data, r, c
}

func (b *CPUBackend) MatMul(x, y Tensor) Tensor {
	xt := b.cpu(x, "matmul")
	yt := b.cpu(y, "matmul")
	countOp(b, "matmul")

	if len(xt.shape) != 2 || len(yt.shape) != 2 {
		exceptions.Panicf("matmul: expected matrices, got shapes %v and %v", xt.shape, yt.shape)
	}
	r, k := xt.shape[0], xt.shape[1]
	k2, c := yt.shape[0], yt.shape[1]
	if k != k2 {
		exceptions.Panicf("matmul: dimension mismatch, %v times %v", xt.shape, yt.shape)
	}
	dtype := Promote(xt.dtype, yt.dtype)
	if r == 0 || c == 0 || k == 0 {
		// gonum rejects zero-length dimensions; the product is all zeros.
		return b.wrap(dtype, []int{r, c}, make([]float64, r*c))
	}
	data, _, _ := matmulInto(slices.Clone(xt.data), slices.Clone(yt.data), r, k, k2, c, false, false)
	return b.wrap(dtype, []int{r, c}, data)
}

func (b *CPUBackend) BatchMatMul(x, y Tensor, transposeX, transposeY bool) Tensor {
	xt := b.cpu(x, "batch_matmul")
	yt := b.cpu(y, "batch_matmul")
	countOp(b, "batch_matmul")

	rank := len(xt.shape)
	if rank < 2 || len(yt.shape) != rank || !slices.Equal(xt.shape[:rank-2], yt.shape[:rank-2]) {
		exceptions.Panicf("batch_matmul: incompatible shapes %v and %v", xt.shape, yt.shape)
	}
	xr, xc := xt.shape[rank-2], xt.shape[rank-1]
	yr, yc := yt.shape[rank-2], yt.shape[rank-1]
	r, k := xr, xc
	if transposeX {
		r, k = xc, xr
	}
	k2, c := yr, yc
	if transposeY {
		k2, c = yc, yr
	}
	if k != k2 {
		exceptions.Panicf("batch_matmul: dimension mismatch, %v (transpose=%t) times %v (transpose=%t)",
			xt.shape, transposeX, yt.shape, transposeY)
	}

	batch := numElements(xt.shape[:rank-2])
	shape := append(slices.Clone(xt.shape[:rank-2]), r, c)
	out := make([]float64, 0, batch*r*c)
	if r*c*k == 0 {
		out = out[:batch*r*c]
	} else {
		for i := 0; i < batch; i++ {
			a := slices.Clone(xt.data[i*xr*xc : (i+1)*xr*xc])
			m := slices.Clone(yt.data[i*yr*yc : (i+1)*yr*yc])
			data, _, _ := matmulInto(a, m, xr, xc, yr, yc, transposeX, transposeY)
			out = append(out, data...)
		}
	}
	return b.wrap(Promote(xt.dtype, yt.dtype), shape, out)
}

func (b *CPUBackend) SingularValues(x Tensor) Tensor {
	xt := b.cpu(x, "svd")
	countOp(b, "svd")

	rank := len(xt.shape)
	if rank < 2 {
		exceptions.Panicf("svd: expected at least 2 dimensions, got shape %v", xt.shape)
	}
	rows, cols := xt.shape[rank-2], xt.shape[rank-1]
	k := min(rows, cols)
	batch := numElements(xt.shape[:rank-2])
	shape := append(slices.Clone(xt.shape[:rank-2]), k)

	out := make([]float64, 0, batch*k)
	for i := 0; i < batch && k > 0; i++ {
		m := mat.NewDense(rows, cols, slices.Clone(xt.data[i*rows*cols:(i+1)*rows*cols]))
		var svd mat.SVD
		if ok := svd.Factorize(m, mat.SVDNone); !ok {
			exceptions.Panicf("svd: factorization of matrix %d failed", i)
		}
		out = append(out, svd.Values(nil)...)
	}
	return b.wrap(floatResult(xt.dtype), shape, out)
}

// softmaxRows applies fn to every lane of x along axis and returns the result
// in x's layout.
func (b *CPUBackend) softmaxRows(xt *CPUTensor, axis int, op string, fn func(dst, row []float64)) *CPUTensor {
	rank := len(xt.shape)
	if rank == 0 {
		exceptions.Panicf("%s: scalar input has no axis", op)
	}
	axis = normalizeAxis(axis, rank, op)
	perm := make([]int, 0, rank)
	for i := 0; i < rank; i++ {
		if i != axis {
			perm = append(perm, i)
		}
	}
	perm = append(perm, axis)
	moved := b.transpose(xt, perm)

	inner := xt.shape[axis]
	out := make([]float64, len(moved.data))
	for start := 0; start+inner <= len(out) && inner > 0; start += inner {
		fn(out[start:start+inner], moved.data[start:start+inner])
	}
	moved = b.wrap(floatResult(xt.dtype), moved.shape, out)

	inverse := make([]int, rank)
	for i, p := range perm {
		inverse[p] = i
	}
	return b.transpose(moved, inverse)
}

func (b *CPUBackend) Softmax(x Tensor, axis int) Tensor {
	xt := b.cpu(x, "softmax")
	countOp(b, "softmax")
	return b.softmaxRows(xt, axis, "softmax", func(dst, row []float64) {
		lse := floats.LogSumExp(row)
		for i, v := range row {
			dst[i] = math.Exp(v - lse)
		}
	})
}

func (b *CPUBackend) LogSoftmax(x Tensor, axis int) Tensor {
	xt := b.cpu(x, "log_softmax")
	countOp(b, "log_softmax")
	return b.softmaxRows(xt, axis, "log_softmax", func(dst, row []float64) {
		lse := floats.LogSumExp(row)
		for i, v := range row {
			dst[i] = v - lse
		}
	})
}
