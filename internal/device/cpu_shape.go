package device

import (
	"slices"

	"github.com/gomlx/exceptions"
)

func (b *CPUBackend) Reshape(x Tensor, dims ...int) Tensor {
	xt := b.cpu(x, "reshape")
	countOp(b, "reshape")

	shape := slices.Clone(dims)
	infer := -1
	known := 1
	for i, d := range shape {
		switch {
		case d == -1 && infer < 0:
			infer = i
		case d < 0:
			exceptions.Panicf("reshape: invalid dimensions %v", dims)
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || len(xt.data)%known != 0 {
			exceptions.Panicf("reshape: cannot reshape %v into %v", xt.shape, dims)
		}
		shape[infer] = len(xt.data) / known
	}
	if numElements(shape) != len(xt.data) {
		exceptions.Panicf("reshape: cannot reshape %v into %v", xt.shape, dims)
	}
	return &CPUTensor{backend: b, dtype: xt.dtype, shape: shape, data: slices.Clone(xt.data)}
}

func (b *CPUBackend) Transpose(x Tensor, perm ...int) Tensor {
	xt := b.cpu(x, "transpose")
	countOp(b, "transpose")

	rank := len(xt.shape)
	if len(perm) != rank {
		exceptions.Panicf("transpose: permutation %v does not match rank %d", perm, rank)
	}
	seen := make([]bool, rank)
	norm := make([]int, rank)
	for i, p := range perm {
		p = normalizeAxis(p, rank, "transpose")
		if seen[p] {
			exceptions.Panicf("transpose: %v is not a permutation", perm)
		}
		seen[p] = true
		norm[i] = p
	}
	return b.transpose(xt, norm)
}

// transpose materializes xt with its axes reordered by a validated permutation.
func (b *CPUBackend) transpose(xt *CPUTensor, perm []int) *CPUTensor {
	shape := make([]int, len(perm))
	own := rowMajorStrides(xt.shape)
	strides := make([]int, len(perm))
	for i, p := range perm {
		shape[i] = xt.shape[p]
		strides[i] = own[p]
	}
	out := make([]float64, len(xt.data))
	forEachIndex(shape, [][]int{strides}, func(pos int, offsets []int) {
		out[pos] = xt.data[offsets[0]]
	})
	return &CPUTensor{backend: b, dtype: xt.dtype, shape: shape, data: out}
}

func (b *CPUBackend) ExpandDims(x Tensor, axis int) Tensor {
	xt := b.cpu(x, "expand_dims")
	axis = normalizeAxis(axis, len(xt.shape)+1, "expand_dims")
	shape := slices.Insert(slices.Clone(xt.shape), axis, 1)
	return b.Reshape(xt, shape...)
}

func (b *CPUBackend) Squeeze(x Tensor, axis int) Tensor {
	xt := b.cpu(x, "squeeze")
	axis = normalizeAxis(axis, len(xt.shape), "squeeze")
	if xt.shape[axis] != 1 {
		exceptions.Panicf("squeeze: axis %d of shape %v is not 1", axis, xt.shape)
	}
	shape := slices.Delete(slices.Clone(xt.shape), axis, axis+1)
	return b.Reshape(xt, shape...)
}

// indexAt validates a gathered index against the dimension it addresses.
func indexAt(v float64, dim int, op string) int {
	idx := int(v)
	if idx < 0 || idx >= dim {
		exceptions.Panicf("%s: index %d out of bounds for dimension %d", op, idx, dim)
	}
	return idx
}

func (b *CPUBackend) GatherAxis(x Tensor, axis int, index Tensor) Tensor {
	xt := b.cpu(x, "gather_d")
	it := b.cpu(index, "gather_d")
	countOp(b, "gather_d")

	rank := len(xt.shape)
	if len(it.shape) != rank {
		exceptions.Panicf("gather_d: index rank %d does not match input rank %d", len(it.shape), rank)
	}
	axis = normalizeAxis(axis, rank, "gather_d")
	for i := range it.shape {
		if i != axis && it.shape[i] > xt.shape[i] {
			exceptions.Panicf("gather_d: index shape %v exceeds input shape %v at axis %d", it.shape, xt.shape, i)
		}
	}

	// Walk the index shape using the input's strides; the gathered axis
	// contributes index * stride instead of its position.
	own := rowMajorStrides(xt.shape)
	strides := slices.Clone(own)
	strides[axis] = 0
	out := make([]float64, len(it.data))
	forEachIndex(it.shape, [][]int{strides}, func(pos int, offsets []int) {
		idx := indexAt(it.data[pos], xt.shape[axis], "gather_d")
		out[pos] = xt.data[offsets[0]+idx*own[axis]]
	})
	return b.wrap(xt.dtype, slices.Clone(it.shape), out)
}

func (b *CPUBackend) Take(x Tensor, index Tensor) Tensor {
	xt := b.cpu(x, "gather")
	it := b.cpu(index, "gather")
	countOp(b, "gather")

	if len(xt.shape) == 0 {
		exceptions.Panicf("gather: cannot take rows of a scalar")
	}
	row := numElements(xt.shape[1:])
	out := make([]float64, 0, len(it.data)*row)
	for _, v := range it.data {
		idx := indexAt(v, xt.shape[0], "gather")
		out = append(out, xt.data[idx*row:(idx+1)*row]...)
	}
	shape := append(slices.Clone(it.shape), xt.shape[1:]...)
	return b.wrap(xt.dtype, shape, out)
}

func (b *CPUBackend) MaskedFill(x, mask Tensor, value float64) Tensor {
	xt := b.cpu(x, "masked_fill")
	mt := b.cpu(mask, "masked_fill")
	countOp(b, "masked_fill")

	shape, ok := broadcastShapes(xt.shape, mt.shape)
	if !ok || !slices.Equal(shape, xt.shape) {
		exceptions.Panicf("masked_fill: mask shape %v does not broadcast to %v", mt.shape, xt.shape)
	}
	out := slices.Clone(xt.data)
	forEachIndex(shape, [][]int{broadcastStrides(mt.shape, shape)}, func(pos int, offsets []int) {
		if mt.data[offsets[0]] != 0 {
			out[pos] = value
		}
	})
	return b.wrap(xt.dtype, slices.Clone(xt.shape), out)
}
