package ops

import (
	"github.com/23skdu/longbow-torchcompat/internal/cache"
	"github.com/23skdu/longbow-torchcompat/internal/device"
)

// BatchMatMul is a configured batched matmul primitive.
type BatchMatMul struct {
	TransposeX, TransposeY bool
}

func (p *BatchMatMul) Apply(x, y device.Tensor) device.Tensor {
	return x.Backend().BatchMatMul(x, y, p.TransposeX, p.TransposeY)
}

// ReduceSum is a configured sum reduction primitive.
type ReduceSum struct {
	KeepDims bool
}

func (p *ReduceSum) Apply(x device.Tensor, axes ...int) device.Tensor {
	return device.Sum(x, p.KeepDims, axes...)
}

var (
	batchMatMuls = cache.NewMapCache[BatchMatMul, *BatchMatMul]()
	reduceSums   = cache.NewMapCache[ReduceSum, *ReduceSum]()
)

func batchMatMulFor(transposeX, transposeY bool) *BatchMatMul {
	return batchMatMuls.GetOrCreate(BatchMatMul{transposeX, transposeY}, func(cfg BatchMatMul) *BatchMatMul {
		return &cfg
	})
}

func reduceSumFor(keepDims bool) *ReduceSum {
	return reduceSums.GetOrCreate(ReduceSum{keepDims}, func(cfg ReduceSum) *ReduceSum {
		return &cfg
	})
}
