package evaluator

import (
	"context"

	"github.com/23skdu/longbow-torchcompat/internal/device"
	"github.com/23skdu/longbow-torchcompat/internal/ops"
)

// RowNorms computes the vector norm of every valid row. When all rows have
// the same length they are stacked into one matrix and reduced along the
// last axis; ragged rows are reduced one at a time. Invalid rows get 0.
func (e *Evaluator) RowNorms(ctx context.Context, rows [][]float64, valid []bool, ord ops.Order) ([]float64, error) {
	_, span := tracer.Start(ctx, "RowNorms")
	defer span.End()

	norms := make([]float64, len(rows))
	var kept []int
	dim := -1
	ragged := false
	for i, row := range rows {
		if !valid[i] {
			continue
		}
		if dim >= 0 && len(row) != dim {
			ragged = true
		}
		dim = len(row)
		kept = append(kept, i)
	}
	if len(kept) == 0 {
		return norms, nil
	}

	if !ragged {
		data := make([]float64, 0, len(kept)*dim)
		for _, i := range kept {
			data = append(data, rows[i]...)
		}
		x := e.backend.NewTensor(device.Float32, []int{len(kept), dim}, data)
		out, err := ops.Norm(x, ord, []int{-1}, false)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for j, v := range out.Values() {
			norms[kept[j]] = v
		}
	} else {
		for _, i := range kept {
			x := e.backend.NewTensor(device.Float32, []int{len(rows[i])}, rows[i])
			out, err := ops.Norm(x, ord, []int{0}, false)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}
			norms[i] = out.Item()
		}
	}
	rowNormsTotal.Add(float64(len(kept)))
	return norms, nil
}
