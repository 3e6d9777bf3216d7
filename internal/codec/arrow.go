package codec

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-torchcompat/internal/device"
)

// VectorColumn is the column name looked up first for row vectors.
const VectorColumn = "vector"

// NormColumn is the name of the float64 column of row norms.
const NormColumn = "norm"

// NormSchema describes record batches holding row norms.
var NormSchema = arrow.NewSchema(
	[]arrow.Field{
		{Name: NormColumn, Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	},
	nil,
)

// VectorArray returns the column named VectorColumn, or the first column
// when there is none.
func VectorArray(rec arrow.RecordBatch) (arrow.Array, error) {
	if rec.NumCols() == 0 {
		return nil, fmt.Errorf("record has no columns")
	}
	if indices := rec.Schema().FieldIndices(VectorColumn); len(indices) > 0 {
		return rec.Column(indices[0]), nil
	}
	return rec.Column(0), nil
}

// Rows extracts every row of a FixedSizeList or List column of float32 or
// float64 values. Null rows are returned as nil with valid[i] false.
func Rows(col arrow.Array) (rows [][]float64, valid []bool, err error) {
	var values arrow.Array
	var offsets func(i int) (int64, int64)
	switch c := col.(type) {
	case *array.FixedSizeList:
		values = c.ListValues()
		offsets = c.ValueOffsets
	case *array.List:
		values = c.ListValues()
		offsets = c.ValueOffsets
	default:
		return nil, nil, fmt.Errorf("unsupported vector column type %s", col.DataType())
	}

	var at func(i int) float64
	switch v := values.(type) {
	case *array.Float32:
		at = func(i int) float64 { return float64(v.Value(i)) }
	case *array.Float64:
		at = v.Value
	default:
		return nil, nil, fmt.Errorf("unsupported vector element type %s", values.DataType())
	}

	rows = make([][]float64, col.Len())
	valid = make([]bool, col.Len())
	for i := range rows {
		if col.IsNull(i) {
			continue
		}
		start, end := offsets(i)
		row := make([]float64, 0, end-start)
		for j := start; j < end; j++ {
			row = append(row, at(int(j)))
		}
		rows[i] = row
		valid[i] = true
	}
	return rows, valid, nil
}

// MatrixRecord stores a rank-2 float tensor as one FixedSizeList<float32>
// column named VectorColumn, one list per row.
func MatrixRecord(mem memory.Allocator, t device.Tensor) (arrow.RecordBatch, error) {
	if t.Rank() != 2 {
		return nil, fmt.Errorf("expected a matrix, got shape %v", t.Shape())
	}
	shape := t.Shape()
	rows, dim := shape[0], shape[1]

	listType := arrow.FixedSizeListOf(int32(dim), arrow.PrimitiveTypes.Float32)
	schema := arrow.NewSchema([]arrow.Field{{Name: VectorColumn, Type: listType}}, nil)

	builder := array.NewFixedSizeListBuilder(mem, int32(dim), arrow.PrimitiveTypes.Float32)
	defer builder.Release()
	valueBuilder := builder.ValueBuilder().(*array.Float32Builder)

	data := t.Values()
	for i := 0; i < rows; i++ {
		builder.Append(true)
		for _, v := range data[i*dim : (i+1)*dim] {
			valueBuilder.Append(float32(v))
		}
	}

	arr := builder.NewArray()
	defer arr.Release()
	return array.NewRecordBatch(schema, []arrow.Array{arr}, int64(rows)), nil
}

// NormRecord builds a NormSchema batch; rows with valid[i] false are null.
func NormRecord(mem memory.Allocator, norms []float64, valid []bool) arrow.RecordBatch {
	builder := array.NewFloat64Builder(mem)
	defer builder.Release()
	builder.AppendValues(norms, valid)

	arr := builder.NewArray()
	defer arr.Release()
	return array.NewRecordBatch(NormSchema, []arrow.Array{arr}, int64(len(norms)))
}

// Norms reads the NormColumn of rec. Null entries are reported as NaN.
func Norms(rec arrow.RecordBatch) ([]float64, error) {
	indices := rec.Schema().FieldIndices(NormColumn)
	if len(indices) == 0 {
		return nil, fmt.Errorf("record has no %q column", NormColumn)
	}
	col, ok := rec.Column(indices[0]).(*array.Float64)
	if !ok {
		return nil, fmt.Errorf("column %q is %s, not float64", NormColumn, rec.Column(indices[0]).DataType())
	}
	out := make([]float64, col.Len())
	for i := range out {
		if col.IsNull(i) {
			out[i] = math.NaN()
			continue
		}
		out[i] = col.Value(i)
	}
	return out, nil
}
