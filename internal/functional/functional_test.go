package functional

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-torchcompat/internal/device"
)

var backend = device.NewCPUBackend()

func tensorOf(dtype device.DType, shape []int, data ...float64) device.Tensor {
	return backend.NewTensor(dtype, shape, data)
}

func assertValues(t *testing.T, want []float64, got device.Tensor, delta float64) {
	t.Helper()
	values := got.Values()
	require.Len(t, values, len(want))
	for i := range want {
		assert.InDelta(t, want[i], values[i], delta, "element %d", i)
	}
}

// logProbs is a (3, 2) tensor of log-probabilities with easy to read negatives.
func logProbs() device.Tensor {
	return tensorOf(device.Float32, []int{3, 2},
		-1, -2,
		-3, -4,
		-5, -6,
	)
}

func TestParseReduction(t *testing.T) {
	for _, r := range []Reduction{ReductionNone, ReductionMean, ReductionSum} {
		got, err := ParseReduction(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	_, err := ParseReduction("avg")
	assert.ErrorIs(t, err, ErrInvalidReduction)
	assert.Equal(t, "invalid", Reduction(7).String())
}

func TestSoftmax(t *testing.T) {
	x := tensorOf(device.Float32, []int{2, 3}, 1, 2, 3, 1, 1, 1)

	probs, err := Softmax(x, -1)
	require.NoError(t, err)
	values := probs.Values()
	assert.InDelta(t, 1.0, values[0]+values[1]+values[2], 1e-6)
	assert.Greater(t, values[2], values[1])
	for _, v := range values[3:] {
		assert.InDelta(t, 1.0/3, v, 1e-6)
	}

	logs, err := LogSoftmax(x, -1)
	require.NoError(t, err)
	for i, v := range logs.Values() {
		assert.InDelta(t, math.Log(values[i]), v, 1e-5)
	}

	_, err = Softmax(x, 2)
	assert.Error(t, err)
}

func TestKLDiv(t *testing.T) {
	input := tensorOf(device.Float64, []int{2}, math.Log(0.5), math.Log(0.5))
	target := tensorOf(device.Float64, []int{2}, 0.25, 0.75)
	want := 0.25*(math.Log(0.25)-math.Log(0.5)) + 0.75*(math.Log(0.75)-math.Log(0.5))

	t.Run("sum", func(t *testing.T) {
		got, err := KLDiv(input, target, ReductionSum, false)
		require.NoError(t, err)
		assert.InDelta(t, want, got.Item(), 1e-12)
	})

	t.Run("mean", func(t *testing.T) {
		got, err := KLDiv(input, target, ReductionMean, false)
		require.NoError(t, err)
		assert.InDelta(t, want/2, got.Item(), 1e-12)
	})

	t.Run("log target matches probability target", func(t *testing.T) {
		logTarget := tensorOf(device.Float64, []int{2}, math.Log(0.25), math.Log(0.75))
		got, err := KLDiv(input, logTarget, ReductionNone, true)
		require.NoError(t, err)
		plain, err := KLDiv(input, target, ReductionNone, false)
		require.NoError(t, err)
		assertValues(t, plain.Values(), got, 1e-12)
	})
}

func TestCrossEntropy(t *testing.T) {
	input := tensorOf(device.Float32, []int{1, 3}, 2, 1, 0)
	target := tensorOf(device.Int64, []int{1}, 0)
	logSumExp := math.Log(math.Exp(2) + math.Exp(1) + 1)

	t.Run("equals negative log softmax of the target class", func(t *testing.T) {
		got, err := CrossEntropy(input, target, DefaultCrossEntropyOptions())
		require.NoError(t, err)
		assert.Equal(t, []int{}, got.Shape())
		assert.InDelta(t, logSumExp-2, got.Item(), 1e-5)
	})

	t.Run("label smoothing blends in the uniform loss", func(t *testing.T) {
		opts := DefaultCrossEntropyOptions()
		opts.LabelSmoothing = 0.3

		got, err := CrossEntropy(input, target, opts)
		require.NoError(t, err)
		nll := logSumExp - 2
		smooth := 3*logSumExp - 3
		assert.InDelta(t, 0.7*nll+0.1*smooth, got.Item(), 1e-5)
	})

	t.Run("ignores -100 targets by default", func(t *testing.T) {
		input := tensorOf(device.Float32, []int{2, 3}, 2, 1, 0, 5, 5, 5)
		target := tensorOf(device.Int64, []int{2}, 0, -100)

		got, err := CrossEntropy(input, target, DefaultCrossEntropyOptions())
		require.NoError(t, err)
		assert.InDelta(t, logSumExp-2, got.Item(), 1e-5)
	})

	t.Run("rejects unbatched input", func(t *testing.T) {
		_, err := CrossEntropy(tensorOf(device.Float32, []int{3}, 2, 1, 0), target, DefaultCrossEntropyOptions())
		assert.ErrorIs(t, err, ErrInvalidShape)
	})
}

func TestNLLLoss(t *testing.T) {
	target := tensorOf(device.Int64, []int{3}, 0, 1, 1)

	t.Run("reductions", func(t *testing.T) {
		opts := DefaultNLLOptions()
		got, err := NLLLoss(logProbs(), target, opts)
		require.NoError(t, err)
		assert.InDelta(t, 11.0/3, got.Item(), 1e-5)

		opts.Reduction = ReductionSum
		got, err = NLLLoss(logProbs(), target, opts)
		require.NoError(t, err)
		assert.InDelta(t, 11.0, got.Item(), 1e-5)

		opts.Reduction = ReductionNone
		got, err = NLLLoss(logProbs(), target, opts)
		require.NoError(t, err)
		assert.Equal(t, []int{3}, got.Shape())
		assertValues(t, []float64{1, 4, 6}, got, 1e-6)
	})

	t.Run("class weights scale the loss and the mean denominator", func(t *testing.T) {
		opts := DefaultNLLOptions()
		opts.Weight = tensorOf(device.Float32, []int{2}, 2, 0.5)

		got, err := NLLLoss(logProbs(), target, opts)
		require.NoError(t, err)
		assert.InDelta(t, 7.0/3, got.Item(), 1e-5)

		opts.Reduction = ReductionNone
		got, err = NLLLoss(logProbs(), target, opts)
		require.NoError(t, err)
		assertValues(t, []float64{2, 2, 3}, got, 1e-6)
	})

	t.Run("ignored entries leave numerator and denominator", func(t *testing.T) {
		ignoring := tensorOf(device.Int64, []int{3}, 0, 1, -100)
		opts := DefaultNLLOptions()
		opts.IgnoreIndex = IgnoreIndex(-100)

		got, err := NLLLoss(logProbs(), ignoring, opts)
		require.NoError(t, err)
		assert.InDelta(t, 2.5, got.Item(), 1e-6)

		opts.Reduction = ReductionSum
		got, err = NLLLoss(logProbs(), ignoring, opts)
		require.NoError(t, err)
		assert.InDelta(t, 5.0, got.Item(), 1e-6)

		opts.Reduction = ReductionNone
		got, err = NLLLoss(logProbs(), ignoring, opts)
		require.NoError(t, err)
		assert.Equal(t, []int{3}, got.Shape())
		assertValues(t, []float64{1, 4, 0}, got, 1e-6)
	})

	t.Run("ignore index inside the class range", func(t *testing.T) {
		opts := DefaultNLLOptions()
		opts.IgnoreIndex = IgnoreIndex(1)
		opts.Weight = tensorOf(device.Float32, []int{2}, 2, 0.5)

		got, err := NLLLoss(logProbs(), target, opts)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got.Item(), 1e-6)
	})

	t.Run("everything ignored gives NaN mean", func(t *testing.T) {
		opts := DefaultNLLOptions()
		opts.IgnoreIndex = IgnoreIndex(-100)

		got, err := NLLLoss(logProbs(), tensorOf(device.Int64, []int{3}, -100, -100, -100), opts)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(got.Item()))
	})

	t.Run("image input keeps the spatial shape", func(t *testing.T) {
		input := tensorOf(device.Float32, []int{1, 2, 1, 2}, -1, -2, -3, -4)
		target := tensorOf(device.Int64, []int{1, 1, 2}, 0, 1)
		opts := NLLOptions{Reduction: ReductionNone}

		got, err := NLLLoss(input, target, opts)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 1, 2}, got.Shape())
		assertValues(t, []float64{1, 4}, got, 1e-6)
	})

	t.Run("rank 3 input is folded and restored", func(t *testing.T) {
		input := tensorOf(device.Float32, []int{1, 2, 2}, -1, -2, -3, -4)
		target := tensorOf(device.Int64, []int{1, 2}, 1, 0)

		got, err := NLLLoss(input, target, NLLOptions{Reduction: ReductionNone})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, got.Shape())
		assertValues(t, []float64{3, 2}, got, 1e-6)

		mean, err := NLLLoss(input, target, DefaultNLLOptions())
		require.NoError(t, err)
		assert.InDelta(t, 2.5, mean.Item(), 1e-6)
	})

	t.Run("rank 5 input is folded and restored", func(t *testing.T) {
		input := tensorOf(device.Float32, []int{1, 2, 1, 1, 2}, -1, -2, -3, -4)
		target := tensorOf(device.Int64, []int{1, 1, 1, 2}, 1, 1)
		opts := NLLOptions{IgnoreIndex: IgnoreIndex(-100), Reduction: ReductionNone}

		got, err := NLLLoss(input, target, opts)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 1, 1, 2}, got.Shape())
		assertValues(t, []float64{3, 4}, got, 1e-6)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := NLLLoss(tensorOf(device.Float32, []int{2}, -1, -2), tensorOf(device.Int64, []int{}, 0), DefaultNLLOptions())
		assert.ErrorIs(t, err, ErrInvalidShape)

		_, err = NLLLoss(logProbs(), tensorOf(device.Int64, []int{3}, 0, 1, 5), DefaultNLLOptions())
		assert.Error(t, err, "out of range target without ignore index")
	})
}

func TestBinaryCrossEntropy(t *testing.T) {
	_, err := BinaryCrossEntropy(tensorOf(device.Float32, []int{1}, 0.5), tensorOf(device.Float32, []int{1}, 1), nil, ReductionMean)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestBinaryCrossEntropyWithLogits(t *testing.T) {
	t.Run("stable for large logits", func(t *testing.T) {
		input := tensorOf(device.Float32, []int{2}, 1000, -1000)
		target := tensorOf(device.Float32, []int{2}, 0, 1)

		got, err := BinaryCrossEntropyWithLogits(input, target, BCEOptions{Reduction: ReductionNone})
		require.NoError(t, err)
		for _, v := range got.Values() {
			assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
		}
		assertValues(t, []float64{1000, 1000}, got, 1e-3)
	})

	t.Run("zero logit costs log 2", func(t *testing.T) {
		input := tensorOf(device.Float64, []int{2}, 0, 0)
		target := tensorOf(device.Float64, []int{2}, 1, 0)

		got, err := BinaryCrossEntropyWithLogits(input, target, DefaultBCEOptions())
		require.NoError(t, err)
		assert.InDelta(t, math.Ln2, got.Item(), 1e-12)
	})

	t.Run("matches the sigmoid formulation", func(t *testing.T) {
		x, y := 0.7, 0.2
		sig := 1 / (1 + math.Exp(-x))
		want := -(y*math.Log(sig) + (1-y)*math.Log(1-sig))

		got, err := BinaryCrossEntropyWithLogits(
			tensorOf(device.Float64, []int{1}, x), tensorOf(device.Float64, []int{1}, y),
			BCEOptions{Reduction: ReductionSum})
		require.NoError(t, err)
		assert.InDelta(t, want, got.Item(), 1e-12)
	})

	t.Run("positive and element weights", func(t *testing.T) {
		input := tensorOf(device.Float64, []int{1}, 0)
		target := tensorOf(device.Float64, []int{1}, 1)
		opts := BCEOptions{
			PosWeight: tensorOf(device.Float64, []int{1}, 3),
			Weight:    tensorOf(device.Float64, []int{1}, 0.5),
			Reduction: ReductionMean,
		}

		got, err := BinaryCrossEntropyWithLogits(input, target, opts)
		require.NoError(t, err)
		assert.InDelta(t, 1.5*math.Ln2, got.Item(), 1e-12)
	})
}
