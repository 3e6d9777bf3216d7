package functional

import (
	"github.com/pkg/errors"

	"github.com/23skdu/longbow-torchcompat/internal/device"
)

// DefaultIgnoreIndex is the target value CrossEntropy skips by default.
const DefaultIgnoreIndex = -100

// NLLOptions configures NLLLoss and CrossEntropy.
type NLLOptions struct {
	// Weight holds one weight per class. Nil weighs every class 1.
	Weight device.Tensor

	// IgnoreIndex is a target value whose entries contribute zero loss and
	// are left out of the mean's denominator. Nil disables masking.
	IgnoreIndex *int

	Reduction Reduction

	// LabelSmoothing in [0, 1] blends the target-class loss with the loss
	// of a uniform distribution over classes.
	LabelSmoothing float64
}

// IgnoreIndex returns a pointer to i, for NLLOptions.IgnoreIndex.
func IgnoreIndex(i int) *int {
	return &i
}

// DefaultNLLOptions returns the NLLLoss defaults: mean reduction, no
// weights, no ignored class, no smoothing.
func DefaultNLLOptions() NLLOptions {
	return NLLOptions{Reduction: ReductionMean}
}

// DefaultCrossEntropyOptions returns the CrossEntropy defaults, which ignore
// DefaultIgnoreIndex.
func DefaultCrossEntropyOptions() NLLOptions {
	return NLLOptions{IgnoreIndex: IgnoreIndex(DefaultIgnoreIndex), Reduction: ReductionMean}
}

// CrossEntropy computes NLLLoss over LogSoftmax(input) along the class axis 1.
func CrossEntropy(input, target device.Tensor, opts NLLOptions) (device.Tensor, error) {
	return device.Catch(func() (device.Tensor, error) {
		if input.Rank() < 2 {
			return nil, errors.Wrapf(ErrInvalidShape, "cross_entropy expects (N, C, ...) input, got %v", input.Shape())
		}
		return nllLoss(device.LogSoftmax(input, 1), target, opts)
	})
}

// NLLLoss computes the negative log-likelihood of target class indices under
// input log-probabilities. input is (N, C) or (N, C, d1, ..., dk), target is
// (N) or (N, d1, ..., dk). With ReductionNone the result has target's shape.
func NLLLoss(input, target device.Tensor, opts NLLOptions) (device.Tensor, error) {
	return device.Catch(func() (device.Tensor, error) {
		return nllLoss(input, target, opts)
	})
}

type rankClass int

const (
	rankBatch   rankClass = iota // (N, C)
	rankImage                    // (N, C, H, W)
	rankSpatial                  // (N, C, d1, ...) other than H, W
)

func classifyRank(rank int) rankClass {
	switch rank {
	case 2:
		return rankBatch
	case 4:
		return rankImage
	default:
		return rankSpatial
	}
}

func nllLoss(input, target device.Tensor, opts NLLOptions) (device.Tensor, error) {
	if input.Rank() < 2 {
		return nil, errors.Wrapf(ErrInvalidShape, "nll_loss expects (N, C, ...) input, got %v", input.Shape())
	}
	switch classifyRank(input.Rank()) {
	case rankBatch:
		return nllLossAlong(input, target, -1, opts), nil
	case rankImage:
		return nllLossAlong(input, target, 1, opts), nil
	default:
		return nllLossSpatial(input, target, opts), nil
	}
}

// nllLossSpatial folds every spatial dimension into one, so the image path
// applies, and restores the spatial shape of unreduced losses.
func nllLossSpatial(input, target device.Tensor, opts NLLOptions) device.Tensor {
	shape := input.Shape()
	n, c := shape[0], shape[1]
	outShape := append([]int{n}, shape[2:]...)

	input = device.Reshape(input, n, c, 1, -1)
	target = device.Reshape(target, n, 1, -1)
	loss := nllLossAlong(input, target, 1, opts)
	if opts.Reduction == ReductionNone {
		loss = device.Reshape(loss, outShape...)
	}
	return loss
}

// nllLossAlong is the NLL computation with the classes along axis.
func nllLossAlong(input, target device.Tensor, axis int, opts NLLOptions) device.Tensor {
	if axis < 0 {
		axis += input.Rank()
	}
	if target.Rank() == input.Rank()-1 {
		target = device.ExpandDims(target, axis)
	}

	// Ignored entries may hold an out of range class (-100): gather class 0
	// for them and mask the result afterwards.
	var ignored device.Tensor
	index := target
	if opts.IgnoreIndex != nil {
		ignored = device.EqualScalar(target, float64(*opts.IgnoreIndex))
		index = device.MaskedFill(target, ignored, 0)
	}

	nll := device.Neg(device.GatherAxis(input, axis, index))
	smooth := device.Neg(device.Sum(input, true, axis))

	var lossWeights device.Tensor
	if opts.Weight != nil {
		lossWeights = device.Take(opts.Weight, index)
		nll = device.Mul(nll, lossWeights)
	} else {
		lossWeights = device.OnesLike(nll)
	}

	if ignored != nil {
		nll = device.MaskedFill(nll, ignored, 0)
		lossWeights = device.MaskedFill(lossWeights, ignored, 0)
		smooth = device.MaskedFill(smooth, ignored, 0)
	}
	nll = device.Squeeze(nll, axis)
	smooth = device.Squeeze(smooth, axis)

	switch opts.Reduction {
	case ReductionSum:
		nll = device.ReduceAllSum(nll)
		smooth = device.ReduceAllSum(smooth)
	case ReductionMean:
		total := device.ReduceAllSum(lossWeights)
		nll = device.Div(device.ReduceAllSum(nll), total)
		smooth = device.Div(device.ReduceAllSum(smooth), total)
	}

	if opts.LabelSmoothing == 0 {
		return nll
	}
	eps := opts.LabelSmoothing / float64(input.Shape()[axis])
	return device.Add(device.MulScalar(nll, 1-opts.LabelSmoothing), device.MulScalar(smooth, eps))
}
