package evaluator

import (
	"context"

	"github.com/pkg/errors"

	"github.com/23skdu/longbow-torchcompat/internal/device"
	"github.com/23skdu/longbow-torchcompat/internal/functional"
	"github.com/23skdu/longbow-torchcompat/internal/ops"
)

func registerBuiltins(e *Evaluator) {
	e.Register("dot", evalDot)
	e.Register("norm", evalNorm)
	e.Register("bmm", evalBMM)
	e.Register("masked_fill", evalMaskedFill)
	e.Register("sqrt", unary(ops.Sqrt))
	e.Register("reciprocal", unary(ops.Reciprocal))
	e.Register("moveaxis", evalMoveAxis)
	e.Register("normalize_axis_index", e.evalNormalizeAxisIndex)

	e.Register("softmax", softmax(functional.Softmax))
	e.Register("log_softmax", softmax(functional.LogSoftmax))
	e.Register("kl_div", evalKLDiv)
	e.Register("cross_entropy", nll(functional.CrossEntropy, functional.DefaultCrossEntropyOptions()))
	e.Register("nll_loss", nll(functional.NLLLoss, functional.DefaultNLLOptions()))
	e.Register("binary_cross_entropy", evalBinaryCrossEntropy)
	e.Register("binary_cross_entropy_with_logits", evalBCEWithLogits)
}

func unary(fn func(device.Tensor) (device.Tensor, error)) Handler {
	return func(_ context.Context, in Inputs, _ Params) (device.Tensor, error) {
		x, err := in.Tensor("x")
		if err != nil {
			return nil, err
		}
		return fn(x)
	}
}

func evalDot(_ context.Context, in Inputs, _ Params) (device.Tensor, error) {
	a, err := in.Tensor("a")
	if err != nil {
		return nil, err
	}
	b, err := in.Tensor("b")
	if err != nil {
		return nil, err
	}
	return ops.Dot(a, b)
}

func evalNorm(_ context.Context, in Inputs, p Params) (device.Tensor, error) {
	x, err := in.Tensor("x")
	if err != nil {
		return nil, err
	}
	ord, err := p.Order("ord")
	if err != nil {
		return nil, err
	}
	axis, err := p.Axis("axis")
	if err != nil {
		return nil, err
	}
	keepDims, err := p.Bool("keepdims", false)
	if err != nil {
		return nil, err
	}
	return ops.Norm(x, ord, axis, keepDims)
}

func evalBMM(_ context.Context, in Inputs, p Params) (device.Tensor, error) {
	x, err := in.Tensor("x")
	if err != nil {
		return nil, err
	}
	y, err := in.Tensor("y")
	if err != nil {
		return nil, err
	}
	transposeX, err := p.Bool("transpose_x", false)
	if err != nil {
		return nil, err
	}
	transposeY, err := p.Bool("transpose_y", false)
	if err != nil {
		return nil, err
	}
	return ops.BMM(x, y, transposeX, transposeY)
}

func evalMaskedFill(_ context.Context, in Inputs, p Params) (device.Tensor, error) {
	x, err := in.Tensor("input")
	if err != nil {
		return nil, err
	}
	mask, err := in.Tensor("mask")
	if err != nil {
		return nil, err
	}
	value, err := p.Float("value", 0)
	if err != nil {
		return nil, err
	}
	return ops.MaskedFill(x, mask, value)
}

func evalMoveAxis(_ context.Context, in Inputs, p Params) (device.Tensor, error) {
	x, err := in.Tensor("x")
	if err != nil {
		return nil, err
	}
	source, err := p.Axis("source")
	if err != nil {
		return nil, err
	}
	destination, err := p.Axis("destination")
	if err != nil {
		return nil, err
	}
	return ops.MoveAxis(x, source, destination)
}

// evalNormalizeAxisIndex answers with an int64 scalar.
func (e *Evaluator) evalNormalizeAxisIndex(_ context.Context, _ Inputs, p Params) (device.Tensor, error) {
	axis, err := p.Int("axis", 0)
	if err != nil {
		return nil, err
	}
	ndim, err := p.Int("ndim", 0)
	if err != nil {
		return nil, err
	}
	idx, err := ops.NormalizeAxisIndex(axis, ndim)
	if err != nil {
		return nil, err
	}
	return e.backend.Full(device.Int64, []int{}, float64(idx)), nil
}

func softmax(fn func(device.Tensor, int) (device.Tensor, error)) Handler {
	return func(_ context.Context, in Inputs, p Params) (device.Tensor, error) {
		x, err := in.Tensor("input")
		if err != nil {
			return nil, err
		}
		axis, err := p.Int("axis", -1)
		if err != nil {
			return nil, err
		}
		return fn(x, axis)
	}
}

func evalKLDiv(_ context.Context, in Inputs, p Params) (device.Tensor, error) {
	x, err := in.Tensor("input")
	if err != nil {
		return nil, err
	}
	target, err := in.Tensor("target")
	if err != nil {
		return nil, err
	}
	reduction, err := p.Reduction("reduction", functional.ReductionNone)
	if err != nil {
		return nil, err
	}
	logTarget, err := p.Bool("log_target", false)
	if err != nil {
		return nil, err
	}
	return functional.KLDiv(x, target, reduction, logTarget)
}

// nll builds the handler of NLLLoss and CrossEntropy, which share options
// and differ in their defaults.
func nll(fn func(input, target device.Tensor, opts functional.NLLOptions) (device.Tensor, error), defaults functional.NLLOptions) Handler {
	return func(_ context.Context, in Inputs, p Params) (device.Tensor, error) {
		x, err := in.Tensor("input")
		if err != nil {
			return nil, err
		}
		target, err := in.Tensor("target")
		if err != nil {
			return nil, err
		}

		opts := defaults
		opts.Weight = in.Optional("weight")
		if opts.IgnoreIndex, err = p.OptionalInt("ignore_index", defaults.IgnoreIndex); err != nil {
			return nil, err
		}
		if opts.Reduction, err = p.Reduction("reduction", defaults.Reduction); err != nil {
			return nil, err
		}
		if opts.LabelSmoothing, err = p.Float("label_smoothing", defaults.LabelSmoothing); err != nil {
			return nil, err
		}
		if opts.LabelSmoothing < 0 || opts.LabelSmoothing > 1 {
			return nil, errors.Wrapf(ErrInvalidParam, "label_smoothing must be in [0, 1], got %g", opts.LabelSmoothing)
		}
		return fn(x, target, opts)
	}
}

func evalBinaryCrossEntropy(_ context.Context, in Inputs, p Params) (device.Tensor, error) {
	x, err := in.Tensor("input")
	if err != nil {
		return nil, err
	}
	target, err := in.Tensor("target")
	if err != nil {
		return nil, err
	}
	reduction, err := p.Reduction("reduction", functional.ReductionMean)
	if err != nil {
		return nil, err
	}
	return functional.BinaryCrossEntropy(x, target, in.Optional("weight"), reduction)
}

func evalBCEWithLogits(_ context.Context, in Inputs, p Params) (device.Tensor, error) {
	x, err := in.Tensor("input")
	if err != nil {
		return nil, err
	}
	target, err := in.Tensor("target")
	if err != nil {
		return nil, err
	}
	opts := functional.DefaultBCEOptions()
	opts.Weight = in.Optional("weight")
	opts.PosWeight = in.Optional("pos_weight")
	if opts.Reduction, err = p.Reduction("reduction", opts.Reduction); err != nil {
		return nil, err
	}
	return functional.BinaryCrossEntropyWithLogits(x, target, opts)
}
