package functional

import (
	"github.com/23skdu/longbow-torchcompat/internal/device"
)

// BCEOptions configures BinaryCrossEntropyWithLogits.
type BCEOptions struct {
	// Weight rescales the loss of each element. Nil means 1.
	Weight device.Tensor

	// PosWeight weighs the positive examples, broadcast against target.
	PosWeight device.Tensor

	Reduction Reduction
}

// DefaultBCEOptions returns mean reduction without weights.
func DefaultBCEOptions() BCEOptions {
	return BCEOptions{Reduction: ReductionMean}
}

// BinaryCrossEntropy on probabilities is not provided; use
// BinaryCrossEntropyWithLogits.
func BinaryCrossEntropy(input, target device.Tensor, weight device.Tensor, reduction Reduction) (device.Tensor, error) {
	return nil, ErrNotImplemented
}

// BinaryCrossEntropyWithLogits computes the binary cross-entropy between
// target and sigmoid(input) without evaluating the sigmoid, using
//
//	max_val = max(-input, 0)
//	loss    = (1-target)*input + max_val + log(exp(-max_val) + exp(-input-max_val))
//
// which stays finite for large |input|. With PosWeight the log term and
// max_val are scaled by (pos_weight-1)*target + 1.
func BinaryCrossEntropyWithLogits(input, target device.Tensor, opts BCEOptions) (device.Tensor, error) {
	return device.Catch(func() (device.Tensor, error) {
		maxVal := device.MaximumScalar(device.Neg(input), 0)
		logTerm := device.Log(device.Add(
			device.Exp(device.Neg(maxVal)),
			device.Exp(device.Sub(device.Neg(input), maxVal)),
		))

		loss := device.Mul(device.ScalarSub(1, target), input)
		if opts.PosWeight != nil {
			logWeight := device.AddScalar(device.Mul(device.AddScalar(opts.PosWeight, -1), target), 1)
			loss = device.Add(loss, device.Mul(logWeight, device.Add(logTerm, maxVal)))
		} else {
			loss = device.Add(device.Add(loss, maxVal), logTerm)
		}

		if opts.Weight != nil {
			loss = device.Mul(loss, opts.Weight)
		}
		return reduce(loss, opts.Reduction), nil
	})
}
