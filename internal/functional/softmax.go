// Package functional implements the PyTorch-style functional losses (softmax
// family, KL divergence, NLL and cross-entropy with label smoothing, binary
// cross-entropy with logits) on top of a device.Backend.
package functional

import (
	"github.com/23skdu/longbow-torchcompat/internal/device"
)

// Softmax normalizes input exponentially along axis (usually -1).
func Softmax(input device.Tensor, axis int) (device.Tensor, error) {
	return device.Catch(func() (device.Tensor, error) {
		return device.Softmax(input, axis), nil
	})
}

// LogSoftmax is the logarithm of Softmax, computed in a numerically stable way.
func LogSoftmax(input device.Tensor, axis int) (device.Tensor, error) {
	return device.Catch(func() (device.Tensor, error) {
		return device.LogSoftmax(input, axis), nil
	})
}

// KLDiv computes the pointwise Kullback-Leibler divergence between target
// and input, where input holds log-probabilities. With logTarget, target is
// also given as log-probabilities.
func KLDiv(input, target device.Tensor, reduction Reduction, logTarget bool) (device.Tensor, error) {
	return device.Catch(func() (device.Tensor, error) {
		var kl device.Tensor
		if logTarget {
			kl = device.Mul(device.Exp(target), device.Sub(target, input))
		} else {
			kl = device.Mul(target, device.Sub(device.Log(target), input))
		}
		return reduce(kl, reduction), nil
	})
}

// reduce applies an unweighted reduction.
func reduce(loss device.Tensor, reduction Reduction) device.Tensor {
	switch reduction {
	case ReductionSum:
		return device.ReduceAllSum(loss)
	case ReductionMean:
		return device.ReduceAllMean(loss)
	default:
		return loss
	}
}
