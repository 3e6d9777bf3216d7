//go:build netlib

package device

// Registers the netlib BLAS implementation, backed by the system BLAS
// (Accelerate on macOS, OpenBLAS on Linux). Requires cgo.

import (
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

func init() {
	// gonum/mat routes Dense.Mul through blas64.
	blas64.Use(netlib.Implementation{})
	log.Debug().Msg("⚡ CGO/BLAS Acceleration Enabled (netlib)")
}
