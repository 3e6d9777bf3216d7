// Package evaluator maps operation names from wire requests to the ops and
// functional libraries, decoding inputs and validating parameters on the way.
package evaluator

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/longbow-torchcompat/internal/codec"
	"github.com/23skdu/longbow-torchcompat/internal/device"
)

var (
	ErrUnknownOp    = errors.New("unknown operation")
	ErrMissingInput = errors.New("missing input")
	ErrInvalidParam = errors.New("invalid parameter")
	ErrInvalidInput = errors.New("invalid input tensor")
)

var tracer = otel.Tracer("torchcompat-evaluator")

// Inputs are the named tensors of one request.
type Inputs map[string]device.Tensor

// Tensor returns the required input name.
func (in Inputs) Tensor(name string) (device.Tensor, error) {
	t, ok := in[name]
	if !ok || t == nil {
		return nil, errors.Wrapf(ErrMissingInput, "%q", name)
	}
	return t, nil
}

// Optional returns the input name or nil.
func (in Inputs) Optional(name string) device.Tensor {
	return in[name]
}

// Handler runs one operation.
type Handler func(ctx context.Context, in Inputs, p Params) (device.Tensor, error)

// Evaluator dispatches requests by operation name. Handlers are registered
// before use; Eval is safe for concurrent use.
type Evaluator struct {
	backend  device.Backend
	handlers map[string]Handler
}

// New returns an Evaluator on backend with every builtin operation registered.
func New(backend device.Backend) *Evaluator {
	e := &Evaluator{
		backend:  backend,
		handlers: make(map[string]Handler),
	}
	registerBuiltins(e)
	return e
}

func (e *Evaluator) Backend() device.Backend {
	return e.backend
}

// Register adds or replaces the handler for name.
func (e *Evaluator) Register(name string, h Handler) {
	e.handlers[name] = h
}

// Ops lists the registered operation names in order.
func (e *Evaluator) Ops() []string {
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Eval decodes the request inputs onto the backend and runs the operation.
func (e *Evaluator) Eval(ctx context.Context, req codec.Request) (device.Tensor, error) {
	ctx, span := tracer.Start(ctx, "Eval", trace.WithAttributes(
		attribute.String("op", req.Op),
		attribute.Int("inputs", len(req.Inputs)),
	))
	defer span.End()

	start := time.Now()
	out, err := e.eval(ctx, req)
	evalDuration.WithLabelValues(req.Op).Observe(time.Since(start).Seconds())
	if err != nil {
		evalsTotal.WithLabelValues(req.Op, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Debug().Err(err).Str("op", req.Op).Msg("Evaluation failed")
		return nil, err
	}
	evalsTotal.WithLabelValues(req.Op, "ok").Inc()
	log.Debug().Str("op", req.Op).Ints("shape", out.Shape()).Str("dtype", out.DType().String()).Msg("Evaluated")
	return out, nil
}

func (e *Evaluator) eval(ctx context.Context, req codec.Request) (device.Tensor, error) {
	h, ok := e.handlers[req.Op]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownOp, "%q", req.Op)
	}
	in := make(Inputs, len(req.Inputs))
	for name, wire := range req.Inputs {
		t, err := wire.ToDevice(e.backend)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidInput, "%s: %v", name, err)
		}
		in[name] = t
	}
	return h(ctx, in, Params(req.Params))
}
