package evaluator

import (
	"math"

	"github.com/pkg/errors"

	"github.com/23skdu/longbow-torchcompat/internal/functional"
	"github.com/23skdu/longbow-torchcompat/internal/ops"
)

// Params are the untyped operation parameters of a request, as decoded from
// CBOR: integers arrive as int64 or uint64, floats as float64, arrays as []any.
type Params map[string]any

// toInt converts a whole number of any decoded numeric type.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int(n), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int, int64, uint64, int32:
		i, ok := toInt(n)
		return float64(i), ok
	}
	return 0, false
}

// Axis reads an axis parameter: missing or null means all axes (nil), an
// integer one axis, an array of integers several. Anything else is
// ops.ErrInvalidAxis.
func (p Params) Axis(name string) ([]int, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return nil, nil
	}
	if i, ok := toInt(v); ok {
		return []int{i}, nil
	}
	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []int:
		return append([]int{}, list...), nil
	default:
		return nil, errors.Wrapf(ops.ErrInvalidAxis, "'axis' must be None, an integer or a tuple of integers, got %T", v)
	}
	axes := make([]int, 0, len(items))
	for _, item := range items {
		i, ok := toInt(item)
		if !ok {
			return nil, errors.Wrapf(ops.ErrInvalidAxis, "'axis' must be None, an integer or a tuple of integers, got element %v", item)
		}
		axes = append(axes, i)
	}
	return axes, nil
}

// Order reads a norm order: missing or null is ops.OrdNone, strings are
// parsed with ops.ParseOrder and numbers become numeric orders.
func (p Params) Order(name string) (ops.Order, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return ops.OrdNone, nil
	}
	if s, ok := v.(string); ok {
		return ops.ParseOrder(s), nil
	}
	if f, ok := toFloat(v); ok {
		return ops.Ord(f), nil
	}
	return ops.OrdNone, errors.Wrapf(ops.ErrInvalidOrder, "unsupported ord %v of type %T", v, v)
}

// Reduction reads a reduction name, falling back to def when missing.
func (p Params) Reduction(name string, def functional.Reduction) (functional.Reduction, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, errors.Wrapf(functional.ErrInvalidReduction, "reduction must be a string, got %T", v)
	}
	return functional.ParseReduction(s)
}

func (p Params) Bool(name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return def, errors.Wrapf(ErrInvalidParam, "%s must be a boolean, got %T", name, v)
	}
	return b, nil
}

func (p Params) Int(name string, def int) (int, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	i, ok := toInt(v)
	if !ok {
		return def, errors.Wrapf(ErrInvalidParam, "%s must be an integer, got %v", name, v)
	}
	return i, nil
}

func (p Params) Float(name string, def float64) (float64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return def, errors.Wrapf(ErrInvalidParam, "%s must be a number, got %v", name, v)
	}
	return f, nil
}

// OptionalInt distinguishes a missing parameter (def) from an explicit null
// (nil).
func (p Params) OptionalInt(name string, def *int) (*int, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	if v == nil {
		return nil, nil
	}
	i, ok := toInt(v)
	if !ok {
		return def, errors.Wrapf(ErrInvalidParam, "%s must be an integer or null, got %v", name, v)
	}
	return &i, nil
}
