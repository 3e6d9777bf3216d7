// Package codec holds the wire forms of tensors: a CBOR envelope for the
// evaluation API and Arrow record batches for row-wise vector data.
package codec

import (
	"io"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/23skdu/longbow-torchcompat/internal/device"
)

// Tensor is the serialized form of a device.Tensor. Data is row-major and
// already rounded to DType.
type Tensor struct {
	Shape []int     `cbor:"shape"`
	DType string    `cbor:"dtype"`
	Data  []float64 `cbor:"data"`
}

// FromDevice copies t into its wire form.
func FromDevice(t device.Tensor) Tensor {
	return Tensor{
		Shape: t.Shape(),
		DType: t.DType().String(),
		Data:  t.Values(),
	}
}

// MaxElements bounds both the element count of a wire tensor and each of
// its dimensions. Operations on a zero-size tensor can still allocate along
// its other axes, so a dimension may not exceed it either.
const MaxElements = 1 << 26

// ErrTooLarge is returned for shapes beyond MaxElements.
var ErrTooLarge = errors.New("tensor too large")

// Elements returns the number of values Shape describes.
func (t Tensor) Elements() (int, error) {
	size := 1
	for _, d := range t.Shape {
		if d < 0 {
			return 0, errors.Errorf("negative dimension in shape %v", t.Shape)
		}
		if d > MaxElements {
			return 0, errors.Wrapf(ErrTooLarge, "dimension %d of shape %v", d, t.Shape)
		}
		if d > 0 && size > MaxElements/d {
			return 0, errors.Wrapf(ErrTooLarge, "shape %v", t.Shape)
		}
		size *= d
	}
	return size, nil
}

// Weight estimates the work t can cause: its element count, or its largest
// dimension when that is bigger. Invalid shapes weigh MaxElements.
func (t Tensor) Weight() int64 {
	size, err := t.Elements()
	if err != nil {
		return MaxElements
	}
	w := size
	for _, d := range t.Shape {
		w = max(w, d)
	}
	return int64(w)
}

// ToDevice builds a tensor on b, checking the dtype name and that Data
// matches Shape.
func (t Tensor) ToDevice(b device.Backend) (device.Tensor, error) {
	dtype, err := device.ParseDType(t.DType)
	if err != nil {
		return nil, err
	}
	size, err := t.Elements()
	if err != nil {
		return nil, err
	}
	if len(t.Data) != size {
		return nil, errors.Errorf("shape %v needs %d values, got %d", t.Shape, size, len(t.Data))
	}
	if dtype == device.Int32 {
		for _, v := range t.Data {
			if v < math.MinInt32 || v > math.MaxInt32 {
				return nil, errors.Errorf("value %g overflows int32", v)
			}
		}
	}
	return b.NewTensor(dtype, t.Shape, t.Data), nil
}

// Request asks for one operation. Params values are CBOR scalars, arrays or
// null; their meaning depends on Op.
type Request struct {
	Op     string            `cbor:"op"`
	Inputs map[string]Tensor `cbor:"inputs"`
	Params map[string]any    `cbor:"params,omitempty"`
}

// Response carries either the output tensor or an error message.
type Response struct {
	Output *Tensor `cbor:"output,omitempty"`
	Error  string  `cbor:"error,omitempty"`
}

var decMode cbor.DecMode

func init() {
	var err error
	// Nested maps in Params decode with string keys.
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	if err := decMode.NewDecoder(r).Decode(&req); err != nil {
		return Request{}, errors.Wrap(err, "decode request")
	}
	return req, nil
}

func EncodeRequest(w io.Writer, req Request) error {
	return cbor.NewEncoder(w).Encode(req)
}

func DecodeResponse(r io.Reader) (Response, error) {
	var resp Response
	if err := decMode.NewDecoder(r).Decode(&resp); err != nil {
		return Response{}, errors.Wrap(err, "decode response")
	}
	return resp, nil
}

func EncodeResponse(w io.Writer, resp Response) error {
	return cbor.NewEncoder(w).Encode(resp)
}
