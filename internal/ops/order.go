package ops

import (
	"math"
	"strconv"
	"strings"
)

type orderKind int

const (
	orderNone orderKind = iota
	orderNumber
	orderName
)

// Order is the `ord` argument of Norm: absent, a number (including ±Inf
// and 0) or a named order such as "fro" or "nuc".
type Order struct {
	kind orderKind
	p    float64
	name string
}

var (
	// OrdNone selects the default norm: 2-norm for vectors, Frobenius for
	// matrices.
	OrdNone = Order{}
	OrdFro  = Order{kind: orderName, name: "fro"}
	OrdF    = Order{kind: orderName, name: "f"}
	OrdNuc  = Order{kind: orderName, name: "nuc"}
	OrdInf  = Ord(math.Inf(1))
)

// Ord returns a numeric norm order.
func Ord(p float64) Order {
	return Order{kind: orderNumber, p: p}
}

// ParseOrder reads an order from text. Numbers and "inf"/"-inf" become
// numeric orders, "" and "none" the default order; anything else is kept as
// a named order and validated by Norm.
func ParseOrder(s string) Order {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "none":
		return OrdNone
	}
	if p, err := strconv.ParseFloat(s, 64); err == nil {
		return Ord(p)
	}
	return Order{kind: orderName, name: s}
}

func (o Order) String() string {
	switch o.kind {
	case orderNumber:
		return strconv.FormatFloat(o.p, 'g', -1, 64)
	case orderName:
		return o.name
	default:
		return "None"
	}
}

// IsNone reports whether o is the default order.
func (o Order) IsNone() bool { return o.kind == orderNone }

// IsNamed reports whether o is a string order.
func (o Order) IsNamed() bool { return o.kind == orderName }

func (o Order) is(p float64) bool { return o.kind == orderNumber && o.p == p }

func (o Order) isName(names ...string) bool {
	if o.kind != orderName {
		return false
	}
	for _, n := range names {
		if o.name == n {
			return true
		}
	}
	return false
}
