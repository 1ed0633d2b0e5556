package datamodel

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"
)

// TypedSamples is a homogeneous run of samples for one series: a
// tagged enumeration of *arrays*, not of individual samples (§3.1/§4.1).
// Every concrete implementation below wraps a plain Go slice; no
// small-vector optimisation is used (see DESIGN.md, C2).
type TypedSamples interface {
	Kind() SensorType
	Len() int
	CloneEmpty() TypedSamples
	// IntoChunks splits the value into same-kind chunks whose lengths
	// sum to Len(), each at most n, preserving order. n must be >= 1.
	IntoChunks(n int) ([]TypedSamples, error)
}

func chunkLengths(total, n int) []int {
	if total <= n {
		return []int{total}
	}
	var lens []int
	for remaining := total; remaining > 0; {
		take := n
		if take > remaining {
			take = remaining
		}
		lens = append(lens, take)
		remaining -= take
	}
	return lens
}

func requireChunkSize(n int) error {
	if n < 1 {
		return NewError(InvalidDataFormat, "chunk size must be >= 1, got %d", n)
	}
	return nil
}

// --- Integer ---

type IntegerSamples []Sample[int64]

func NewIntegerSamples(s ...Sample[int64]) IntegerSamples { return IntegerSamples(s) }

func (s IntegerSamples) Kind() SensorType        { return Integer }
func (s IntegerSamples) Len() int                { return len(s) }
func (s IntegerSamples) CloneEmpty() TypedSamples { return IntegerSamples{} }

func (s IntegerSamples) IntoChunks(n int) ([]TypedSamples, error) {
	if err := requireChunkSize(n); err != nil {
		return nil, err
	}
	var out []TypedSamples
	off := 0
	for _, l := range chunkLengths(len(s), n) {
		out = append(out, append(IntegerSamples(nil), s[off:off+l]...))
		off += l
	}
	return out, nil
}

// --- Numeric ---

type NumericSamples []Sample[decimal.Decimal]

func NewNumericSamples(s ...Sample[decimal.Decimal]) NumericSamples { return NumericSamples(s) }

func (s NumericSamples) Kind() SensorType        { return Numeric }
func (s NumericSamples) Len() int                { return len(s) }
func (s NumericSamples) CloneEmpty() TypedSamples { return NumericSamples{} }

func (s NumericSamples) IntoChunks(n int) ([]TypedSamples, error) {
	if err := requireChunkSize(n); err != nil {
		return nil, err
	}
	var out []TypedSamples
	off := 0
	for _, l := range chunkLengths(len(s), n) {
		out = append(out, append(NumericSamples(nil), s[off:off+l]...))
		off += l
	}
	return out, nil
}

// --- Float ---

type FloatSamples []Sample[float64]

func NewFloatSamples(s ...Sample[float64]) FloatSamples { return FloatSamples(s) }

func (s FloatSamples) Kind() SensorType        { return Float }
func (s FloatSamples) Len() int                { return len(s) }
func (s FloatSamples) CloneEmpty() TypedSamples { return FloatSamples{} }

func (s FloatSamples) IntoChunks(n int) ([]TypedSamples, error) {
	if err := requireChunkSize(n); err != nil {
		return nil, err
	}
	var out []TypedSamples
	off := 0
	for _, l := range chunkLengths(len(s), n) {
		out = append(out, append(FloatSamples(nil), s[off:off+l]...))
		off += l
	}
	return out, nil
}

// --- String ---

type StringSamples []Sample[string]

func NewStringSamples(s ...Sample[string]) StringSamples { return StringSamples(s) }

func (s StringSamples) Kind() SensorType        { return String }
func (s StringSamples) Len() int                { return len(s) }
func (s StringSamples) CloneEmpty() TypedSamples { return StringSamples{} }

func (s StringSamples) IntoChunks(n int) ([]TypedSamples, error) {
	if err := requireChunkSize(n); err != nil {
		return nil, err
	}
	var out []TypedSamples
	off := 0
	for _, l := range chunkLengths(len(s), n) {
		out = append(out, append(StringSamples(nil), s[off:off+l]...))
		off += l
	}
	return out, nil
}

// --- Boolean ---

type BooleanSamples []Sample[bool]

func NewBooleanSamples(s ...Sample[bool]) BooleanSamples { return BooleanSamples(s) }

func (s BooleanSamples) Kind() SensorType        { return Boolean }
func (s BooleanSamples) Len() int                { return len(s) }
func (s BooleanSamples) CloneEmpty() TypedSamples { return BooleanSamples{} }

func (s BooleanSamples) IntoChunks(n int) ([]TypedSamples, error) {
	if err := requireChunkSize(n); err != nil {
		return nil, err
	}
	var out []TypedSamples
	off := 0
	for _, l := range chunkLengths(len(s), n) {
		out = append(out, append(BooleanSamples(nil), s[off:off+l]...))
		off += l
	}
	return out, nil
}

// --- Location ---

// LocationSamples carries (longitude, latitude) pairs as orb.Point,
// i.e. (x=longitude, y=latitude), per §4.5.3.
type LocationSamples []Sample[orb.Point]

func NewLocationSamples(s ...Sample[orb.Point]) LocationSamples { return LocationSamples(s) }

func (s LocationSamples) Kind() SensorType        { return Location }
func (s LocationSamples) Len() int                { return len(s) }
func (s LocationSamples) CloneEmpty() TypedSamples { return LocationSamples{} }

func (s LocationSamples) IntoChunks(n int) ([]TypedSamples, error) {
	if err := requireChunkSize(n); err != nil {
		return nil, err
	}
	var out []TypedSamples
	off := 0
	for _, l := range chunkLengths(len(s), n) {
		out = append(out, append(LocationSamples(nil), s[off:off+l]...))
		off += l
	}
	return out, nil
}

// --- JSON ---

type JSONSamples []Sample[json.RawMessage]

func NewJSONSamples(s ...Sample[json.RawMessage]) JSONSamples { return JSONSamples(s) }

func (s JSONSamples) Kind() SensorType        { return Json }
func (s JSONSamples) Len() int                { return len(s) }
func (s JSONSamples) CloneEmpty() TypedSamples { return JSONSamples{} }

func (s JSONSamples) IntoChunks(n int) ([]TypedSamples, error) {
	if err := requireChunkSize(n); err != nil {
		return nil, err
	}
	var out []TypedSamples
	off := 0
	for _, l := range chunkLengths(len(s), n) {
		out = append(out, append(JSONSamples(nil), s[off:off+l]...))
		off += l
	}
	return out, nil
}

// --- Blob ---

type BlobSamples []Sample[[]byte]

func NewBlobSamples(s ...Sample[[]byte]) BlobSamples { return BlobSamples(s) }

func (s BlobSamples) Kind() SensorType        { return Blob }
func (s BlobSamples) Len() int                { return len(s) }
func (s BlobSamples) CloneEmpty() TypedSamples { return BlobSamples{} }

func (s BlobSamples) IntoChunks(n int) ([]TypedSamples, error) {
	if err := requireChunkSize(n); err != nil {
		return nil, err
	}
	var out []TypedSamples
	off := 0
	for _, l := range chunkLengths(len(s), n) {
		out = append(out, append(BlobSamples(nil), s[off:off+l]...))
		off += l
	}
	return out, nil
}

// EmptyOfKind returns a zero-length TypedSamples of the given kind,
// used when a matcher-matched sensor has no rows in the query window
// (§4.5.5, P8).
func EmptyOfKind(k SensorType) TypedSamples {
	switch k {
	case Integer:
		return IntegerSamples{}
	case Numeric:
		return NumericSamples{}
	case Float:
		return FloatSamples{}
	case String:
		return StringSamples{}
	case Boolean:
		return BooleanSamples{}
	case Location:
		return LocationSamples{}
	case Json:
		return JSONSamples{}
	case Blob:
		return BlobSamples{}
	default:
		return IntegerSamples{}
	}
}
