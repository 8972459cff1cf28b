package ndarray

import "math"

// DType identifies the element type of an Array.
//
// The set is closed: these are the only element types a numeric buffer
// can have. Anything else (strings, nested arrays, handles) is not a
// numeric buffer and is handled elsewhere.
type DType uint8

const (
	Bool DType = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64

	numDTypes
)

// dtypeSizes maps each DType to its element size in bytes.
var dtypeSizes = [numDTypes]int{
	Bool:    1,
	Int8:    1,
	Int16:   2,
	Int32:   4,
	Int64:   8,
	Uint8:   1,
	Uint16:  2,
	Uint32:  4,
	Uint64:  8,
	Float32: 4,
	Float64: 8,
}

var dtypeNames = [numDTypes]string{
	Bool:    "bool",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
}

// Valid reports whether dt is one of the supported element types.
func (dt DType) Valid() bool {
	return dt < numDTypes
}

// Size returns the element size in bytes.
// Panics if dt is not a valid DType.
func (dt DType) Size() int {
	if !dt.Valid() {
		panic("ndarray: DType.Size: invalid dtype")
	}
	return dtypeSizes[dt]
}

func (dt DType) String() string {
	if !dt.Valid() {
		return "invalid"
	}
	return dtypeNames[dt]
}

// DTypes returns all supported element types, in declaration order.
func DTypes() []DType {
	out := make([]DType, 0, numDTypes)
	for dt := DType(0); dt < numDTypes; dt++ {
		out = append(out, dt)
	}
	return out
}

// PackScalar encodes a Go scalar into the raw bit representation used
// for dt. Reports false when v's runtime type cannot represent an
// element of dt.
func PackScalar(dt DType, v any) (uint64, bool) {
	if !dt.Valid() {
		return 0, false
	}
	return bitsFor(dt, v)
}

// UnpackScalar decodes raw bits into the Go scalar matching dt
// (bool, int8 ... uint64, float32, float64).
// Panics if dt is not a valid DType.
func UnpackScalar(dt DType, bits uint64) any {
	return valueFor(dt, bits)
}

// bitsFor encodes a scalar of the given dtype into raw uint64 bits.
// The caller guarantees v matches dt; see Array.Set for the coercion
// rules applied before this point.
func bitsFor(dt DType, v any) (uint64, bool) {
	switch dt {
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return 0, false
		}
		if b {
			return 1, true
		}
		return 0, true
	case Int8:
		n, ok := toInt64(v)
		return uint64(n), ok
	case Int16:
		n, ok := toInt64(v)
		return uint64(n), ok
	case Int32:
		n, ok := toInt64(v)
		return uint64(n), ok
	case Int64:
		n, ok := toInt64(v)
		return uint64(n), ok
	case Uint8, Uint16, Uint32, Uint64:
		n, ok := toUint64(v)
		return n, ok
	case Float32:
		f, ok := toFloat64(v)
		return uint64(math.Float32bits(float32(f))), ok
	case Float64:
		f, ok := toFloat64(v)
		return math.Float64bits(f), ok
	}
	return 0, false
}

// valueFor decodes raw bits into the Go scalar for the given dtype.
func valueFor(dt DType, bits uint64) any {
	switch dt {
	case Bool:
		return bits != 0
	case Int8:
		return int8(bits)
	case Int16:
		return int16(bits)
	case Int32:
		return int32(bits)
	case Int64:
		return int64(bits)
	case Uint8:
		return uint8(bits)
	case Uint16:
		return uint16(bits)
	case Uint32:
		return uint32(bits)
	case Uint64:
		return bits
	case Float32:
		return math.Float32frombits(uint32(bits))
	case Float64:
		return math.Float64frombits(bits)
	}
	panic("ndarray: valueFor: invalid dtype")
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case int:
		return uint64(n), true
	case int64:
		return uint64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	case int:
		return float64(f), true
	case int8:
		return float64(f), true
	case int16:
		return float64(f), true
	case int32:
		return float64(f), true
	case int64:
		return float64(f), true
	case uint:
		return float64(f), true
	case uint8:
		return float64(f), true
	case uint16:
		return float64(f), true
	case uint32:
		return float64(f), true
	case uint64:
		return float64(f), true
	}
	return 0, false
}
