package script

import (
	"fmt"

	"github.com/chazu/tether/ndarray"
)

// ---------------------------------------------------------------------------
// Element-type table
// ---------------------------------------------------------------------------

// The numeric conversion table. Both directions consult the same pairs,
// so the mapping is bijective: every supported remote element type has
// exactly one host dtype and vice versa. Element types outside the
// table (strings, object handles, nested arrays) are not numeric
// buffers and are handled by the normalizer instead.
var elemToDType = map[ElemCode]ndarray.DType{
	ElemBool:    ndarray.Bool,
	ElemInt8:    ndarray.Int8,
	ElemInt16:   ndarray.Int16,
	ElemInt32:   ndarray.Int32,
	ElemInt64:   ndarray.Int64,
	ElemUint8:   ndarray.Uint8,
	ElemUint16:  ndarray.Uint16,
	ElemUint32:  ndarray.Uint32,
	ElemUint64:  ndarray.Uint64,
	ElemFloat32: ndarray.Float32,
	ElemFloat64: ndarray.Float64,
}

var dtypeToElem = func() map[ndarray.DType]ElemCode {
	m := make(map[ndarray.DType]ElemCode, len(elemToDType))
	for code, dt := range elemToDType {
		m[dt] = code
	}
	return m
}()

// DTypeForElem resolves a remote element code to the host dtype.
func DTypeForElem(code ElemCode) (ndarray.DType, bool) {
	dt, ok := elemToDType[code]
	return dt, ok
}

// ElemForDType resolves a host dtype to the remote element code.
func ElemForDType(dt ndarray.DType) (ElemCode, bool) {
	code, ok := dtypeToElem[dt]
	return code, ok
}

// ---------------------------------------------------------------------------
// Numeric buffer converter
// ---------------------------------------------------------------------------

// ArrayToHost copies a remote numeric array into a freshly allocated
// host buffer with identical dtype, rank and extents. The copy is a
// single bulk transfer of the pinned bytes, so the result carries
// bit-identical element values and shares no storage with the remote
// array once the pin is released.
func ArrayToHost(svc Service, ref Ref) (*ndarray.Array, error) {
	elem, err := svc.ElementType(ref)
	if err != nil {
		return nil, err
	}
	dt, ok := elemToDType[elem.Code]
	if !ok {
		name := elem.Name
		if name == "" {
			name = elem.Code.String()
		}
		return nil, &UnsupportedTypeError{TypeName: name}
	}

	rank, err := svc.Rank(ref)
	if err != nil {
		return nil, err
	}
	shape := make([]int, rank)
	for dim := 0; dim < rank; dim++ {
		if shape[dim], err = svc.Extent(ref, dim); err != nil {
			return nil, err
		}
	}

	dst := ndarray.Zeros(dt, shape...)

	src, err := svc.Pin(ref)
	if err != nil {
		// Pin failure is fatal; there is nothing to release.
		return nil, err
	}
	defer svc.Unpin(ref)

	if len(src) != dst.NumBytes() {
		return nil, fmt.Errorf("script: pinned payload is %d bytes, want %d for %s%v", len(src), dst.NumBytes(), dt, shape)
	}
	copy(dst.Bytes(), src)
	return dst, nil
}

// ArrayToRemote allocates a remote numeric array matching the host
// buffer's dtype and shape and bulk-copies the bytes across. The host
// buffer is forced contiguous first; the raw copy assumes a single
// C-order run of bytes.
func ArrayToRemote(svc Service, a *ndarray.Array) (Datum, error) {
	if _, ok := dtypeToElem[a.DType()]; !ok {
		return Datum{}, &UnsupportedTypeError{TypeName: a.DType().String()}
	}

	a = a.AsContiguous()

	d, err := svc.NewArray(a.DType(), a.Shape())
	if err != nil {
		return Datum{}, err
	}

	dst, err := svc.Pin(d.Ref)
	if err != nil {
		return Datum{}, err
	}
	defer svc.Unpin(d.Ref)

	if len(dst) != a.NumBytes() {
		return Datum{}, fmt.Errorf("script: remote buffer is %d bytes, want %d for %s%v", len(dst), a.NumBytes(), a.DType(), a.Shape())
	}
	copy(dst, a.Bytes())
	return d, nil
}

// ---------------------------------------------------------------------------
// Scalar converter
// ---------------------------------------------------------------------------

// BoxScalar converts a single host numeric scalar into its boxed remote
// form. Dispatch is on the exact runtime type, with bool matched before
// the integer cases so a boolean can never be misclassified as an
// integer. Types outside the numeric family fail with
// *UnsupportedTypeError naming the offending type.
func BoxScalar(v any) (Datum, error) {
	var dt ndarray.DType
	switch v.(type) {
	case bool:
		dt = ndarray.Bool
	case int8:
		dt = ndarray.Int8
	case int16:
		dt = ndarray.Int16
	case int32:
		dt = ndarray.Int32
	case int64, int:
		dt = ndarray.Int64
	case uint8:
		dt = ndarray.Uint8
	case uint16:
		dt = ndarray.Uint16
	case uint32:
		dt = ndarray.Uint32
	case uint64, uint:
		dt = ndarray.Uint64
	case float32:
		dt = ndarray.Float32
	case float64:
		dt = ndarray.Float64
	default:
		return Datum{}, &UnsupportedTypeError{TypeName: fmt.Sprintf("%T", v)}
	}
	bits, ok := ndarray.PackScalar(dt, v)
	if !ok {
		return Datum{}, &UnsupportedTypeError{TypeName: fmt.Sprintf("%T", v)}
	}
	return Scalar(dt, bits), nil
}

// isNumericScalar reports whether v's runtime type belongs to the
// numeric scalar family handled by BoxScalar.
func isNumericScalar(v any) bool {
	switch v.(type) {
	case bool, int8, int16, int32, int64, int,
		uint8, uint16, uint32, uint64, uint,
		float32, float64:
		return true
	}
	return false
}
