// Package script implements the marshalling core of the bridge: the
// conversion layer that moves numeric buffers, scalars, collections,
// maps and opaque wrapped objects across the boundary between the host
// program and a remote dynamic object runtime, plus the proxy types
// that make remote members, methods and collections usable with
// ordinary Go calls.
package script

import (
	"fmt"

	"github.com/chazu/tether/ndarray"
)

// RefKind classifies what a remote handle points at.
type RefKind uint8

const (
	RefObject RefKind = iota + 1
	RefCollection
	RefMethod
	RefArray
	RefOpaque
)

var refKindNames = map[RefKind]string{
	RefObject:     "object",
	RefCollection: "collection",
	RefMethod:     "method",
	RefArray:      "array",
	RefOpaque:     "opaque",
}

func (k RefKind) String() string {
	if s, ok := refKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("RefKind(%d)", uint8(k))
}

// Ref is an opaque reference to a value owned by the remote runtime.
// The host holds only the reference, never a copy; a Ref is only valid
// for the session that produced it.
type Ref struct {
	Kind RefKind `cbor:"k"`
	ID   string  `cbor:"id"`
}

// IsZero reports whether r is the zero (absent) reference.
func (r Ref) IsZero() bool { return r.Kind == 0 && r.ID == "" }

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// ElemCode classifies the element type of a remote array, and doubles
// as the declared key type of a remote ordered map.
type ElemCode uint8

const (
	ElemNone ElemCode = iota // absent / not declared

	ElemBool
	ElemInt8
	ElemInt16
	ElemInt32
	ElemInt64
	ElemUint8
	ElemUint16
	ElemUint32
	ElemUint64
	ElemFloat32
	ElemFloat64

	ElemString // string elements, not a numeric buffer
	ElemObject // elements are object handles
	ElemArray  // elements are themselves arrays (jagged)
	ElemOther  // anything else; named in ElemType.Name
)

var elemCodeNames = map[ElemCode]string{
	ElemNone:    "none",
	ElemBool:    "bool",
	ElemInt8:    "int8",
	ElemInt16:   "int16",
	ElemInt32:   "int32",
	ElemInt64:   "int64",
	ElemUint8:   "uint8",
	ElemUint16:  "uint16",
	ElemUint32:  "uint32",
	ElemUint64:  "uint64",
	ElemFloat32: "float32",
	ElemFloat64: "float64",
	ElemString:  "string",
	ElemObject:  "object",
	ElemArray:   "array",
	ElemOther:   "other",
}

func (c ElemCode) String() string {
	if s, ok := elemCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ElemCode(%d)", uint8(c))
}

// ElemType describes a remote array's element type: a code from the
// closed set plus the remote runtime's own type name for diagnostics.
type ElemType struct {
	Code ElemCode `cbor:"c"`
	Name string   `cbor:"n,omitempty"`
}

// DatumKind tags the variants of Datum.
type DatumKind uint8

const (
	KindNull DatumKind = iota
	KindString
	KindScalar      // boxed numeric scalar
	KindObject      // remote object handle
	KindCollection  // remote collection handle
	KindMethod      // remote method handle
	KindArray       // remote array handle + element type
	KindRecord      // dynamic record, pairs copied once at conversion time
	KindList        // generic growable list, elements inline
	KindObjectArray // fixed-size array of object-typed elements, inline
	KindMap         // generic unordered map, pairs inline
	KindSortedMap   // ordered map, pairs inline + declared key type
	KindOpaque      // remote value with no host equivalent; passed through
)

var datumKindNames = map[DatumKind]string{
	KindNull:        "null",
	KindString:      "string",
	KindScalar:      "scalar",
	KindObject:      "object",
	KindCollection:  "collection",
	KindMethod:      "method",
	KindArray:       "array",
	KindRecord:      "record",
	KindList:        "list",
	KindObjectArray: "object-array",
	KindMap:         "map",
	KindSortedMap:   "sorted-map",
	KindOpaque:      "opaque",
}

func (k DatumKind) String() string {
	if s, ok := datumKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("DatumKind(%d)", uint8(k))
}

// Pair is one key/value entry of a record or map datum.
type Pair struct {
	Key   Datum `cbor:"k"`
	Value Datum `cbor:"v"`
}

// Datum is the self-describing value representation used on the call
// boundary. Every value entering or leaving the remote runtime is a
// Datum; which fields are meaningful depends on Kind.
//
// Scalars and strings are carried inline. Objects, collections,
// methods, arrays and opaque values are carried as references. Records,
// generic lists and maps are carried inline as a one-time copy of their
// contents; mutating the host-side result never writes back.
type Datum struct {
	Kind DatumKind `cbor:"t"`

	Str      string        `cbor:"s,omitempty"`  // KindString
	Num      ndarray.DType `cbor:"d,omitempty"`  // KindScalar: dtype of the boxed value
	Bits     uint64        `cbor:"b,omitempty"`  // KindScalar: raw payload bits
	Ref      Ref           `cbor:"r,omitempty"`  // handle-carrying kinds
	Elem     ElemType      `cbor:"e,omitempty"`  // KindArray: element type; KindSortedMap: key type
	Items    []Datum       `cbor:"i,omitempty"`  // KindList, KindObjectArray
	Pairs    []Pair        `cbor:"p,omitempty"`  // KindRecord, KindMap, KindSortedMap
	TypeName string        `cbor:"tn,omitempty"` // KindOpaque: remote type name
}

// Null returns the null datum.
func Null() Datum { return Datum{Kind: KindNull} }

// Str returns a string datum.
func Str(s string) Datum { return Datum{Kind: KindString, Str: s} }

// Scalar builds a boxed numeric scalar datum from raw bits.
func Scalar(dt ndarray.DType, bits uint64) Datum {
	return Datum{Kind: KindScalar, Num: dt, Bits: bits}
}

// FromRef wraps a reference in the datum kind matching its RefKind.
func FromRef(r Ref) Datum {
	switch r.Kind {
	case RefObject:
		return Datum{Kind: KindObject, Ref: r}
	case RefCollection:
		return Datum{Kind: KindCollection, Ref: r}
	case RefMethod:
		return Datum{Kind: KindMethod, Ref: r}
	case RefArray:
		return Datum{Kind: KindArray, Ref: r}
	default:
		return Datum{Kind: KindOpaque, Ref: r}
	}
}

func (d Datum) String() string {
	switch d.Kind {
	case KindNull:
		return "null"
	case KindString:
		return fmt.Sprintf("%q", d.Str)
	case KindScalar:
		return fmt.Sprintf("%v(%v)", d.Num, ndarray.UnpackScalar(d.Num, d.Bits))
	case KindObject, KindCollection, KindMethod, KindArray:
		return d.Ref.String()
	case KindOpaque:
		if d.TypeName != "" {
			return fmt.Sprintf("opaque<%s>", d.TypeName)
		}
		return d.Ref.String()
	default:
		return d.Kind.String()
	}
}
