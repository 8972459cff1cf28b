package script

import (
	"fmt"

	"github.com/chazu/tether/ndarray"
)

// ---------------------------------------------------------------------------
// Remote -> host
// ---------------------------------------------------------------------------

// ToHost normalizes a value arriving from the remote runtime into its
// host representation. Handles become proxies, numeric arrays become
// ndarray buffers, generic containers are copied element by element,
// and opaque remote values pass through untouched as their datum.
func ToHost(svc Service, d Datum) (any, error) {
	switch d.Kind {
	case KindNull:
		return nil, nil

	case KindString:
		return d.Str, nil

	case KindScalar:
		return ndarray.UnpackScalar(d.Num, d.Bits), nil

	case KindObject:
		return NewObject(svc, d.Ref), nil

	case KindCollection:
		return NewCollection(svc, d.Ref), nil

	case KindMethod:
		return NewMethod(svc, d.Ref), nil

	case KindArray:
		return arrayToHost(svc, d)

	case KindRecord:
		// One-way snapshot: the pairs were copied out of the remote
		// record at conversion time. Edits to the returned map never
		// propagate back.
		out := make(map[string]any, len(d.Pairs))
		for _, p := range d.Pairs {
			v, err := ToHost(svc, p.Value)
			if err != nil {
				return nil, err
			}
			out[p.Key.Str] = v
		}
		return out, nil

	case KindList, KindObjectArray:
		out := make([]any, len(d.Items))
		for i, item := range d.Items {
			v, err := ToHost(svc, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case KindMap:
		out := make(map[any]any, len(d.Pairs))
		for _, p := range d.Pairs {
			k, err := ToHost(svc, p.Key)
			if err != nil {
				return nil, err
			}
			v, err := ToHost(svc, p.Value)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil

	case KindSortedMap:
		out := sortedDictFromPairs(d.Elem.Code)
		for _, p := range d.Pairs {
			k, err := ToHost(svc, p.Key)
			if err != nil {
				return nil, err
			}
			v, err := ToHost(svc, p.Value)
			if err != nil {
				return nil, err
			}
			if err := out.Set(k, v); err != nil {
				return nil, err
			}
		}
		return out, nil

	case KindOpaque:
		// No host equivalent; keep the remote value as-is.
		return d, nil
	}

	return nil, fmt.Errorf("script: cannot normalize datum kind %s", d.Kind)
}

// arrayToHost dispatches on a remote array's element type: nested
// arrays recurse into an ArrayList, string arrays become an ArrayList
// of strings, object arrays become a plain slice of proxies, and
// numeric element types go through the bulk buffer converter.
func arrayToHost(svc Service, d Datum) (any, error) {
	switch d.Elem.Code {
	case ElemArray:
		n, err := svc.Count(d.Ref)
		if err != nil {
			return nil, err
		}
		out := make(ArrayList, n)
		for i := 0; i < n; i++ {
			el, err := svc.ElementAt(d.Ref, i)
			if err != nil {
				return nil, err
			}
			if out[i], err = ToHost(svc, el); err != nil {
				return nil, err
			}
		}
		return out, nil

	case ElemString:
		n, err := svc.Count(d.Ref)
		if err != nil {
			return nil, err
		}
		out := make(ArrayList, n)
		for i := 0; i < n; i++ {
			el, err := svc.ElementAt(d.Ref, i)
			if err != nil {
				return nil, err
			}
			out[i] = el.Str
		}
		return out, nil

	case ElemObject:
		n, err := svc.Count(d.Ref)
		if err != nil {
			return nil, err
		}
		out := make([]any, n)
		for i := 0; i < n; i++ {
			el, err := svc.ElementAt(d.Ref, i)
			if err != nil {
				return nil, err
			}
			out[i] = NewObject(svc, el.Ref)
		}
		return out, nil

	default:
		return ArrayToHost(svc, d.Ref)
	}
}

// ---------------------------------------------------------------------------
// Host -> remote
// ---------------------------------------------------------------------------

// ToRemote normalizes a host value for the trip to the remote runtime.
// Proxies unwrap to their handles, marker containers force their
// declared remote representation, numeric buffers and scalars go
// through the converters, and values already in remote form (Datum,
// Ref) pass through unchanged.
func ToRemote(svc Service, v any) (Datum, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil

	case *Object:
		return Datum{Kind: KindObject, Ref: x.ref}, nil

	case *Collection:
		return Datum{Kind: KindCollection, Ref: x.ref}, nil

	case *Method:
		return Datum{Kind: KindMethod, Ref: x.ref}, nil

	case *SortedDict:
		pairs := make([]Pair, 0, x.Len())
		for _, k := range x.Keys() {
			kd, err := ToRemote(svc, k)
			if err != nil {
				return Datum{}, err
			}
			vd, err := ToRemote(svc, x.entries[k])
			if err != nil {
				return Datum{}, err
			}
			pairs = append(pairs, Pair{Key: kd, Value: vd})
		}
		return Datum{Kind: KindSortedMap, Elem: ElemType{Code: x.keyType}, Pairs: pairs}, nil

	case map[any]any:
		return mapToRemote(svc, func(yield func(any, any) bool) {
			for k, v := range x {
				if !yield(k, v) {
					return
				}
			}
		})

	case map[string]any:
		return mapToRemote(svc, func(yield func(any, any) bool) {
			for k, v := range x {
				if !yield(k, v) {
					return
				}
			}
		})

	case ArrayList:
		items, err := convertElems(svc, x)
		if err != nil {
			return Datum{}, err
		}
		return Datum{Kind: KindObjectArray, Items: items}, nil

	case []any:
		// Elements are converted, but the value stays a list; only
		// the ArrayList marker forces array materialization.
		items, err := convertElems(svc, x)
		if err != nil {
			return Datum{}, err
		}
		return Datum{Kind: KindList, Items: items}, nil

	case *ndarray.Array:
		return ArrayToRemote(svc, x)

	case string:
		return Str(x), nil

	case Datum:
		// Already in remote form.
		return x, nil

	case Ref:
		return FromRef(x), nil
	}

	if isNumericScalar(v) {
		return BoxScalar(v)
	}
	return Datum{}, &UnsupportedTypeError{TypeName: fmt.Sprintf("%T", v)}
}

// mapToRemote builds an unordered remote map datum, converting each
// key and value.
func mapToRemote(svc Service, each func(yield func(any, any) bool)) (Datum, error) {
	var pairs []Pair
	var firstErr error
	each(func(k, v any) bool {
		kd, err := ToRemote(svc, k)
		if err != nil {
			firstErr = err
			return false
		}
		vd, err := ToRemote(svc, v)
		if err != nil {
			firstErr = err
			return false
		}
		pairs = append(pairs, Pair{Key: kd, Value: vd})
		return true
	})
	if firstErr != nil {
		return Datum{}, firstErr
	}
	return Datum{Kind: KindMap, Pairs: pairs}, nil
}

// convertElems converts the elements of a host list. Conversion cost is
// linear in the element count, so uniform primitive lists take a fast
// path: when the first element is a plain scalar or string, the whole
// list is boxed directly without running the full dispatch per element.
// Both paths produce element-for-element identical results.
func convertElems(svc Service, elems []any) ([]Datum, error) {
	if len(elems) == 0 {
		return nil, nil
	}

	if fast, ok := tryFastConvert(elems); ok {
		return fast, nil
	}

	out := make([]Datum, len(elems))
	for i, el := range elems {
		d, err := ToRemote(svc, el)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// tryFastConvert boxes a list of uniform primitives without per-element
// dispatch. Reports false when any element needs the full normalizer,
// in which case nothing is consumed.
func tryFastConvert(elems []any) ([]Datum, bool) {
	switch elems[0].(type) {
	case string:
	case bool, int8, int16, int32, int64, int,
		uint8, uint16, uint32, uint64, uint,
		float32, float64:
	default:
		return nil, false
	}

	out := make([]Datum, len(elems))
	for i, el := range elems {
		if s, ok := el.(string); ok {
			out[i] = Str(s)
			continue
		}
		d, err := BoxScalar(el)
		if err != nil {
			return nil, false
		}
		out[i] = d
	}
	return out, true
}
