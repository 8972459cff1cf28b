package host

import (
	"fmt"

	"github.com/chazu/tether/ndarray"
	"github.com/chazu/tether/script"
)

// unboxScalar decodes a scalar datum into its native Go value.
func unboxScalar(d script.Datum) any {
	return ndarray.UnpackScalar(d.Num, d.Bits)
}

// describe converts a space value into the self-describing datum that
// crosses the boundary. Reference types are registered in the handle
// table; scalars, strings and generic containers are carried inline.
// Record, list and map contents are copied at description time, which
// is what gives inbound records their one-way snapshot semantics.
func (s *Service) describe(sp *Space, v any) (script.Datum, error) {
	switch t := v.(type) {
	case nil:
		return script.Null(), nil

	case string:
		return script.Str(t), nil

	case *Entity:
		return script.FromRef(sp.handles.Create(t, script.RefObject, s.session)), nil

	case *Coll:
		return script.FromRef(sp.handles.Create(t, script.RefCollection, s.session)), nil

	case *Method:
		return script.FromRef(sp.handles.Create(t, script.RefMethod, s.session)), nil

	case *NumArray:
		code, ok := script.ElemForDType(t.DType)
		if !ok {
			return script.Datum{}, fmt.Errorf("array has unrepresentable dtype %s", t.DType)
		}
		ref := sp.handles.Create(t, script.RefArray, s.session)
		return script.Datum{
			Kind: script.KindArray,
			Ref:  ref,
			Elem: script.ElemType{Code: code, Name: t.DType.String()},
		}, nil

	case *ObjArray:
		ref := sp.handles.Create(t, script.RefArray, s.session)
		return script.Datum{
			Kind: script.KindArray,
			Ref:  ref,
			Elem: script.ElemType{Code: t.Elem, Name: t.TypeName},
		}, nil

	case *Record:
		pairs := make([]script.Pair, len(t.Keys))
		for i, k := range t.Keys {
			vd, err := s.describe(sp, t.Values[i])
			if err != nil {
				return script.Datum{}, err
			}
			pairs[i] = script.Pair{Key: script.Str(k), Value: vd}
		}
		return script.Datum{Kind: script.KindRecord, Pairs: pairs}, nil

	case *List:
		items := make([]script.Datum, len(t.Items))
		for i, item := range t.Items {
			d, err := s.describe(sp, item)
			if err != nil {
				return script.Datum{}, err
			}
			items[i] = d
		}
		return script.Datum{Kind: script.KindList, Items: items}, nil

	case *Map:
		pairs, err := s.describePairs(sp, t.Keys, t.Values)
		if err != nil {
			return script.Datum{}, err
		}
		return script.Datum{Kind: script.KindMap, Pairs: pairs}, nil

	case *SortedMap:
		pairs, err := s.describePairs(sp, t.Keys, t.Values)
		if err != nil {
			return script.Datum{}, err
		}
		return script.Datum{
			Kind:  script.KindSortedMap,
			Elem:  script.ElemType{Code: t.KeyCode},
			Pairs: pairs,
		}, nil

	case *Opaque:
		ref := sp.handles.Create(t, script.RefOpaque, s.session)
		return script.Datum{Kind: script.KindOpaque, Ref: ref, TypeName: t.TypeName}, nil
	}

	// Numeric scalars share the boxing path with the host side.
	d, err := script.BoxScalar(v)
	if err != nil {
		return script.Datum{}, fmt.Errorf("value of type %T cannot cross the boundary", v)
	}
	return d, nil
}

func (s *Service) describePairs(sp *Space, keys, values []any) ([]script.Pair, error) {
	pairs := make([]script.Pair, len(keys))
	for i, k := range keys {
		kd, err := s.describe(sp, k)
		if err != nil {
			return nil, err
		}
		vd, err := s.describe(sp, values[i])
		if err != nil {
			return nil, err
		}
		pairs[i] = script.Pair{Key: kd, Value: vd}
	}
	return pairs, nil
}

// reify converts an inbound datum into a space value: the inverse of
// describe, used for member assignments and method arguments.
func (s *Service) reify(sp *Space, d script.Datum) (any, error) {
	switch d.Kind {
	case script.KindNull:
		return nil, nil

	case script.KindString:
		return d.Str, nil

	case script.KindScalar:
		return unboxScalar(d), nil

	case script.KindObject, script.KindCollection, script.KindMethod,
		script.KindArray, script.KindOpaque:
		return s.deref(sp, d.Ref)

	case script.KindRecord:
		r := &Record{}
		for _, p := range d.Pairs {
			v, err := s.reify(sp, p.Value)
			if err != nil {
				return nil, err
			}
			r.Set(p.Key.Str, v)
		}
		return r, nil

	case script.KindList:
		l := &List{Items: make([]any, len(d.Items))}
		for i, item := range d.Items {
			v, err := s.reify(sp, item)
			if err != nil {
				return nil, err
			}
			l.Items[i] = v
		}
		return l, nil

	case script.KindObjectArray:
		arr := &ObjArray{Elem: script.ElemObject, Items: make([]any, len(d.Items))}
		for i, item := range d.Items {
			v, err := s.reify(sp, item)
			if err != nil {
				return nil, err
			}
			arr.Items[i] = v
		}
		return arr, nil

	case script.KindMap:
		m := &Map{}
		for _, p := range d.Pairs {
			k, err := s.reify(sp, p.Key)
			if err != nil {
				return nil, err
			}
			v, err := s.reify(sp, p.Value)
			if err != nil {
				return nil, err
			}
			m.Set(k, v)
		}
		return m, nil

	case script.KindSortedMap:
		m := &SortedMap{KeyCode: d.Elem.Code}
		for _, p := range d.Pairs {
			k, err := s.reify(sp, p.Key)
			if err != nil {
				return nil, err
			}
			v, err := s.reify(sp, p.Value)
			if err != nil {
				return nil, err
			}
			m.Set(k, v)
		}
		return m, nil
	}

	return nil, fmt.Errorf("cannot reify datum kind %s", d.Kind)
}
