package host

import (
	"fmt"
	"sort"

	"github.com/chazu/tether/ndarray"
	"github.com/chazu/tether/script"
)

// Service exposes a Space through the script.Service call boundary.
// Every operation is serialized through the worker; failures surface
// as *script.RemoteError, with missing members reported in the exact
// "Object has no member: <name>" shape the proxy layer matches on.
type Service struct {
	worker  *Worker
	session string
}

// NewService creates a Service bound to a session ID. Handles created
// by its calls are owned by that session.
func NewService(worker *Worker, session string) *Service {
	return &Service{worker: worker, session: session}
}

var _ script.Service = (*Service)(nil)

// do runs fn on the space goroutine and normalizes failures into
// RemoteError.
func (s *Service) do(op string, fn func(sp *Space) (any, error)) (any, error) {
	v, err := s.worker.Do(func(sp *Space) any {
		res, ferr := fn(sp)
		if ferr != nil {
			return ferr
		}
		return res
	})
	if err != nil {
		return nil, &script.RemoteError{Op: op, Msg: err.Error()}
	}
	if ferr, ok := v.(error); ok {
		if re, isRemote := ferr.(*script.RemoteError); isRemote {
			return nil, re
		}
		return nil, &script.RemoteError{Op: op, Msg: ferr.Error()}
	}
	return v, nil
}

func noMemberErr(name string) error {
	return fmt.Errorf("Object has no member: %s", name)
}

// ---------------------------------------------------------------------------
// Object operations
// ---------------------------------------------------------------------------

// GetCurrent resolves a root object by kind name.
func (s *Service) GetCurrent(kind string) (script.Datum, error) {
	v, err := s.do("GetCurrent", func(sp *Space) (any, error) {
		root, err := sp.Root(kind)
		if err != nil {
			return nil, err
		}
		return s.describe(sp, root)
	})
	if err != nil {
		return script.Datum{}, err
	}
	return v.(script.Datum), nil
}

// GetMember reads a named member of an object or collection.
func (s *Service) GetMember(ref script.Ref, name string) (script.Datum, error) {
	v, err := s.do("GetMember", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		switch t := target.(type) {
		case *Entity:
			m, ok := t.Members[name]
			if !ok {
				if name == "__doc__" {
					return script.Str(t.Doc), nil
				}
				return nil, noMemberErr(name)
			}
			return s.describe(sp, m)
		case *Coll:
			if name == "Count" {
				bits, _ := ndarray.PackScalar(ndarray.Int32, t.Len())
				return script.Scalar(ndarray.Int32, bits), nil
			}
			return nil, noMemberErr(name)
		case *Method:
			if name == "_help" || name == "__doc__" {
				return script.Str(t.Doc), nil
			}
			return nil, noMemberErr(name)
		default:
			return nil, fmt.Errorf("%s does not support member access", ref.Kind)
		}
	})
	if err != nil {
		return script.Datum{}, err
	}
	return v.(script.Datum), nil
}

// SetMember writes a named member of an object. The member must
// already exist; writing an unknown name reports the same "no member"
// signal as reading one.
func (s *Service) SetMember(ref script.Ref, name string, value script.Datum) error {
	_, err := s.do("SetMember", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		ent, ok := target.(*Entity)
		if !ok {
			return nil, fmt.Errorf("%s does not support member assignment", ref.Kind)
		}
		if _, ok := ent.Members[name]; !ok {
			return nil, noMemberErr(name)
		}
		v, err := s.reify(sp, value)
		if err != nil {
			return nil, err
		}
		ent.Members[name] = v
		return nil, nil
	})
	return err
}

// MemberNames lists the member names of an object or collection.
func (s *Service) MemberNames(ref script.Ref) ([]string, error) {
	v, err := s.do("MemberNames", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		switch t := target.(type) {
		case *Entity:
			names := make([]string, 0, len(t.Members))
			for name := range t.Members {
				names = append(names, name)
			}
			sort.Strings(names)
			return names, nil
		case *Coll:
			names := []string{"Count"}
			names = append(names, t.keys...)
			return names, nil
		default:
			return nil, fmt.Errorf("%s does not support member listing", ref.Kind)
		}
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Invoke calls a method handle with named arguments.
func (s *Service) Invoke(ref script.Ref, argNames []string, argValues []script.Datum) (script.Datum, error) {
	v, err := s.do("Invoke", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		m, ok := target.(*Method)
		if !ok {
			return nil, fmt.Errorf("%s is not invokable", ref.Kind)
		}
		if len(argNames) != len(argValues) {
			return nil, fmt.Errorf("argument names and values differ in length")
		}
		args := make(map[string]any, len(argNames))
		for i, name := range argNames {
			if args[name], err = s.reify(sp, argValues[i]); err != nil {
				return nil, err
			}
		}
		out, err := m.Fn(args)
		if err != nil {
			return nil, err
		}
		return s.describe(sp, out)
	})
	if err != nil {
		return script.Datum{}, err
	}
	return v.(script.Datum), nil
}

// RefsEqual reports whether two handles denote the same value.
func (s *Service) RefsEqual(a, b script.Ref) (bool, error) {
	v, err := s.do("RefsEqual", func(sp *Space) (any, error) {
		va, err := s.deref(sp, a)
		if err != nil {
			return nil, err
		}
		vb, err := s.deref(sp, b)
		if err != nil {
			return nil, err
		}
		return sameIdentity(va, vb), nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// sameIdentity compares two space values by identity for reference
// types and by value for scalars.
func sameIdentity(a, b any) bool {
	switch x := a.(type) {
	case *Entity:
		y, ok := b.(*Entity)
		return ok && x == y
	case *Coll:
		y, ok := b.(*Coll)
		return ok && x == y
	case *Method:
		y, ok := b.(*Method)
		return ok && x == y
	case *NumArray:
		y, ok := b.(*NumArray)
		return ok && x == y
	case *ObjArray:
		y, ok := b.(*ObjArray)
		return ok && x == y
	case *Opaque:
		y, ok := b.(*Opaque)
		return ok && x == y
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return a == b
	}
	return false
}

// ---------------------------------------------------------------------------
// Collection operations
// ---------------------------------------------------------------------------

// Count returns the number of elements of a collection or array.
func (s *Service) Count(ref script.Ref) (int, error) {
	v, err := s.do("Count", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		switch t := target.(type) {
		case *Coll:
			return t.Len(), nil
		case *ObjArray:
			return len(t.Items), nil
		case *NumArray:
			return t.numElems(), nil
		default:
			return nil, fmt.Errorf("%s has no element count", ref.Kind)
		}
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// ElementAt reads the element at an index of a collection or object
// array.
func (s *Service) ElementAt(ref script.Ref, index int) (script.Datum, error) {
	v, err := s.do("ElementAt", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		switch t := target.(type) {
		case *Coll:
			if index < 0 || index >= t.Len() {
				return nil, fmt.Errorf("index %d out of range (count %d)", index, t.Len())
			}
			return s.describe(sp, t.items[index])
		case *ObjArray:
			if index < 0 || index >= len(t.Items) {
				return nil, fmt.Errorf("index %d out of range (count %d)", index, len(t.Items))
			}
			return s.describe(sp, t.Items[index])
		default:
			return nil, fmt.Errorf("%s does not support indexing", ref.Kind)
		}
	})
	if err != nil {
		return script.Datum{}, err
	}
	return v.(script.Datum), nil
}

// ElementByKey reads a keyed element of a collection.
func (s *Service) ElementByKey(ref script.Ref, key string) (script.Datum, error) {
	v, err := s.do("ElementByKey", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		c, ok := target.(*Coll)
		if !ok {
			return nil, fmt.Errorf("%s does not support keyed access", ref.Kind)
		}
		for i, k := range c.keys {
			if k == key {
				return s.describe(sp, c.items[i])
			}
		}
		return nil, fmt.Errorf("no element with key %q", key)
	})
	if err != nil {
		return script.Datum{}, err
	}
	return v.(script.Datum), nil
}

// Keys lists a collection's element keys in element order.
func (s *Service) Keys(ref script.Ref) ([]string, error) {
	v, err := s.do("Keys", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		c, ok := target.(*Coll)
		if !ok {
			return nil, fmt.Errorf("%s has no keys", ref.Kind)
		}
		return c.Keys(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Contains reports whether elem is an element of the collection.
func (s *Service) Contains(ref script.Ref, elem script.Ref) (bool, error) {
	i, err := s.IndexOf(ref, elem)
	if err != nil {
		return false, err
	}
	return i >= 0, nil
}

// IndexOf returns the index of elem in the collection, or -1.
func (s *Service) IndexOf(ref script.Ref, elem script.Ref) (int, error) {
	v, err := s.do("IndexOf", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		want, err := s.deref(sp, elem)
		if err != nil {
			return nil, err
		}
		c, ok := target.(*Coll)
		if !ok {
			return nil, fmt.Errorf("%s does not support element search", ref.Kind)
		}
		for i, item := range c.items {
			if sameIdentity(item, want) {
				return i, nil
			}
		}
		return -1, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// KeyOf returns the key of elem in the collection.
func (s *Service) KeyOf(ref script.Ref, elem script.Ref) (string, error) {
	i, err := s.IndexOf(ref, elem)
	if err != nil {
		return "", err
	}
	if i < 0 {
		return "", &script.RemoteError{Op: "KeyOf", Msg: "element is not in the collection"}
	}
	v, err := s.do("KeyOf", func(sp *Space) (any, error) {
		target, _ := s.deref(sp, ref)
		return target.(*Coll).keys[i], nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ---------------------------------------------------------------------------
// Array operations
// ---------------------------------------------------------------------------

func (a *NumArray) numElems() int {
	n := 1
	for _, ext := range a.Shape {
		n *= ext
	}
	return n
}

// ElementType describes the element type of an array handle.
func (s *Service) ElementType(ref script.Ref) (script.ElemType, error) {
	v, err := s.do("ElementType", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		switch t := target.(type) {
		case *NumArray:
			code, ok := script.ElemForDType(t.DType)
			if !ok {
				return nil, fmt.Errorf("array has unrepresentable dtype %s", t.DType)
			}
			return script.ElemType{Code: code, Name: t.DType.String()}, nil
		case *ObjArray:
			return script.ElemType{Code: t.Elem, Name: t.TypeName}, nil
		default:
			return nil, fmt.Errorf("%s is not an array", ref.Kind)
		}
	})
	if err != nil {
		return script.ElemType{}, err
	}
	return v.(script.ElemType), nil
}

// Rank returns an array's number of dimensions.
func (s *Service) Rank(ref script.Ref) (int, error) {
	v, err := s.do("Rank", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		switch t := target.(type) {
		case *NumArray:
			return len(t.Shape), nil
		case *ObjArray:
			return 1, nil
		default:
			return nil, fmt.Errorf("%s is not an array", ref.Kind)
		}
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Extent returns the extent of one dimension of an array.
func (s *Service) Extent(ref script.Ref, dim int) (int, error) {
	v, err := s.do("Extent", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		switch t := target.(type) {
		case *NumArray:
			if dim < 0 || dim >= len(t.Shape) {
				return nil, fmt.Errorf("dimension %d out of range (rank %d)", dim, len(t.Shape))
			}
			return t.Shape[dim], nil
		case *ObjArray:
			if dim != 0 {
				return nil, fmt.Errorf("dimension %d out of range (rank 1)", dim)
			}
			return len(t.Items), nil
		default:
			return nil, fmt.Errorf("%s is not an array", ref.Kind)
		}
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// NewArray allocates a zero-filled numeric array and returns its datum.
func (s *Service) NewArray(elem ndarray.DType, shape []int) (script.Datum, error) {
	v, err := s.do("NewArray", func(sp *Space) (any, error) {
		if !elem.Valid() {
			return nil, fmt.Errorf("invalid element dtype %d", uint8(elem))
		}
		arr := NewNumArray(elem, shape...)
		return s.describe(sp, arr)
	})
	if err != nil {
		return script.Datum{}, err
	}
	return v.(script.Datum), nil
}

// Pin pins an array's buffer and returns its backing bytes. In-process
// the caller sees the live storage, so writes land directly.
func (s *Service) Pin(ref script.Ref) ([]byte, error) {
	v, err := s.do("Pin", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		arr, ok := target.(*NumArray)
		if !ok {
			return nil, fmt.Errorf("%s cannot be pinned", ref.Kind)
		}
		arr.pins++
		return arr.Data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Unpin releases a pin taken with Pin.
func (s *Service) Unpin(ref script.Ref) error {
	_, err := s.do("Unpin", func(sp *Space) (any, error) {
		target, err := s.deref(sp, ref)
		if err != nil {
			return nil, err
		}
		arr, ok := target.(*NumArray)
		if !ok {
			return nil, fmt.Errorf("%s cannot be unpinned", ref.Kind)
		}
		if arr.pins <= 0 {
			return nil, fmt.Errorf("array is not pinned")
		}
		arr.pins--
		return nil, nil
	})
	return err
}

// Publish registers a space value and returns the datum a remote
// caller would receive for it. This is how embedders seed values that
// are not reachable from a root.
func (s *Service) Publish(v any) (script.Datum, error) {
	r, err := s.do("Publish", func(sp *Space) (any, error) {
		return s.describe(sp, v)
	})
	if err != nil {
		return script.Datum{}, err
	}
	return r.(script.Datum), nil
}

// deref resolves a reference through the handle table.
func (s *Service) deref(sp *Space, ref script.Ref) (any, error) {
	v, ok := sp.handles.Lookup(ref)
	if !ok {
		return nil, fmt.Errorf("handle %q not found", ref.ID)
	}
	return v, nil
}

// Release drops a single handle. The host side performs no explicit
// release during normal operation; this exists for session teardown
// and tests.
func (s *Service) Release(ref script.Ref) {
	s.worker.Do(func(sp *Space) any {
		sp.handles.Release(ref)
		return nil
	})
}

// EndSession drops every handle owned by this service's session.
func (s *Service) EndSession() {
	s.worker.Do(func(sp *Space) any {
		sp.handles.ReleaseSession(s.session)
		return nil
	})
}
