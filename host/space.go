// Package host implements an in-process script host: an object space
// holding dynamically typed entities, collections, methods and numeric
// arrays, exposed to the marshalling core through the script.Service
// boundary. It is the far side of the bridge when no external runtime
// is attached, and serves as the backing runtime for the wire server.
package host

import (
	"fmt"
	"sync"

	"github.com/chazu/tether/ndarray"
	"github.com/chazu/tether/script"
)

// Entity is a dynamically typed object: a bag of named members.
type Entity struct {
	Members map[string]any
	Doc     string
}

// NewEntity creates an empty entity.
func NewEntity() *Entity {
	return &Entity{Members: make(map[string]any)}
}

// With sets a member and returns the entity, for fluent construction.
func (e *Entity) With(name string, value any) *Entity {
	e.Members[name] = value
	return e
}

// Coll is a keyed, ordered collection of values. Keys and items are
// parallel; iteration order is insertion order on this side of the
// boundary.
type Coll struct {
	keys  []string
	items []any
}

// NewColl creates an empty collection.
func NewColl() *Coll { return &Coll{} }

// Add appends a keyed element.
func (c *Coll) Add(key string, item any) *Coll {
	c.keys = append(c.keys, key)
	c.items = append(c.items, item)
	return c
}

// Len returns the number of elements.
func (c *Coll) Len() int { return len(c.items) }

// At returns the element at index i.
func (c *Coll) At(i int) any { return c.items[i] }

// Keys returns the element keys in order.
func (c *Coll) Keys() []string { return append([]string(nil), c.keys...) }

// Method is an invokable member of the space. Arguments arrive as a
// name -> value map; there is no positional calling convention.
type Method struct {
	Doc string
	Fn  func(args map[string]any) (any, error)
}

// NumArray is a numeric array backed by a flat little-endian byte
// buffer, with a pin count guarding bulk copies.
type NumArray struct {
	DType ndarray.DType
	Shape []int
	Data  []byte

	pins int
}

// NewNumArray allocates a zero-filled numeric array.
func NewNumArray(dtype ndarray.DType, shape ...int) *NumArray {
	n := 1
	for _, ext := range shape {
		n *= ext
	}
	return &NumArray{
		DType: dtype,
		Shape: append([]int(nil), shape...),
		Data:  make([]byte, n*dtype.Size()),
	}
}

// FromNDArray copies a host buffer into a new NumArray.
func FromNDArray(a *ndarray.Array) *NumArray {
	a = a.AsContiguous()
	na := NewNumArray(a.DType(), a.Shape()...)
	copy(na.Data, a.Bytes())
	return na
}

// ObjArray is a fixed-size array of non-numeric elements: strings,
// entities, or nested arrays. Elem records the element classification.
type ObjArray struct {
	Elem     script.ElemCode
	TypeName string
	Items    []any
}

// Record is an expando-style dynamic record. Conversion to the host
// side copies the pairs once; the record itself is never written back.
type Record struct {
	Keys   []string
	Values []any
}

// Set appends or replaces a field.
func (r *Record) Set(key string, value any) *Record {
	for i, k := range r.Keys {
		if k == key {
			r.Values[i] = value
			return r
		}
	}
	r.Keys = append(r.Keys, key)
	r.Values = append(r.Values, value)
	return r
}

// List is a growable generic list.
type List struct {
	Items []any
}

// Map is a generic unordered map.
type Map struct {
	Keys   []any
	Values []any
}

// Set appends a pair.
func (m *Map) Set(key, value any) *Map {
	m.Keys = append(m.Keys, key)
	m.Values = append(m.Values, value)
	return m
}

// SortedMap is an ordered map with a declared key type. Entries are
// kept in the order given; the space trusts the caller to keep them
// sorted, as the remote runtime it stands in for would.
type SortedMap struct {
	KeyCode script.ElemCode
	Keys    []any
	Values  []any
}

// Set appends a pair.
func (m *SortedMap) Set(key, value any) *SortedMap {
	m.Keys = append(m.Keys, key)
	m.Values = append(m.Values, value)
	return m
}

// Opaque is a remote value with no host equivalent (dates, colors).
// It crosses the boundary as a handle and comes back unchanged.
type Opaque struct {
	TypeName string
	Value    any
}

// Space is the object space: the root objects plus the handle table
// that maps opaque IDs to live values. All access must be serialized
// through a Worker; Space itself only guards the handle table.
type Space struct {
	mu    sync.RWMutex
	roots map[string]any

	handles *HandleStore
}

// NewSpace creates an empty object space.
func NewSpace() *Space {
	return &Space{
		roots:   make(map[string]any),
		handles: NewHandleStore(),
	}
}

// SetRoot registers a root object reachable through GetCurrent.
func (s *Space) SetRoot(kind string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots[kind] = value
}

// Root resolves a root object by kind.
func (s *Space) Root(kind string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.roots[kind]
	if !ok {
		return nil, fmt.Errorf("no current object of type %q", kind)
	}
	return v, nil
}

// Handles exposes the handle table, mainly for sweeping and tests.
func (s *Space) Handles() *HandleStore { return s.handles }
