package script

import (
	"fmt"
	"iter"
)

// ---------------------------------------------------------------------------
// Object proxy
// ---------------------------------------------------------------------------

// Object wraps a remote object handle and exposes its dynamically
// typed members through explicit Get/Set calls. Every value crossing
// the boundary is normalized: results through ToHost, assignments
// through ToRemote.
type Object struct {
	svc Service
	ref Ref
}

// NewObject wraps a remote object handle.
func NewObject(svc Service, ref Ref) *Object {
	return &Object{svc: svc, ref: ref}
}

// Ref returns the underlying remote handle.
func (o *Object) Ref() Ref { return o.ref }

// Get reads a member. A remote "Object has no member" failure is
// reported as *AttributeError so existence checks can distinguish a
// missing member from a broken call; any other remote failure
// propagates unchanged.
func (o *Object) Get(name string) (any, error) {
	d, err := o.svc.GetMember(o.ref, name)
	if err != nil {
		if isNoMember(err) {
			return nil, &AttributeError{Member: name, Msg: err.Error()}
		}
		return nil, err
	}
	return ToHost(o.svc, d)
}

// Set writes a member, normalizing the value on the way out.
func (o *Object) Set(name string, value any) error {
	d, err := ToRemote(o.svc, value)
	if err != nil {
		return err
	}
	return o.svc.SetMember(o.ref, name, d)
}

// Has reports whether the object has a member with the given name.
// Only the "no such member" signal maps to false; other failures are
// returned.
func (o *Object) Has(name string) (bool, error) {
	_, err := o.Get(name)
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*AttributeError); ok {
		return false, nil
	}
	return false, err
}

// Members lists the object's member names.
func (o *Object) Members() ([]string, error) {
	return o.svc.MemberNames(o.ref)
}

// Equals reports whether two proxies denote the same remote object.
func (o *Object) Equals(other *Object) (bool, error) {
	return o.svc.RefsEqual(o.ref, other.ref)
}

// Doc returns the remote documentation string for the object's type.
func (o *Object) Doc() (string, error) {
	d, err := o.svc.GetMember(o.ref, "__doc__")
	if err != nil {
		return "", err
	}
	return d.Str, nil
}

func (o *Object) String() string {
	return fmt.Sprintf("Object(%s)", o.ref)
}

// ---------------------------------------------------------------------------
// Collection proxy
// ---------------------------------------------------------------------------

// Collection wraps a remote collection handle. Elements can be looked
// up by index or key, and every element returned is normalized through
// ToHost before the caller sees it.
type Collection struct {
	svc Service
	ref Ref
}

// NewCollection wraps a remote collection handle.
func NewCollection(svc Service, ref Ref) *Collection {
	return &Collection{svc: svc, ref: ref}
}

// Ref returns the underlying remote handle.
func (c *Collection) Ref() Ref { return c.ref }

// Len returns the number of elements.
func (c *Collection) Len() (int, error) {
	return c.svc.Count(c.ref)
}

// At returns the element at an index.
func (c *Collection) At(index int) (any, error) {
	d, err := c.svc.ElementAt(c.ref, index)
	if err != nil {
		return nil, err
	}
	return ToHost(c.svc, d)
}

// ByKey returns the element with the given key.
func (c *Collection) ByKey(key string) (any, error) {
	d, err := c.svc.ElementByKey(c.ref, key)
	if err != nil {
		return nil, err
	}
	return ToHost(c.svc, d)
}

// Get reads a named member of the collection itself.
func (c *Collection) Get(name string) (any, error) {
	d, err := c.svc.GetMember(c.ref, name)
	if err != nil {
		if isNoMember(err) {
			return nil, &AttributeError{Member: name, Msg: err.Error()}
		}
		return nil, err
	}
	return ToHost(c.svc, d)
}

// Keys returns the collection's keys in the remote runtime's element
// order.
func (c *Collection) Keys() ([]string, error) {
	return c.svc.Keys(c.ref)
}

// Values returns the elements in key order.
func (c *Collection) Values() ([]any, error) {
	keys, err := c.Keys()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(keys))
	for i, k := range keys {
		if out[i], err = c.ByKey(k); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Contains reports whether the proxy's element is in the collection.
func (c *Collection) Contains(o *Object) (bool, error) {
	return c.svc.Contains(c.ref, o.ref)
}

// IndexOf returns the index of the element in the collection, or -1.
func (c *Collection) IndexOf(o *Object) (int, error) {
	return c.svc.IndexOf(c.ref, o.ref)
}

// KeyOf returns the key of the element in the collection.
func (c *Collection) KeyOf(o *Object) (string, error) {
	return c.svc.KeyOf(c.ref, o.ref)
}

// Each calls fn for each element in index order, stopping early when fn
// returns false. Every step re-fetches by index against the live remote
// collection; no snapshot is taken, so remote-side mutation during
// iteration gives undefined results.
func (c *Collection) Each(fn func(index int, value any) bool) error {
	n, err := c.Len()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		v, err := c.At(i)
		if err != nil {
			return err
		}
		if !fn(i, v) {
			return nil
		}
	}
	return nil
}

// All returns a restartable index-based iterator over the elements.
// Iteration stops silently on a remote failure; use Each when the
// error matters.
func (c *Collection) All() iter.Seq2[int, any] {
	return func(yield func(int, any) bool) {
		c.Each(yield)
	}
}

func (c *Collection) String() string {
	return fmt.Sprintf("Collection(%s)", c.ref)
}

// ---------------------------------------------------------------------------
// Method proxy
// ---------------------------------------------------------------------------

// Arg is one named argument of a remote method invocation.
type Arg struct {
	Name  string
	Value any
}

// Named builds a named argument.
func Named(name string, value any) Arg {
	return Arg{Name: name, Value: value}
}

// Method wraps a remote method handle.
type Method struct {
	svc Service
	ref Ref
}

// NewMethod wraps a remote method handle.
func NewMethod(svc Service, ref Ref) *Method {
	return &Method{svc: svc, ref: ref}
}

// Ref returns the underlying remote handle.
func (m *Method) Ref() Ref { return m.ref }

// Call invokes the remote method. The remote invocation protocol takes
// a parallel pair of argument-name and argument-value arrays, so every
// argument must be named; an unnamed argument is a usage error, not
// something this layer can paper over. Argument values are normalized
// through ToRemote and the result through ToHost.
func (m *Method) Call(args ...Arg) (any, error) {
	names := make([]string, len(args))
	values := make([]Datum, len(args))
	for i, a := range args {
		if a.Name == "" {
			return nil, usageErrorf("method must be called with named arguments")
		}
		d, err := ToRemote(m.svc, a.Value)
		if err != nil {
			return nil, err
		}
		names[i] = a.Name
		values[i] = d
	}
	out, err := m.svc.Invoke(m.ref, names, values)
	if err != nil {
		return nil, err
	}
	return ToHost(m.svc, out)
}

// Doc returns the remote help text for the method.
func (m *Method) Doc() (string, error) {
	d, err := m.svc.GetMember(m.ref, "_help")
	if err != nil {
		return "", err
	}
	return d.Str, nil
}

func (m *Method) String() string {
	return fmt.Sprintf("Method(%s)", m.ref)
}
