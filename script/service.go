package script

import "github.com/chazu/tether/ndarray"

// Service is the call boundary to the remote runtime. Every operation
// blocks the calling goroutine until the remote side responds; the
// marshalling core performs no batching, reordering or retries on top
// of it.
//
// Operations fail with *RemoteError for remote-side failures. Member
// lookups on a missing member fail with a *RemoteError whose message
// starts with "Object has no member: <name>"; the proxy layer depends
// on that exact shape.
type Service interface {
	// GetCurrent resolves a top-level root object by kind name.
	GetCurrent(kind string) (Datum, error)

	// GetMember reads a named member of an object or collection.
	GetMember(ref Ref, name string) (Datum, error)

	// SetMember writes a named member of an object.
	SetMember(ref Ref, name string, value Datum) error

	// MemberNames lists the member names of an object or collection.
	MemberNames(ref Ref) ([]string, error)

	// Invoke calls a remote method. Arguments are a parallel pair of
	// name and value arrays; the remote side has no positional calling
	// convention.
	Invoke(ref Ref, argNames []string, argValues []Datum) (Datum, error)

	// RefsEqual reports whether two handles denote the same remote
	// object.
	RefsEqual(a, b Ref) (bool, error)

	// Count returns the number of elements of a collection or array.
	Count(ref Ref) (int, error)

	// ElementAt reads the element at an index of a collection or array.
	ElementAt(ref Ref, index int) (Datum, error)

	// ElementByKey reads a keyed element of a collection.
	ElementByKey(ref Ref, key string) (Datum, error)

	// Keys lists a collection's keys, in the remote runtime's own
	// element order.
	Keys(ref Ref) ([]string, error)

	// Contains reports whether elem is an element of the collection.
	Contains(ref Ref, elem Ref) (bool, error)

	// IndexOf returns the index of elem in the collection, or -1.
	IndexOf(ref Ref, elem Ref) (int, error)

	// KeyOf returns the key of elem in the collection.
	KeyOf(ref Ref, elem Ref) (string, error)

	// ElementType describes the element type of a remote array.
	ElementType(ref Ref) (ElemType, error)

	// Rank returns the number of dimensions of a remote array.
	Rank(ref Ref) (int, error)

	// Extent returns the extent of one dimension of a remote array.
	Extent(ref Ref, dim int) (int, error)

	// NewArray allocates a zero-filled remote numeric array and returns
	// its array datum.
	NewArray(elem ndarray.DType, shape []int) (Datum, error)

	// Pin pins a remote array's memory and returns its backing bytes in
	// C order. While pinned, the bytes are exclusively the caller's;
	// writes become visible to the remote array no later than Unpin.
	// A pin failure is an unrecoverable resource condition, not a
	// transient one.
	Pin(ref Ref) ([]byte, error)

	// Unpin releases a pin taken with Pin. It must be called on every
	// exit path, including after a failed copy.
	Unpin(ref Ref) error
}
