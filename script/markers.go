package script

import (
	"fmt"
	"iter"
	"sort"
	"strconv"

	"github.com/chazu/tether/ndarray"
)

// ---------------------------------------------------------------------------
// ArrayList
// ---------------------------------------------------------------------------

// ArrayList is the list marker: a sequence that, when sent to the
// remote runtime, is materialized as a fixed-size object array rather
// than a growable list. Inbound jagged and string arrays also arrive
// as ArrayList so they round-trip as arrays.
type ArrayList []any

// ---------------------------------------------------------------------------
// SortedDict
// ---------------------------------------------------------------------------

// SortedDict is the ordered-map marker: a key/value mapping that, when
// sent to the remote runtime, is materialized as an ordered map keyed
// by a single declared key type. Keys inserted after construction are
// coerced to the declared type; keys that cannot be coerced are
// rejected. Iteration is in ascending key order.
type SortedDict struct {
	keyType ElemCode
	entries map[any]any
}

// NewSortedDict creates a SortedDict. Exactly one of the two arguments
// must be supplied: a declared key type (with init nil) for an empty
// dict, or initial entries (with keyType ElemNone) whose key type is
// taken from the entries themselves. Supplying both, or neither, is a
// usage error.
//
// The declared key type must be one of the numeric element codes or
// ElemString.
func NewSortedDict(keyType ElemCode, init map[any]any) (*SortedDict, error) {
	if keyType != ElemNone && init != nil {
		return nil, usageErrorf("sorted dict: a key type may only be declared when no initial entries are given")
	}
	if keyType == ElemNone && init == nil {
		return nil, usageErrorf("sorted dict: either a key type or initial entries are required")
	}

	d := &SortedDict{keyType: keyType, entries: make(map[any]any)}

	if init != nil {
		for k := range init {
			inferred, err := keyCodeFor(k)
			if err != nil {
				return nil, err
			}
			if d.keyType == ElemNone {
				d.keyType = inferred
			} else if d.keyType != inferred {
				return nil, usageErrorf("sorted dict: mixed key types %s and %s", d.keyType, inferred)
			}
		}
		for k, v := range init {
			if err := d.Set(k, v); err != nil {
				return nil, err
			}
		}
		return d, nil
	}

	if !keyCodeUsable(keyType) {
		return nil, usageErrorf("sorted dict: %s is not a valid key type", keyType)
	}
	return d, nil
}

// sortedDictFromPairs builds a SortedDict during normalization of an
// inbound ordered-map datum. Internal; bypasses the mutual-exclusion
// check because both the key type and the data come from the same
// remote value.
func sortedDictFromPairs(keyType ElemCode) *SortedDict {
	return &SortedDict{keyType: keyType, entries: make(map[any]any)}
}

// KeyType returns the declared key type.
func (d *SortedDict) KeyType() ElemCode { return d.keyType }

// Len returns the number of entries.
func (d *SortedDict) Len() int { return len(d.entries) }

// Set inserts or replaces an entry. The key is coerced to the declared
// key type before insertion; a key that cannot represent the declared
// type is a usage error.
func (d *SortedDict) Set(key, value any) error {
	ck, err := coerceKey(key, d.keyType)
	if err != nil {
		return err
	}
	d.entries[ck] = value
	return nil
}

// Get looks up an entry, coercing the key the same way Set does.
func (d *SortedDict) Get(key any) (any, bool) {
	ck, err := coerceKey(key, d.keyType)
	if err != nil {
		return nil, false
	}
	v, ok := d.entries[ck]
	return v, ok
}

// Delete removes an entry if present.
func (d *SortedDict) Delete(key any) {
	if ck, err := coerceKey(key, d.keyType); err == nil {
		delete(d.entries, ck)
	}
}

// Keys returns the keys in ascending order.
func (d *SortedDict) Keys() []any {
	keys := make([]any, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	return keys
}

// All iterates entries in ascending key order.
func (d *SortedDict) All() iter.Seq2[any, any] {
	return func(yield func(any, any) bool) {
		for _, k := range d.Keys() {
			if !yield(k, d.entries[k]) {
				return
			}
		}
	}
}

func (d *SortedDict) String() string {
	return fmt.Sprintf("SortedDict(key=%s, len=%d)", d.keyType, len(d.entries))
}

// ---------------------------------------------------------------------------
// Key coercion
// ---------------------------------------------------------------------------

// keyCodeUsable reports whether code may be declared as a sorted-dict
// key type.
func keyCodeUsable(code ElemCode) bool {
	if code == ElemString {
		return true
	}
	_, ok := elemToDType[code]
	return ok
}

// keyCodeFor infers the key code from a key's runtime type.
func keyCodeFor(key any) (ElemCode, error) {
	if _, ok := key.(string); ok {
		return ElemString, nil
	}
	boxed, err := BoxScalar(key)
	if err != nil {
		return ElemNone, usageErrorf("sorted dict: %T cannot be a key", key)
	}
	code, _ := dtypeToElem[boxed.Num]
	return code, nil
}

// coerceKey converts key to the canonical host scalar for the declared
// key type.
func coerceKey(key any, keyType ElemCode) (any, error) {
	if keyType == ElemString {
		switch k := key.(type) {
		case string:
			return k, nil
		case bool:
			return strconv.FormatBool(k), nil
		default:
			if isNumericScalar(key) {
				return fmt.Sprint(key), nil
			}
			return nil, usageErrorf("sorted dict: cannot coerce %T key to string", key)
		}
	}

	dt, ok := elemToDType[keyType]
	if !ok {
		return nil, usageErrorf("sorted dict: %s is not a valid key type", keyType)
	}
	bits, ok := ndarray.PackScalar(dt, key)
	if !ok {
		return nil, usageErrorf("sorted dict: cannot coerce %T key to %s", key, dt)
	}
	return ndarray.UnpackScalar(dt, bits), nil
}

// keyLess orders two coerced keys of the same declared type.
func keyLess(a, b any) bool {
	switch x := a.(type) {
	case string:
		return x < b.(string)
	case bool:
		return !x && b.(bool)
	case float32:
		return x < b.(float32)
	case float64:
		return x < b.(float64)
	case uint8:
		return x < b.(uint8)
	case uint16:
		return x < b.(uint16)
	case uint32:
		return x < b.(uint32)
	case uint64:
		return x < b.(uint64)
	case int8:
		return x < b.(int8)
	case int16:
		return x < b.(int16)
	case int32:
		return x < b.(int32)
	case int64:
		return x < b.(int64)
	}
	return false
}
