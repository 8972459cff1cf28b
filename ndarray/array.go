// Package ndarray implements the host-side numeric buffer: a
// multi-dimensional array over a closed set of numeric element types,
// backed by a flat byte slice so that boundary crossings can use bulk
// memory copies instead of per-element marshalling.
package ndarray

import (
	"bytes"
	"fmt"
)

// Array is a multi-dimensional numeric buffer.
//
// The backing data is a flat byte slice addressed through byte strides,
// which lets Slice produce views without copying. A freshly allocated
// Array is always C-order contiguous; views may not be.
type Array struct {
	dtype   DType
	shape   []int
	strides []int // byte strides per dimension
	data    []byte
	offset  int // byte offset of element (0,...,0) into data
}

// Zeros allocates a zero-initialized array of the given dtype and shape.
// A zero extent in any dimension yields a valid empty array.
// Panics if dtype is invalid or any extent is negative.
func Zeros(dtype DType, shape ...int) *Array {
	if !dtype.Valid() {
		panic("ndarray: Zeros: invalid dtype")
	}
	n := 1
	for _, ext := range shape {
		if ext < 0 {
			panic("ndarray: Zeros: negative extent")
		}
		n *= ext
	}
	a := &Array{
		dtype: dtype,
		shape: append([]int(nil), shape...),
		data:  make([]byte, n*dtype.Size()),
	}
	a.strides = contiguousStrides(dtype, shape)
	return a
}

// contiguousStrides computes C-order (row-major) byte strides.
func contiguousStrides(dtype DType, shape []int) []int {
	strides := make([]int, len(shape))
	stride := dtype.Size()
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Rank returns the number of dimensions.
func (a *Array) Rank() int { return len(a.shape) }

// Shape returns a copy of the per-dimension extents.
func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

// Extent returns the extent of dimension dim.
func (a *Array) Extent(dim int) int { return a.shape[dim] }

// NumElems returns the total number of elements.
func (a *Array) NumElems() int {
	n := 1
	for _, ext := range a.shape {
		n *= ext
	}
	return n
}

// NumBytes returns the total payload size in bytes.
func (a *Array) NumBytes() int { return a.NumElems() * a.dtype.Size() }

// IsContiguous reports whether the array occupies a single C-order run
// of bytes starting at its offset. Zero-element arrays are trivially
// contiguous.
func (a *Array) IsContiguous() bool {
	if a.NumElems() == 0 {
		return true
	}
	stride := a.dtype.Size()
	for i := len(a.shape) - 1; i >= 0; i-- {
		if a.shape[i] == 1 {
			continue
		}
		if a.strides[i] != stride {
			return false
		}
		stride *= a.shape[i]
	}
	return true
}

// AsContiguous returns a itself if it is already contiguous, otherwise
// a freshly allocated contiguous copy with the same dtype, shape and
// element values.
func (a *Array) AsContiguous() *Array {
	if a.IsContiguous() {
		return a
	}
	out := Zeros(a.dtype, a.shape...)
	size := a.dtype.Size()
	idx := make([]int, a.Rank())
	for i := 0; i < a.NumElems(); i++ {
		src := a.byteOffset(idx)
		copy(out.data[i*size:(i+1)*size], a.data[src:src+size])
		incIndex(idx, a.shape)
	}
	return out
}

// Bytes returns the raw backing bytes of a contiguous array.
// Panics on non-contiguous views; call AsContiguous first.
func (a *Array) Bytes() []byte {
	if !a.IsContiguous() {
		panic("ndarray: Bytes: array is not contiguous")
	}
	return a.data[a.offset : a.offset+a.NumBytes()]
}

// byteOffset computes the byte position of the element at idx.
func (a *Array) byteOffset(idx []int) int {
	off := a.offset
	for i, j := range idx {
		off += j * a.strides[i]
	}
	return off
}

// incIndex advances a multi-dimensional index in C order.
func incIndex(idx, shape []int) {
	for i := len(idx) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < shape[i] {
			return
		}
		idx[i] = 0
	}
}

// Get returns the element at idx as the Go scalar matching the dtype
// (bool, int8 ... uint64, float32, float64).
// Panics if idx is out of range or has the wrong rank.
func (a *Array) Get(idx ...int) any {
	a.checkIndex(idx)
	return valueFor(a.dtype, a.loadBits(a.byteOffset(idx)))
}

// Set stores v at idx. Integer and float Go scalars are accepted for
// the matching dtype families; anything else panics.
func (a *Array) Set(v any, idx ...int) {
	a.checkIndex(idx)
	bits, ok := bitsFor(a.dtype, v)
	if !ok {
		panic(fmt.Sprintf("ndarray: Set: cannot store %T into %s array", v, a.dtype))
	}
	a.storeBits(a.byteOffset(idx), bits)
}

func (a *Array) checkIndex(idx []int) {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("ndarray: index rank %d does not match array rank %d", len(idx), len(a.shape)))
	}
	for i, j := range idx {
		if j < 0 || j >= a.shape[i] {
			panic(fmt.Sprintf("ndarray: index %d out of range for dimension %d (extent %d)", j, i, a.shape[i]))
		}
	}
}

func (a *Array) loadBits(off int) uint64 {
	var bits uint64
	for i := 0; i < a.dtype.Size(); i++ {
		bits |= uint64(a.data[off+i]) << (8 * i)
	}
	return bits
}

func (a *Array) storeBits(off int, bits uint64) {
	for i := 0; i < a.dtype.Size(); i++ {
		a.data[off+i] = byte(bits >> (8 * i))
	}
}

// Slice returns a view of dimension 0 restricted to [start, stop) with
// the given step. The view shares backing storage with a; a step other
// than 1 produces a non-contiguous view.
// Panics if a has rank 0, step < 1, or the bounds are out of range.
func (a *Array) Slice(start, stop, step int) *Array {
	if a.Rank() == 0 {
		panic("ndarray: Slice: cannot slice a rank-0 array")
	}
	if step < 1 {
		panic("ndarray: Slice: step must be >= 1")
	}
	if start < 0 || stop < start || stop > a.shape[0] {
		panic("ndarray: Slice: bounds out of range")
	}
	n := (stop - start + step - 1) / step
	shape := append([]int(nil), a.shape...)
	shape[0] = n
	strides := append([]int(nil), a.strides...)
	strides[0] = a.strides[0] * step
	return &Array{
		dtype:   a.dtype,
		shape:   shape,
		strides: strides,
		data:    a.data,
		offset:  a.offset + start*a.strides[0],
	}
}

// Equal reports whether two arrays have the same dtype, shape and
// element-wise byte-identical values. Float NaNs compare by bit
// pattern, not IEEE semantics.
func Equal(a, b *Array) bool {
	if a.dtype != b.dtype || len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return bytes.Equal(a.AsContiguous().Bytes(), b.AsContiguous().Bytes())
}

// FromBytes builds a contiguous array over a copy of raw little-endian
// element bytes. Returns an error if the payload size does not match
// the shape.
func FromBytes(dtype DType, shape []int, raw []byte) (*Array, error) {
	a := Zeros(dtype, shape...)
	if len(raw) != a.NumBytes() {
		return nil, fmt.Errorf("ndarray: payload is %d bytes, want %d for %s%v", len(raw), a.NumBytes(), dtype, shape)
	}
	copy(a.data, raw)
	return a, nil
}

func (a *Array) String() string {
	return fmt.Sprintf("ndarray.Array(%s, shape=%v)", a.dtype, a.shape)
}
