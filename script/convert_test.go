package script_test

import (
	"errors"
	"testing"

	"github.com/chazu/tether/host"
	"github.com/chazu/tether/ndarray"
	"github.com/chazu/tether/script"
)

// newTestService spins up an in-process host for the marshalling core
// to talk to.
func newTestService(t *testing.T) *host.Service {
	t.Helper()
	space := host.NewSpace()
	worker := host.NewWorker(space)
	t.Cleanup(worker.Stop)
	return host.NewService(worker, "test")
}

// fillSequential writes distinct values into every element.
func fillSequential(a *ndarray.Array) {
	idx := make([]int, a.Rank())
	n := a.NumElems()
	for i := 0; i < n; i++ {
		switch a.DType() {
		case ndarray.Bool:
			a.Set(i%2 == 1, idx...)
		case ndarray.Float32, ndarray.Float64:
			a.Set(float64(i)+0.5, idx...)
		default:
			a.Set(i%100, idx...)
		}
		incIndex(idx, a)
	}
}

func incIndex(idx []int, a *ndarray.Array) {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < a.Extent(d) {
			return
		}
		idx[d] = 0
	}
}

// ---------------------------------------------------------------------------
// Numeric buffer round trips
// ---------------------------------------------------------------------------

func TestArrayRoundTripAllDTypes(t *testing.T) {
	svc := newTestService(t)

	shapes := [][]int{
		{7},
		{0},
		{3, 4},
		{2, 0, 5},
		{2, 3, 2},
	}

	for _, dt := range ndarray.DTypes() {
		for _, shape := range shapes {
			src := ndarray.Zeros(dt, shape...)
			fillSequential(src)

			d, err := script.ArrayToRemote(svc, src)
			if err != nil {
				t.Fatalf("%s%v: ArrayToRemote: %v", dt, shape, err)
			}
			back, err := script.ArrayToHost(svc, d.Ref)
			if err != nil {
				t.Fatalf("%s%v: ArrayToHost: %v", dt, shape, err)
			}
			if !ndarray.Equal(src, back) {
				t.Errorf("%s%v: round trip mismatch", dt, shape)
			}
		}
	}
}

func TestArrayToRemoteForcesContiguous(t *testing.T) {
	svc := newTestService(t)

	base := ndarray.Zeros(ndarray.Int64, 6)
	fillSequential(base)
	view := base.Slice(0, 6, 2) // non-contiguous view: elements 0, 2, 4

	d, err := script.ArrayToRemote(svc, view)
	if err != nil {
		t.Fatalf("ArrayToRemote: %v", err)
	}
	back, err := script.ArrayToHost(svc, d.Ref)
	if err != nil {
		t.Fatalf("ArrayToHost: %v", err)
	}
	if !ndarray.Equal(view.AsContiguous(), back) {
		t.Error("non-contiguous view did not round trip")
	}
}

func TestArrayToHostDecoupled(t *testing.T) {
	svc := newTestService(t)

	remote := host.NewNumArray(ndarray.Float64, 3)
	d, err := svc.Publish(remote)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	a, err := script.ArrayToHost(svc, d.Ref)
	if err != nil {
		t.Fatalf("ArrayToHost: %v", err)
	}

	// Mutating the remote buffer after conversion must not show up in
	// the host copy.
	for i := range remote.Data {
		remote.Data[i] = 0xFF
	}
	if got := a.Get(0).(float64); got != 0 {
		t.Errorf("host buffer aliased remote storage: got %v", got)
	}
}

func TestArrayToHostUnsupportedElemType(t *testing.T) {
	svc := newTestService(t)

	d, err := svc.Publish(&host.ObjArray{
		Elem:     script.ElemOther,
		TypeName: "DateTime",
		Items:    []any{nil, nil},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	_, err = script.ArrayToHost(svc, d.Ref)
	var ute *script.UnsupportedTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("expected UnsupportedTypeError, got %v", err)
	}
	if ute.TypeName != "DateTime" {
		t.Errorf("error should name the offending type, got %q", ute.TypeName)
	}
}

func TestArrayToHostReleasedHandle(t *testing.T) {
	svc := newTestService(t)

	arr := host.NewNumArray(ndarray.Int32, 4)
	d, err := svc.Publish(arr)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// Drop the handle between introspection and pin: the pin failure
	// must propagate, not retry.
	svc.Release(d.Ref)

	if _, err := script.ArrayToHost(svc, d.Ref); err == nil {
		t.Fatal("expected error for released handle")
	}
}

// ---------------------------------------------------------------------------
// Scalar boxing
// ---------------------------------------------------------------------------

func TestBoxScalarDispatch(t *testing.T) {
	tests := []struct {
		in   any
		want ndarray.DType
	}{
		{true, ndarray.Bool},
		{false, ndarray.Bool},
		{int8(-5), ndarray.Int8},
		{int16(-300), ndarray.Int16},
		{int32(70000), ndarray.Int32},
		{int64(1 << 40), ndarray.Int64},
		{int(12), ndarray.Int64},
		{uint8(200), ndarray.Uint8},
		{uint16(60000), ndarray.Uint16},
		{uint32(1 << 30), ndarray.Uint32},
		{uint64(1 << 60), ndarray.Uint64},
		{uint(9), ndarray.Uint64},
		{float32(1.5), ndarray.Float32},
		{float64(2.25), ndarray.Float64},
	}
	for _, tt := range tests {
		d, err := script.BoxScalar(tt.in)
		if err != nil {
			t.Errorf("BoxScalar(%T): %v", tt.in, err)
			continue
		}
		if d.Kind != script.KindScalar || d.Num != tt.want {
			t.Errorf("BoxScalar(%v %T) = %s/%s, want scalar/%s", tt.in, tt.in, d.Kind, d.Num, tt.want)
		}
	}
}

// A boolean must box as a boolean, never as any integer type.
func TestBoxScalarBoolBeforeInt(t *testing.T) {
	d, err := script.BoxScalar(true)
	if err != nil {
		t.Fatalf("BoxScalar(true): %v", err)
	}
	if d.Num != ndarray.Bool {
		t.Errorf("true boxed as %s, want bool", d.Num)
	}
	if d.Bits != 1 {
		t.Errorf("true boxed with bits %d, want 1", d.Bits)
	}
}

func TestBoxScalarUnsupported(t *testing.T) {
	for _, v := range []any{"text", complex64(1), []byte{1}, struct{}{}} {
		_, err := script.BoxScalar(v)
		var ute *script.UnsupportedTypeError
		if !errors.As(err, &ute) {
			t.Errorf("BoxScalar(%T): expected UnsupportedTypeError, got %v", v, err)
			continue
		}
		if ute.TypeName == "" {
			t.Errorf("BoxScalar(%T): error should carry the type name", v)
		}
	}
}

// ---------------------------------------------------------------------------
// Element table
// ---------------------------------------------------------------------------

func TestElemTableBijective(t *testing.T) {
	for _, dt := range ndarray.DTypes() {
		code, ok := script.ElemForDType(dt)
		if !ok {
			t.Errorf("dtype %s has no element code", dt)
			continue
		}
		back, ok := script.DTypeForElem(code)
		if !ok || back != dt {
			t.Errorf("element table not bijective for %s: %s -> %s", dt, code, back)
		}
	}
	for _, code := range []script.ElemCode{script.ElemString, script.ElemObject, script.ElemArray, script.ElemOther, script.ElemNone} {
		if _, ok := script.DTypeForElem(code); ok {
			t.Errorf("non-numeric code %s should have no dtype", code)
		}
	}
}
