package script_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/chazu/tether/host"
	"github.com/chazu/tether/ndarray"
	"github.com/chazu/tether/script"
)

// ---------------------------------------------------------------------------
// Remote -> host
// ---------------------------------------------------------------------------

func TestToHostScalarAndString(t *testing.T) {
	svc := newTestService(t)

	d, err := script.BoxScalar(int32(41))
	if err != nil {
		t.Fatal(err)
	}
	v, err := script.ToHost(svc, d)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := v.(int32); !ok || got != 41 {
		t.Errorf("scalar normalized to %T %v, want int32 41", v, v)
	}

	v, err = script.ToHost(svc, script.Str("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if v != "hello" {
		t.Errorf("string normalized to %v", v)
	}

	v, err = script.ToHost(svc, script.Null())
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("null normalized to %v, want nil", v)
	}
}

func TestToHostNestedLists(t *testing.T) {
	svc := newTestService(t)

	inner1 := &host.List{Items: []any{1, 2, 3}}
	inner2 := &host.List{Items: []any{4, 5}}
	outer := &host.List{Items: []any{inner1, inner2}}

	d, err := svc.Publish(outer)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	v, err := script.ToHost(svc, d)
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}

	want := []any{
		[]any{int64(1), int64(2), int64(3)},
		[]any{int64(4), int64(5)},
	}
	if !reflect.DeepEqual(v, want) {
		t.Errorf("nested list = %#v, want %#v", v, want)
	}
}

func TestToHostRecordSnapshot(t *testing.T) {
	svc := newTestService(t)

	rec := (&host.Record{}).Set("Name", "plan A").Set("Fractions", 30)
	d, err := svc.Publish(rec)
	if err != nil {
		t.Fatal(err)
	}
	v, err := script.ToHost(svc, d)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("record normalized to %T, want map[string]any", v)
	}
	if m["Name"] != "plan A" || m["Fractions"] != int64(30) {
		t.Errorf("record contents = %v", m)
	}

	// Copy-once: host-side edits never reach the remote record.
	m["Name"] = "edited"
	if rec.Values[0] != "plan A" {
		t.Error("host edit leaked back into the remote record")
	}
}

func TestToHostGenericMap(t *testing.T) {
	svc := newTestService(t)

	hm := (&host.Map{}).Set("a", 1).Set("b", 2)
	d, err := svc.Publish(hm)
	if err != nil {
		t.Fatal(err)
	}
	v, err := script.ToHost(svc, d)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.(map[any]any)
	if !ok {
		t.Fatalf("map normalized to %T", v)
	}
	if m["a"] != int64(1) || m["b"] != int64(2) {
		t.Errorf("map contents = %v", m)
	}
}

func TestToHostSortedMap(t *testing.T) {
	svc := newTestService(t)

	sm := &host.SortedMap{KeyCode: script.ElemFloat64}
	sm.Set(1.0, "low").Set(2.0, "high")

	d, err := svc.Publish(sm)
	if err != nil {
		t.Fatal(err)
	}
	v, err := script.ToHost(svc, d)
	if err != nil {
		t.Fatal(err)
	}
	sd, ok := v.(*script.SortedDict)
	if !ok {
		t.Fatalf("sorted map normalized to %T, want *SortedDict", v)
	}
	if sd.KeyType() != script.ElemFloat64 {
		t.Errorf("key type = %s", sd.KeyType())
	}
	if got, _ := sd.Get(2.0); got != "high" {
		t.Errorf("Get(2.0) = %v", got)
	}
}

func TestToHostJaggedArray(t *testing.T) {
	svc := newTestService(t)

	row1 := host.NewNumArray(ndarray.Int32, 2)
	row2 := host.NewNumArray(ndarray.Int32, 3)
	jagged := &host.ObjArray{Elem: script.ElemArray, Items: []any{row1, row2}}

	d, err := svc.Publish(jagged)
	if err != nil {
		t.Fatal(err)
	}
	v, err := script.ToHost(svc, d)
	if err != nil {
		t.Fatal(err)
	}
	al, ok := v.(script.ArrayList)
	if !ok {
		t.Fatalf("jagged array normalized to %T, want ArrayList", v)
	}
	if len(al) != 2 {
		t.Fatalf("len = %d", len(al))
	}
	first, ok := al[0].(*ndarray.Array)
	if !ok {
		t.Fatalf("element normalized to %T, want *ndarray.Array", al[0])
	}
	if first.Extent(0) != 2 {
		t.Errorf("first row extent = %d", first.Extent(0))
	}
}

func TestToHostStringArray(t *testing.T) {
	svc := newTestService(t)

	d, err := svc.Publish(&host.ObjArray{
		Elem:  script.ElemString,
		Items: []any{"x", "y", "z"},
	})
	if err != nil {
		t.Fatal(err)
	}
	v, err := script.ToHost(svc, d)
	if err != nil {
		t.Fatal(err)
	}
	al, ok := v.(script.ArrayList)
	if !ok {
		t.Fatalf("string array normalized to %T, want ArrayList", v)
	}
	if !reflect.DeepEqual([]any(al), []any{"x", "y", "z"}) {
		t.Errorf("contents = %v", al)
	}
}

func TestToHostObjectArray(t *testing.T) {
	svc := newTestService(t)

	e1, e2 := host.NewEntity(), host.NewEntity()
	d, err := svc.Publish(&host.ObjArray{
		Elem:  script.ElemObject,
		Items: []any{e1, e2},
	})
	if err != nil {
		t.Fatal(err)
	}
	v, err := script.ToHost(svc, d)
	if err != nil {
		t.Fatal(err)
	}
	objs, ok := v.([]any)
	if !ok {
		t.Fatalf("object array normalized to %T, want []any", v)
	}
	for i, o := range objs {
		if _, ok := o.(*script.Object); !ok {
			t.Errorf("element %d is %T, want *script.Object", i, o)
		}
	}
}

func TestToHostOpaquePassThrough(t *testing.T) {
	svc := newTestService(t)

	d, err := svc.Publish(&host.Opaque{TypeName: "Color", Value: "#ff0000"})
	if err != nil {
		t.Fatal(err)
	}
	v, err := script.ToHost(svc, d)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := v.(script.Datum)
	if !ok || got.Kind != script.KindOpaque {
		t.Fatalf("opaque normalized to %T %v, want the datum itself", v, v)
	}

	// And it goes back out unchanged.
	back, err := script.ToRemote(svc, got)
	if err != nil {
		t.Fatal(err)
	}
	if back.Ref != got.Ref || back.Kind != script.KindOpaque {
		t.Error("opaque datum did not pass through unchanged")
	}
}

// ---------------------------------------------------------------------------
// Host -> remote
// ---------------------------------------------------------------------------

func TestToRemoteProxyUnwrap(t *testing.T) {
	svc := newTestService(t)

	ent := host.NewEntity()
	d, err := svc.Publish(ent)
	if err != nil {
		t.Fatal(err)
	}
	obj := script.NewObject(svc, d.Ref)

	out, err := script.ToRemote(svc, obj)
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != script.KindObject || out.Ref != d.Ref {
		t.Errorf("proxy unwrapped to %v", out)
	}
}

func TestToRemoteSortedDict(t *testing.T) {
	svc := newTestService(t)

	sd, err := script.NewSortedDict(script.ElemFloat64, nil)
	if err != nil {
		t.Fatal(err)
	}
	sd.Set(2, "b")
	sd.Set(1, "a")

	d, err := script.ToRemote(svc, sd)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != script.KindSortedMap {
		t.Fatalf("kind = %s", d.Kind)
	}
	if d.Elem.Code != script.ElemFloat64 {
		t.Errorf("key type = %s", d.Elem.Code)
	}
	if len(d.Pairs) != 2 || d.Pairs[0].Value.Str != "a" {
		t.Errorf("pairs = %v", d.Pairs)
	}
}

func TestToRemotePlainMap(t *testing.T) {
	svc := newTestService(t)

	d, err := script.ToRemote(svc, map[string]any{"dose": 2.0})
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != script.KindMap || len(d.Pairs) != 1 {
		t.Fatalf("datum = %v", d)
	}
	if d.Pairs[0].Key.Str != "dose" {
		t.Errorf("key = %v", d.Pairs[0].Key)
	}
}

func TestToRemoteArrayListBecomesObjectArray(t *testing.T) {
	svc := newTestService(t)

	d, err := script.ToRemote(svc, script.ArrayList{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != script.KindObjectArray {
		t.Errorf("ArrayList converted to %s, want object-array", d.Kind)
	}

	// A plain slice stays a list.
	d, err = script.ToRemote(svc, []any{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != script.KindList {
		t.Errorf("plain list converted to %s, want list", d.Kind)
	}
}

// The uniform-primitive fast path must be observationally identical to
// per-element conversion.
func TestArrayListFastPathEquivalence(t *testing.T) {
	svc := newTestService(t)

	big := make(script.ArrayList, 10000)
	for i := range big {
		big[i] = i
	}

	fast, err := script.ToRemote(svc, big)
	if err != nil {
		t.Fatalf("ToRemote: %v", err)
	}
	if len(fast.Items) != len(big) {
		t.Fatalf("len = %d, want %d", len(fast.Items), len(big))
	}
	for i, item := range fast.Items {
		want, err := script.BoxScalar(big[i])
		if err != nil {
			t.Fatal(err)
		}
		if item.Num != want.Num || item.Bits != want.Bits {
			t.Fatalf("element %d = %v, want %v", i, item, want)
		}
	}
}

// A list whose first element is primitive but which holds a proxy later
// still must not be corrupted by the fast path.
func TestMixedListSlowPath(t *testing.T) {
	svc := newTestService(t)

	ent, err := svc.Publish(host.NewEntity())
	if err != nil {
		t.Fatal(err)
	}
	obj := script.NewObject(svc, ent.Ref)

	d, err := script.ToRemote(svc, []any{obj, 7})
	if err != nil {
		t.Fatal(err)
	}
	if d.Items[0].Kind != script.KindObject {
		t.Errorf("first element = %s, want object", d.Items[0].Kind)
	}
	if d.Items[1].Kind != script.KindScalar {
		t.Errorf("second element = %s, want scalar", d.Items[1].Kind)
	}
}

func TestToRemoteEmptyList(t *testing.T) {
	svc := newTestService(t)

	d, err := script.ToRemote(svc, script.ArrayList{})
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != script.KindObjectArray || len(d.Items) != 0 {
		t.Errorf("empty ArrayList = %v", d)
	}
}

func TestToRemoteNDArray(t *testing.T) {
	svc := newTestService(t)

	a := ndarray.Zeros(ndarray.Float32, 2, 2)
	a.Set(float32(1.5), 0, 1)

	d, err := script.ToRemote(svc, a)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != script.KindArray {
		t.Fatalf("kind = %s", d.Kind)
	}
	back, err := script.ArrayToHost(svc, d.Ref)
	if err != nil {
		t.Fatal(err)
	}
	if !ndarray.Equal(a, back) {
		t.Error("ndarray did not survive ToRemote")
	}
}

func TestToRemoteUnsupported(t *testing.T) {
	svc := newTestService(t)

	_, err := script.ToRemote(svc, struct{ X int }{1})
	var ute *script.UnsupportedTypeError
	if !errors.As(err, &ute) {
		t.Errorf("expected UnsupportedTypeError, got %v", err)
	}
}
