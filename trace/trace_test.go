package trace_test

import (
	"path/filepath"
	"testing"

	"github.com/chazu/tether/host"
	"github.com/chazu/tether/script"
	"github.com/chazu/tether/trace"
)

func newRecorder(t *testing.T) (*trace.Recorder, *host.Space) {
	t.Helper()

	space := host.NewSpace()
	worker := host.NewWorker(space)
	t.Cleanup(worker.Stop)
	svc := host.NewService(worker, "trace-test")

	rec, err := trace.New(filepath.Join(t.TempDir(), "trace.db"), svc)
	if err != nil {
		t.Fatalf("trace.New: %v", err)
	}
	t.Cleanup(func() { rec.Close() })
	return rec, space
}

func TestRecorderRecordsCallsInOrder(t *testing.T) {
	rec, space := newRecorder(t)
	space.SetRoot("Patient", host.NewEntity().With("Name", "DOE^JANE"))

	d, err := rec.GetCurrent("Patient")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	obj := script.NewObject(rec, d.Ref)
	if _, err := obj.Get("Name"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	calls, err := rec.Calls()
	if err != nil {
		t.Fatalf("Calls: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("recorded %d calls, want 2", len(calls))
	}
	if calls[0].Op != "GetCurrent" || calls[0].Target != "Patient" {
		t.Errorf("call 0 = %s %s", calls[0].Op, calls[0].Target)
	}
	if calls[1].Op != "GetMember" || calls[1].Detail != "Name" {
		t.Errorf("call 1 = %s %s", calls[1].Op, calls[1].Detail)
	}
	if calls[0].Err != "" {
		t.Errorf("call 0 recorded error %q", calls[0].Err)
	}
}

func TestRecorderRecordsFailures(t *testing.T) {
	rec, _ := newRecorder(t)

	_, err := rec.GetCurrent("Nothing")
	if err == nil {
		t.Fatal("expected failure for unknown root")
	}

	calls, err := rec.CallsByOp("GetCurrent")
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 {
		t.Fatalf("recorded %d GetCurrent calls", len(calls))
	}
	if calls[0].Err == "" {
		t.Error("failed call recorded without its error")
	}
}

// The recorder must not change what the wrapped service answers.
func TestRecorderIsTransparent(t *testing.T) {
	rec, space := newRecorder(t)
	space.SetRoot("Patient", host.NewEntity().With("Name", "X"))

	d, err := rec.GetCurrent("Patient")
	if err != nil {
		t.Fatal(err)
	}
	v, err := script.ToHost(rec, d)
	if err != nil {
		t.Fatal(err)
	}
	obj, ok := v.(*script.Object)
	if !ok {
		t.Fatalf("normalized to %T", v)
	}
	name, err := obj.Get("Name")
	if err != nil || name != "X" {
		t.Errorf("Name = %v, %v", name, err)
	}
}
