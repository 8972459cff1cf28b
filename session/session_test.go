package session_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/tether/host"
	"github.com/chazu/tether/script"
	"github.com/chazu/tether/session"
	"github.com/chazu/tether/wire"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "tether.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[endpoint]
dir = "/var/run/tether"
base = "rt"
timeout-ms = 250

[trace]
path = "calls.db"
`)

	cfg, err := session.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Endpoint.Dir != "/var/run/tether" || cfg.Endpoint.Base != "rt" {
		t.Errorf("endpoint = %+v", cfg.Endpoint)
	}
	if got := cfg.Endpoint.SocketPath(99); got != "/var/run/tether/rt-99.sock" {
		t.Errorf("SocketPath = %q", got)
	}
	if got := cfg.TracePath(); got != filepath.Join(dir, "calls.db") {
		t.Errorf("TracePath = %q", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")

	cfg, err := session.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint.Base != "tether" || cfg.Endpoint.TimeoutMS != 5000 {
		t.Errorf("defaults not applied: %+v", cfg.Endpoint)
	}
	if cfg.TracePath() != "" {
		t.Errorf("tracing should default to off, got %q", cfg.TracePath())
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[endpoint]\nbase = \"found\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := session.FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint.Base != "found" {
		t.Errorf("Base = %q", cfg.Endpoint.Base)
	}
}

func TestConnectOverSocket(t *testing.T) {
	dir := t.TempDir()
	cfg := session.Default()
	cfg.Endpoint.Dir = dir
	cfg.Endpoint.TimeoutMS = 2000

	space := host.NewSpace()
	space.SetRoot("Patient", host.NewEntity().With("Name", "DOE^JANE"))
	worker := host.NewWorker(space)
	t.Cleanup(worker.Stop)

	pid := os.Getpid()
	l, err := session.Listen(cfg, pid)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	srv := wire.NewServer(func(id string) (script.Service, func()) {
		svc := host.NewService(worker, id)
		return svc, svc.EndSession
	})
	go srv.Serve(l)

	s, err := session.Connect(cfg, pid)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	v, err := s.Current("Patient")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	obj, ok := v.(*script.Object)
	if !ok {
		t.Fatalf("Current normalized to %T", v)
	}
	name, err := obj.Get("Name")
	if err != nil || name != "DOE^JANE" {
		t.Errorf("Name = %v, %v", name, err)
	}
}

func TestConnectTimesOut(t *testing.T) {
	cfg := session.Default()
	cfg.Endpoint.Dir = t.TempDir()
	cfg.Endpoint.TimeoutMS = 200

	if _, err := session.Connect(cfg, 424242); err == nil {
		t.Fatal("expected timeout connecting to a runtime that is not there")
	}
}
