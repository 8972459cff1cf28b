package session

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/tether/script"
	"github.com/chazu/tether/trace"
	"github.com/chazu/tether/wire"
)

// Session is one live connection to a remote runtime. All proxy values
// obtained through it share its service and die with it.
type Session struct {
	cfg    *Config
	client *wire.Client
	rec    *trace.Recorder
	svc    script.Service
	log    commonlog.Logger
}

// Connect dials the runtime identified by pid, retrying until the
// socket appears or the configured timeout passes. The runtime creates
// its socket asynchronously at startup, so a brief wait is normal.
func Connect(cfg *Config, pid int) (*Session, error) {
	log := commonlog.GetLogger("session")
	path := cfg.Endpoint.SocketPath(pid)
	deadline := time.Now().Add(cfg.Endpoint.Timeout())

	var client *wire.Client
	for {
		var err error
		client, err = wire.Dial(path)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("session: runtime %d not reachable at %s: %w", pid, path, err)
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Infof("connected to runtime %d at %s", pid, path)

	s := &Session{cfg: cfg, client: client, svc: client, log: log}
	if tracePath := cfg.TracePath(); tracePath != "" {
		rec, err := trace.New(tracePath, client)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("session: open trace %s: %w", tracePath, err)
		}
		s.rec = rec
		s.svc = rec
		log.Infof("recording calls to %s", tracePath)
	}
	return s, nil
}

// Service returns the call boundary for this session, with tracing
// applied when configured.
func (s *Session) Service() script.Service { return s.svc }

// Current resolves a root object by kind name and normalizes it, so
// the common case comes back as a *script.Object ready for member
// access.
func (s *Session) Current(kind string) (any, error) {
	d, err := s.svc.GetCurrent(kind)
	if err != nil {
		return nil, err
	}
	return script.ToHost(s.svc, d)
}

// Close tears the session down. Proxies created from it are invalid
// afterwards.
func (s *Session) Close() error {
	if s.rec != nil {
		if err := s.rec.Close(); err != nil {
			s.log.Errorf("closing trace: %v", err)
		}
	}
	return s.client.Close()
}

// Listen opens the Unix socket a runtime serves its sessions on,
// replacing any stale socket file from a previous run.
func Listen(cfg *Config, pid int) (net.Listener, error) {
	path := cfg.Endpoint.SocketPath(pid)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("session: remove stale socket %s: %w", path, err)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("session: listen on %s: %w", path, err)
	}
	return l, nil
}
