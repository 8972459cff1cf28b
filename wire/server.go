package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/chazu/tether/ndarray"
	"github.com/chazu/tether/script"
)

// Server accepts connections and dispatches frames against a
// script.Service. Each connection is one session: the factory is called
// once per connection and its teardown runs when the connection ends,
// which is where session-scoped handles get released.
type Server struct {
	factory func(sessionID string) (script.Service, func())
	log     commonlog.Logger

	nextSession atomic.Uint64
}

// NewServer builds a server around a per-session service factory. The
// teardown function returned by the factory may be nil.
func NewServer(factory func(sessionID string) (script.Service, func())) *Server {
	return &Server{
		factory: factory,
		log:     commonlog.GetLogger("wire.server"),
	}
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("wire: accept: %w", err)
		}
		go s.ServeConn(conn)
	}
}

// ServeConn runs the frame loop for one connection until EOF or a
// transport error, then tears the session down.
func (s *Server) ServeConn(conn net.Conn) {
	sessionID := fmt.Sprintf("s-%d", s.nextSession.Add(1))
	svc, done := s.factory(sessionID)

	sess := &serverSession{
		id:     sessionID,
		svc:    svc,
		pinned: make(map[script.Ref][]byte),
	}
	s.log.Infof("session %s started", sessionID)

	defer func() {
		for ref := range sess.pinned {
			_ = svc.Unpin(ref)
		}
		if done != nil {
			done()
		}
		_ = conn.Close()
		s.log.Infof("session %s ended", sessionID)
	}()

	for {
		var req Request
		if err := readFrame(conn, &req); err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Errorf("session %s: read: %v", sessionID, err)
			}
			return
		}
		resp := sess.dispatch(req)
		if err := writeFrame(conn, resp); err != nil {
			s.log.Errorf("session %s: write: %v", sessionID, err)
			return
		}
	}
}

// serverSession is the per-connection dispatch state. The frame loop is
// single-threaded, so no locking is needed around pinned.
type serverSession struct {
	id     string
	svc    script.Service
	pinned map[script.Ref][]byte
}

func (s *serverSession) dispatch(req Request) Response {
	var resp Response
	var err error

	switch req.Op {
	case OpGetCurrent:
		resp.Datum, err = s.svc.GetCurrent(req.Name)
	case OpGetMember:
		resp.Datum, err = s.svc.GetMember(req.Ref, req.Name)
	case OpSetMember:
		err = s.svc.SetMember(req.Ref, req.Name, req.Value)
	case OpMemberNames:
		resp.Names, err = s.svc.MemberNames(req.Ref)
	case OpInvoke:
		resp.Datum, err = s.svc.Invoke(req.Ref, req.Names, req.Values)
	case OpRefsEqual:
		resp.OK, err = s.svc.RefsEqual(req.Ref, req.Ref2)
	case OpCount:
		resp.N, err = s.svc.Count(req.Ref)
	case OpElementAt:
		resp.Datum, err = s.svc.ElementAt(req.Ref, req.Index)
	case OpElementByKey:
		resp.Datum, err = s.svc.ElementByKey(req.Ref, req.Name)
	case OpKeys:
		resp.Names, err = s.svc.Keys(req.Ref)
	case OpContains:
		resp.OK, err = s.svc.Contains(req.Ref, req.Ref2)
	case OpIndexOf:
		resp.N, err = s.svc.IndexOf(req.Ref, req.Ref2)
	case OpKeyOf:
		var key string
		key, err = s.svc.KeyOf(req.Ref, req.Ref2)
		resp.Datum = script.Str(key)
	case OpElementType:
		resp.Elem, err = s.svc.ElementType(req.Ref)
	case OpRank:
		resp.N, err = s.svc.Rank(req.Ref)
	case OpExtent:
		resp.N, err = s.svc.Extent(req.Ref, req.Index)
	case OpNewArray:
		resp.Datum, err = s.svc.NewArray(ndarray.DType(req.DType), req.Shape)
	case OpPin:
		err = s.pin(req.Ref, &resp)
	case OpUnpin:
		err = s.unpin(req)
	default:
		err = fmt.Errorf("unknown op %d", uint8(req.Op))
	}

	if err != nil {
		var re *script.RemoteError
		if errors.As(err, &re) {
			resp = Response{Err: re.Msg, ErrOp: re.Op}
		} else {
			resp = Response{Err: err.Error(), ErrOp: req.Op.String()}
		}
	}
	return resp
}

func (s *serverSession) pin(ref script.Ref, resp *Response) error {
	if _, dup := s.pinned[ref]; dup {
		return fmt.Errorf("%s already pinned", ref)
	}
	buf, err := s.svc.Pin(ref)
	if err != nil {
		return err
	}
	s.pinned[ref] = buf
	resp.Bytes = buf
	return nil
}

func (s *serverSession) unpin(req Request) error {
	buf, ok := s.pinned[req.Ref]
	if !ok {
		return fmt.Errorf("%s is not pinned", req.Ref)
	}
	delete(s.pinned, req.Ref)

	if req.Dirty {
		if len(req.Bytes) != len(buf) {
			_ = s.svc.Unpin(req.Ref)
			return fmt.Errorf("write-back of %d bytes into %d-byte buffer", len(req.Bytes), len(buf))
		}
		copy(buf, req.Bytes)
	}
	return s.svc.Unpin(req.Ref)
}
