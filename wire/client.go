package wire

import (
	"bytes"
	"fmt"
	"net"
	"sync"

	"github.com/chazu/tether/ndarray"
	"github.com/chazu/tether/script"
)

// Client speaks the frame protocol over a connection and implements
// script.Service against it. All calls are serialized on a single
// mutex; a call holds the connection for its full request/response
// round trip.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	pins map[script.Ref]*pinBuf
}

var _ script.Service = (*Client)(nil)

// pinBuf is the host-side image of a pinned remote buffer. The shadow
// copy lets Unpin detect writes and skip the write-back frame for
// read-only pins.
type pinBuf struct {
	buf    []byte
	shadow []byte
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{
		conn: conn,
		pins: make(map[script.Ref]*pinBuf),
	}
}

// Dial connects to a listening bridge endpoint on a Unix socket.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", path, err)
	}
	return NewClient(conn), nil
}

// Close closes the underlying connection. Outstanding pins are
// discarded without write-back.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins = make(map[script.Ref]*pinBuf)
	return c.conn.Close()
}

// call performs one request/response round trip.
func (c *Client) call(req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callLocked(req)
}

func (c *Client) callLocked(req Request) (Response, error) {
	var resp Response
	if err := writeFrame(c.conn, req); err != nil {
		return resp, fmt.Errorf("wire: %s: %w", req.Op, err)
	}
	if err := readFrame(c.conn, &resp); err != nil {
		return resp, fmt.Errorf("wire: %s: %w", req.Op, err)
	}
	if resp.Err != "" {
		op := resp.ErrOp
		if op == "" {
			op = req.Op.String()
		}
		return resp, &script.RemoteError{Op: op, Msg: resp.Err}
	}
	return resp, nil
}

func (c *Client) GetCurrent(kind string) (script.Datum, error) {
	resp, err := c.call(Request{Op: OpGetCurrent, Name: kind})
	return resp.Datum, err
}

func (c *Client) GetMember(ref script.Ref, name string) (script.Datum, error) {
	resp, err := c.call(Request{Op: OpGetMember, Ref: ref, Name: name})
	return resp.Datum, err
}

func (c *Client) SetMember(ref script.Ref, name string, value script.Datum) error {
	_, err := c.call(Request{Op: OpSetMember, Ref: ref, Name: name, Value: value})
	return err
}

func (c *Client) MemberNames(ref script.Ref) ([]string, error) {
	resp, err := c.call(Request{Op: OpMemberNames, Ref: ref})
	return resp.Names, err
}

func (c *Client) Invoke(ref script.Ref, argNames []string, argValues []script.Datum) (script.Datum, error) {
	resp, err := c.call(Request{Op: OpInvoke, Ref: ref, Names: argNames, Values: argValues})
	return resp.Datum, err
}

func (c *Client) RefsEqual(a, b script.Ref) (bool, error) {
	resp, err := c.call(Request{Op: OpRefsEqual, Ref: a, Ref2: b})
	return resp.OK, err
}

func (c *Client) Count(ref script.Ref) (int, error) {
	resp, err := c.call(Request{Op: OpCount, Ref: ref})
	return resp.N, err
}

func (c *Client) ElementAt(ref script.Ref, index int) (script.Datum, error) {
	resp, err := c.call(Request{Op: OpElementAt, Ref: ref, Index: index})
	return resp.Datum, err
}

func (c *Client) ElementByKey(ref script.Ref, key string) (script.Datum, error) {
	resp, err := c.call(Request{Op: OpElementByKey, Ref: ref, Name: key})
	return resp.Datum, err
}

func (c *Client) Keys(ref script.Ref) ([]string, error) {
	resp, err := c.call(Request{Op: OpKeys, Ref: ref})
	return resp.Names, err
}

func (c *Client) Contains(ref script.Ref, elem script.Ref) (bool, error) {
	resp, err := c.call(Request{Op: OpContains, Ref: ref, Ref2: elem})
	return resp.OK, err
}

func (c *Client) IndexOf(ref script.Ref, elem script.Ref) (int, error) {
	resp, err := c.call(Request{Op: OpIndexOf, Ref: ref, Ref2: elem})
	return resp.N, err
}

func (c *Client) KeyOf(ref script.Ref, elem script.Ref) (string, error) {
	resp, err := c.call(Request{Op: OpKeyOf, Ref: ref, Ref2: elem})
	return resp.Datum.Str, err
}

func (c *Client) ElementType(ref script.Ref) (script.ElemType, error) {
	resp, err := c.call(Request{Op: OpElementType, Ref: ref})
	return resp.Elem, err
}

func (c *Client) Rank(ref script.Ref) (int, error) {
	resp, err := c.call(Request{Op: OpRank, Ref: ref})
	return resp.N, err
}

func (c *Client) Extent(ref script.Ref, dim int) (int, error) {
	resp, err := c.call(Request{Op: OpExtent, Ref: ref, Index: dim})
	return resp.N, err
}

func (c *Client) NewArray(elem ndarray.DType, shape []int) (script.Datum, error) {
	resp, err := c.call(Request{Op: OpNewArray, DType: uint8(elem), Shape: shape})
	return resp.Datum, err
}

// Pin transfers the remote buffer's bytes in one bulk frame and keeps a
// shadow copy so Unpin can tell whether the caller wrote into it.
func (c *Client) Pin(ref script.Ref) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.pins[ref]; dup {
		return nil, fmt.Errorf("wire: %s already pinned", ref)
	}
	resp, err := c.callLocked(Request{Op: OpPin, Ref: ref})
	if err != nil {
		return nil, err
	}
	buf := resp.Bytes
	if buf == nil {
		buf = []byte{}
	}
	c.pins[ref] = &pinBuf{buf: buf, shadow: bytes.Clone(buf)}
	return buf, nil
}

// Unpin releases a pin. The bytes travel back only when they changed
// since Pin; the remote side then copies them into the array before
// releasing its own pin.
func (c *Client) Unpin(ref script.Ref) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pb, ok := c.pins[ref]
	if !ok {
		return fmt.Errorf("wire: %s is not pinned", ref)
	}
	delete(c.pins, ref)

	req := Request{Op: OpUnpin, Ref: ref}
	if !bytes.Equal(pb.buf, pb.shadow) {
		req.Dirty = true
		req.Bytes = pb.buf
	}
	_, err := c.callLocked(req)
	return err
}
