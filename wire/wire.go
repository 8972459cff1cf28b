// Package wire carries script.Service calls over a byte stream as
// length-prefixed CBOR frames. The Client side implements
// script.Service against a connection; Server dispatches frames
// against any script.Service implementation. Calls are synchronous
// with one frame in flight per connection, so operations are observed
// in program order.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/tether/script"
)

// cborEncMode uses canonical options for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Op identifies a boundary operation.
type Op uint8

const (
	OpGetCurrent Op = iota + 1
	OpGetMember
	OpSetMember
	OpMemberNames
	OpInvoke
	OpRefsEqual
	OpCount
	OpElementAt
	OpElementByKey
	OpKeys
	OpContains
	OpIndexOf
	OpKeyOf
	OpElementType
	OpRank
	OpExtent
	OpNewArray
	OpPin
	OpUnpin
)

var opNames = map[Op]string{
	OpGetCurrent:   "GetCurrent",
	OpGetMember:    "GetMember",
	OpSetMember:    "SetMember",
	OpMemberNames:  "MemberNames",
	OpInvoke:       "Invoke",
	OpRefsEqual:    "RefsEqual",
	OpCount:        "Count",
	OpElementAt:    "ElementAt",
	OpElementByKey: "ElementByKey",
	OpKeys:         "Keys",
	OpContains:     "Contains",
	OpIndexOf:      "IndexOf",
	OpKeyOf:        "KeyOf",
	OpElementType:  "ElementType",
	OpRank:         "Rank",
	OpExtent:       "Extent",
	OpNewArray:     "NewArray",
	OpPin:          "Pin",
	OpUnpin:        "Unpin",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// Request is one boundary call. Which fields are meaningful depends on
// the op.
type Request struct {
	Op     Op             `cbor:"op"`
	Ref    script.Ref     `cbor:"ref,omitempty"`
	Ref2   script.Ref     `cbor:"ref2,omitempty"`
	Name   string         `cbor:"name,omitempty"`
	Names  []string       `cbor:"names,omitempty"`
	Value  script.Datum   `cbor:"val,omitempty"`
	Values []script.Datum `cbor:"vals,omitempty"`
	Index  int            `cbor:"idx,omitempty"`
	DType  uint8          `cbor:"dt,omitempty"`
	Shape  []int          `cbor:"shape,omitempty"`
	Bytes  []byte         `cbor:"bytes,omitempty"`
	Dirty  bool           `cbor:"dirty,omitempty"`
}

// Response is the result of one boundary call. A non-empty Err means
// the call failed remotely; the other fields are then meaningless.
type Response struct {
	Datum script.Datum    `cbor:"val,omitempty"`
	Elem  script.ElemType `cbor:"elem,omitempty"`
	Names []string        `cbor:"names,omitempty"`
	Bytes []byte          `cbor:"bytes,omitempty"`
	N     int             `cbor:"n,omitempty"`
	OK    bool            `cbor:"ok,omitempty"`
	Err   string          `cbor:"err,omitempty"`
	ErrOp string          `cbor:"errop,omitempty"`
}

// maxFrameSize bounds a single frame. Large numeric payloads move as
// pinned byte transfers, which are themselves framed, so this caps a
// single array at ~256 MiB.
const maxFrameSize = 1 << 28

// writeFrame encodes v as CBOR and writes it with a 4-byte big-endian
// length prefix.
func writeFrame(w io.Writer, v any) error {
	body, err := cborEncMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal frame: %w", err)
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("wire: frame of %d bytes exceeds limit", len(body))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame and decodes it into v.
func readFrame(r io.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return fmt.Errorf("wire: frame of %d bytes exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("wire: read frame body: %w", err)
	}
	if err := cbor.Unmarshal(body, v); err != nil {
		return fmt.Errorf("wire: unmarshal frame: %w", err)
	}
	return nil
}
