package script

import (
	"fmt"
	"strings"
)

// noMemberPrefix is the message prefix the remote runtime uses when a
// member lookup fails. Proxy member access matches on it to decide
// whether a remote failure means "no such attribute" or something
// worse. The remote side defines no structured code for this, so the
// prefix is part of the contract.
const noMemberPrefix = "Object has no member"

// UnsupportedTypeError reports a value whose concrete type has no entry
// in the numeric conversion table. It is never retried; the caller
// supplied something this layer cannot represent remotely.
type UnsupportedTypeError struct {
	TypeName string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("script: unsupported type %s", e.TypeName)
}

// AttributeError reports that an object has no member with the given
// name. Object.Has relies on member-lookup failures surfacing as
// exactly this type; anything else would make every existence check
// fail loudly.
type AttributeError struct {
	Member string
	Msg    string
}

func (e *AttributeError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("script: no attribute %q", e.Member)
}

// UsageError reports a contract violation under the caller's control,
// such as calling a method with positional arguments.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return "script: " + e.Msg }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// RemoteError is an opaque failure reported by the remote runtime.
// The marshalling layer propagates it unchanged; interpreting or
// retrying remote failures is the caller's business.
type RemoteError struct {
	Op  string // boundary operation that failed, for context
	Msg string
}

func (e *RemoteError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("remote: %s: %s", e.Op, e.Msg)
	}
	return "remote: " + e.Msg
}

// isNoMember reports whether err is the remote runtime's "no such
// member" signal.
func isNoMember(err error) bool {
	re, ok := err.(*RemoteError)
	return ok && strings.HasPrefix(re.Msg, noMemberPrefix)
}
