package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a failed server call.
type Kind int

const (
	// KindInvalidRequest means the request could not be built.
	KindInvalidRequest Kind = iota + 1
	// KindNetwork means the request never got an HTTP response.
	KindNetwork
	// KindServer means the server answered with a non-2xx status.
	KindServer
	// KindDecode means a 2xx body did not have the expected shape.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid-request"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is returned by every Client call that fails.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServer:
		return fmt.Sprintf("%s: server error %d: %s", e.Op, e.Status, e.Message)
	case KindDecode:
		return fmt.Sprintf("%s: decode response: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err wraps a remote Error of kind k.
func IsKind(err error, k Kind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == k
}

func invalidRequest(op string, err error) *Error {
	return &Error{Kind: KindInvalidRequest, Op: op, Err: err}
}

func decodeError(op, msg string) *Error {
	return &Error{Kind: KindDecode, Op: op, Message: msg}
}
