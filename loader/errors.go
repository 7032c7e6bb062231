package loader

import (
	"errors"
	"fmt"
)

// Kind classifies a failed load. Kinds are errors themselves, so callers can
// test with errors.Is(err, loader.UploadError).
type Kind int

const (
	EncodingError Kind = iota + 1
	IOError
	FormatError
	QueryError
	StagingError
	UploadError
	UnsupportedOperation
)

func (k Kind) String() string {
	switch k {
	case EncodingError:
		return "encoding error"
	case IOError:
		return "io error"
	case FormatError:
		return "format error"
	case QueryError:
		return "query error"
	case StagingError:
		return "staging error"
	case UploadError:
		return "upload error"
	case UnsupportedOperation:
		return "unsupported operation"
	default:
		return "unknown error"
	}
}

func (k Kind) Error() string {
	return k.String()
}

// Permanent kinds will fail again when retried with the same method.
func (k Kind) Permanent() bool {
	return k == StagingError || k == UnsupportedOperation
}

// Retryable kinds may succeed when the whole load call is repeated.
func (k Kind) Retryable() bool {
	return k == UploadError || k == QueryError
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Kind.Permanent() {
		msg += " (unsupported for this backend, do not retry with the same method)"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the kind of a load error, or 0 for foreign errors.
func KindOf(err error) Kind {
	var loadErr *Error
	if errors.As(err, &loadErr) {
		return loadErr.Kind
	}
	return 0
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
