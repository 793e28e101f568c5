package asset

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrorKind classifies storage failures.
type ErrorKind int

const (
	// KindIO wraps an underlying filesystem error.
	KindIO ErrorKind = iota + 1
	// KindNotFound means the live asset file does not exist.
	KindNotFound
	// KindMalformedTree means a recycle-bin directory name is not a day number.
	KindMalformedTree
	// KindInvalidInput wraps a pathsafe rejection of caller input.
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io error"
	case KindNotFound:
		return "asset not found"
	case KindMalformedTree:
		return "malformed recycle tree"
	case KindInvalidInput:
		return "invalid input"
	default:
		return fmt.Sprintf("unknown storage error %d", int(k))
	}
}

// Error is the error type returned by Store and GarbageManager.
type Error struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

// Sentinels for errors.Is. Only Kind is compared.
var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrMalformedTree = &Error{Kind: KindMalformedTree}
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
)

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the ErrorKind of err, or 0 if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ioError converts a filesystem error. A missing file stays a plain I/O
// error here; only the store decides when absence means KindNotFound.
func ioError(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

func notFound(op, path string) error {
	return &Error{Kind: KindNotFound, Op: op, Path: path, Err: fs.ErrNotExist}
}

func malformedTree(path string, err error) error {
	return &Error{Kind: KindMalformedTree, Op: "scan", Path: path, Err: err}
}

// fromSanitize converts a pathsafe rejection into a storage error. The
// *pathsafe.Error stays reachable through errors.As.
func fromSanitize(op string, err error) error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: err}
}
