// Package pathsafe validates caller-supplied path segments before they are
// joined into a filesystem path.
package pathsafe

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a segment was rejected.
type Kind int

const (
	// Empty means the segment was the empty string.
	Empty Kind = iota + 1
	// HiddenFile means the segment starts with a dot.
	HiddenFile
	// PathTraversal means the segment contains a separator or "..".
	// Callers should treat it as a security event.
	PathTraversal
	// IllegalChar means the segment contains a character that is invalid
	// on at least one supported platform.
	IllegalChar
	// TrailingDot means the segment ends with a dot, which Windows strips.
	TrailingDot
	// ReservedName means the segment is a Windows device name.
	ReservedName
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty input"
	case HiddenFile:
		return "hidden files not allowed"
	case PathTraversal:
		return "path traversal detected"
	case IllegalChar:
		return "illegal character detected"
	case TrailingDot:
		return "trailing dot not allowed"
	case ReservedName:
		return "reserved name not allowed"
	default:
		return fmt.Sprintf("unknown sanitize error %d", int(k))
	}
}

// Error reports a rejected segment.
type Error struct {
	Kind  Kind
	Input string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sanitize %q: %s", e.Input, e.Kind)
}

// Is matches another *Error with the same Kind, so callers can write
// errors.Is(err, &pathsafe.Error{Kind: pathsafe.PathTraversal}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Input == "" || t.Input == e.Input)
}

// reservedNames are the Windows device names, compared upper-cased.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

const illegalChars = ":*?<>|\"\t\n"

// Sanitize checks a single path segment and returns it unchanged when it is
// safe to use as a file name component. Checks run in a fixed order, so an
// input with several problems always reports the same Kind.
func Sanitize(input string) (string, error) {
	if input == "" {
		return "", &Error{Kind: Empty, Input: input}
	}

	if strings.ContainsAny(input, `/\`) {
		return "", &Error{Kind: PathTraversal, Input: input}
	}

	if strings.Contains(input, "..") {
		return "", &Error{Kind: PathTraversal, Input: input}
	}

	if strings.ContainsAny(input, illegalChars) {
		return "", &Error{Kind: IllegalChar, Input: input}
	}

	if strings.HasPrefix(input, ".") {
		return "", &Error{Kind: HiddenFile, Input: input}
	}

	if strings.HasSuffix(input, ".") {
		return "", &Error{Kind: TrailingDot, Input: input}
	}

	if _, ok := reservedNames[strings.ToUpper(input)]; ok {
		return "", &Error{Kind: ReservedName, Input: input}
	}

	return input, nil
}

// KindOf returns the Kind carried by err, or 0 if err is not a sanitize error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// IsTraversal reports whether err (or anything it wraps) is a PathTraversal
// rejection.
func IsTraversal(err error) bool {
	return KindOf(err) == PathTraversal
}
