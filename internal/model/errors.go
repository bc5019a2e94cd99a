package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies pipeline failures. Callers decide whether to abort or skip a category.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "NOT_FOUND"
	KindSchemaMismatch ErrorKind = "SCHEMA_MISMATCH"
	KindParse          ErrorKind = "PARSE_ERROR"
	KindAlignment      ErrorKind = "ALIGNMENT_ERROR"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrSchemaMismatch = &Error{Kind: KindSchemaMismatch}
	ErrParse          = &Error{Kind: KindParse}
	ErrAlignment      = &Error{Kind: KindAlignment}
)

// Error is the typed error returned by the registry, loader and preprocessor.
type Error struct {
	Kind     ErrorKind
	Category Category
	Path     string
	Line     int    // 1-based source line, 0 if not row specific
	Column   string // source column, if known
	Value    string // offending cell text, if any
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(e.Kind)))
	if e.Category != "" {
		fmt.Fprintf(&b, " [%s]", e.Category)
	}
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %q", e.Column)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " value %q", e.Value)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, ErrParse) works through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func NotFound(c Category, path, msg string) *Error {
	return &Error{Kind: KindNotFound, Category: c, Path: path, Msg: msg}
}

func Alignment(msg string, args ...any) *Error {
	return &Error{Kind: KindAlignment, Msg: fmt.Sprintf(msg, args...)}
}
