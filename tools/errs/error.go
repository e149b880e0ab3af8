package errs

import (
	"errors"
	"fmt"
	"strings"

	pkgerr "github.com/pkg/errors"
)

type Error interface {
	Is(err error) bool
	Wrap() error
	WrapMsg(msg string, kv ...any) error
	error
}

func New(s string, kv ...any) Error {
	return &errorString{
		s: toString(s, kv),
	}
}

type errorString struct {
	s string
}

func (e *errorString) Is(err error) bool {
	if err == nil {
		return false
	}
	var t *errorString
	ok := errors.As(err, &t)
	return ok && e.s == t.s
}

func (e *errorString) Error() string {
	return e.s
}

func (e *errorString) Wrap() error {
	return pkgerr.WithStack(e)
}

func (e *errorString) WrapMsg(msg string, kv ...any) error {
	if msg == "" && len(kv) == 0 {
		return e.Wrap()
	}
	return pkgerr.WithStack(NewErrorWrapper(e, toString(msg, kv)))
}

type ErrorWrapper interface {
	Is(err error) bool
	Unwrap() error
	error
}

func NewErrorWrapper(err error, s string) ErrorWrapper {
	return &errorWrapper{error: err, s: s}
}

type errorWrapper struct {
	error
	s string
}

func (e *errorWrapper) Is(err error) bool {
	if err == nil {
		return false
	}
	var t *errorWrapper
	ok := errors.As(err, &t)
	return ok && e.s == t.s
}

func (e *errorWrapper) Error() string {
	return e.s + ": " + e.error.Error()
}

func (e *errorWrapper) Unwrap() error {
	return e.error
}

// toString 把 msg 与 k/v 拼成 "msg, k1=v1, k2=v2"
func toString(s string, kv []any) string {
	if len(kv) == 0 {
		return s
	}
	var sb strings.Builder
	sb.WriteString(s)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}
