// Package errdef classifies engine errors so the connection driver can pick
// the connection-level consequence without inspecting messages.
package errdef

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeUnknown Code = "unknown"
	// CodeMalformed marks input that violates HTTP framing rules.
	CodeMalformed Code = "malformed"
	// CodeProtocol marks WebSocket or message-level protocol violations.
	CodeProtocol Code = "protocol"
	// CodeLimit marks a configured bound being exceeded.
	CodeLimit   Code = "limit"
	CodeEOF     Code = "eof"
	CodeTimeout Code = "timeout"
	CodeClosed  Code = "closed"
	// CodeUsage marks misuse of the API by the embedding application.
	CodeUsage Code = "usage"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Message != "":
		return e.Message
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap annotates err with a code and optional message, returning nil when err
// is nil.
func Wrap(code Code, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := ""
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Code: ensureCode(code), Message: msg, Err: err}
}

// New creates a formatted error with the supplied code.
func New(code Code, format string, args ...any) error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Code: ensureCode(code), Message: msg}
}

// CodeOf extracts the outermost code from the wrapped error value.
func CodeOf(err error) Code {
	var e *Error
	if stdErrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Is reports whether any error in err's chain carries code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !stdErrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// Message returns the error string or empty when the error is nil.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func ensureCode(code Code) Code {
	if code == "" {
		return CodeUnknown
	}
	return code
}
