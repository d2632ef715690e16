package fits

import (
	"errors"
	"fmt"
)

var (
	ErrNotFITS     = errors.New("fits: not a FITS file")
	ErrTruncated   = errors.New("fits: truncated file")
	ErrHDUNotFound = errors.New("fits: HDU not found")
	ErrClosed      = errors.New("fits: file is closed")
	ErrNoEND       = errors.New("fits: header has no END record")
)

// ErrorCode classifies a failure for callers.
type ErrorCode string

const (
	NullInput       ErrorCode = "NULL_INPUT"       // required argument missing
	IllegalInput    ErrorCode = "ILLEGAL_INPUT"    // malformed id, flags, position or name
	DataNotFound    ErrorCode = "DATA_NOT_FOUND"   // named or positioned HDU absent
	AssigningStream ErrorCode = "ASSIGNING_STREAM" // source file could not be opened
	IllegalOutput   ErrorCode = "ILLEGAL_OUTPUT"   // derived header or identity could not be built
	FileNotCreated  ErrorCode = "FILE_NOT_CREATED"
	UnsupportedMode ErrorCode = "UNSUPPORTED_MODE"
	TypeMismatch    ErrorCode = "TYPE_MISMATCH" // HDU shape contradicts the data unit variant
	BadFileFormat   ErrorCode = "BAD_FILE_FORMAT"
)

// Error is a coded error. Op names the failing operation.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a coded error with a formatted message.
func NewError(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError attaches a code to err. A nil err yields nil.
func WrapError(code ErrorCode, op string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// Is reports whether err, or any error it wraps, carries the given code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Code == code {
			return true
		}
		err = fe.Err
	}
	return false
}

// CodeOf returns the code of the outermost coded error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return "", false
}
