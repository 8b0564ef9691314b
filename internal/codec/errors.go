package codec

import (
	"errors"
	"fmt"
)

// FormatErrorCode categorizes decode failures.
type FormatErrorCode string

const (
	// ErrCodeUnknownEncoding means the input matches no supported format.
	ErrCodeUnknownEncoding FormatErrorCode = "UNKNOWN_ENCODING"

	// ErrCodeLex means a character outside the STD alphabet was found.
	ErrCodeLex FormatErrorCode = "LEX"

	// ErrCodeParse means tokens or fields did not form a valid event.
	ErrCodeParse FormatErrorCode = "PARSE"

	// ErrCodeTruncated means binary input ended inside a header or record.
	ErrCodeTruncated FormatErrorCode = "TRUNCATED"

	// ErrCodeBadOpcode means a binary record carries an unknown operation.
	ErrCodeBadOpcode FormatErrorCode = "BAD_OPCODE"

	// ErrCodeBadOperand means an operand names the wrong kind of object
	// for its operation, e.g. acquiring a memory location.
	ErrCodeBadOperand FormatErrorCode = "BAD_OPERAND"

	// ErrCodeIO means the input could not be read at all.
	ErrCodeIO FormatErrorCode = "IO"
)

// FormatError reports raw input that cannot be decoded into events.
// It is fatal: no analysis runs on partially decoded input.
type FormatError struct {
	Code   FormatErrorCode
	Format Format

	// Line and Column locate text errors (1-based, 0 when unknown).
	Line   int
	Column int

	// Offset locates binary errors (byte offset, -1 when unknown).
	Offset int64

	Message string
	Err     error
}

func (e *FormatError) Error() string {
	loc := ""
	switch {
	case e.Line > 0 && e.Column > 0:
		loc = fmt.Sprintf(" at %d:%d", e.Line, e.Column)
	case e.Line > 0:
		loc = fmt.Sprintf(" at line %d", e.Line)
	case e.Offset >= 0:
		loc = fmt.Sprintf(" at offset %d", e.Offset)
	}
	msg := fmt.Sprintf("%s %s%s: %s", e.Format, e.Code, loc, e.Message)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IsFormatError reports whether err is or wraps a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

func lineError(f Format, code FormatErrorCode, line, col int, format string, args ...any) *FormatError {
	return &FormatError{
		Code:    code,
		Format:  f,
		Line:    line,
		Column:  col,
		Offset:  -1,
		Message: fmt.Sprintf(format, args...),
	}
}

func offsetError(f Format, code FormatErrorCode, offset int64, format string, args ...any) *FormatError {
	return &FormatError{
		Code:    code,
		Format:  f,
		Offset:  offset,
		Message: fmt.Sprintf(format, args...),
	}
}
