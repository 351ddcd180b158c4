package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("symbol not found")
	ErrInvalid  = errors.New("invalid record")

	errLineTooLong = fmt.Errorf("line too long (max %d bytes)", maxLineBytes)
)

// NotFoundError 查询未命中；属于正常结果，不应视为致命错误。
type NotFoundError struct {
	Symbol string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no data for symbol %s", e.Symbol)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError 字段越界或 symbol 不匹配。Err 保留底层原因（如 strconv 错误）。
type ValidationError struct {
	Symbol string
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s", e.Field)
	if e.Symbol != "" {
		msg += " for " + e.Symbol
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// ParseError 描述加载过程中被跳过的一行。
type ParseError struct {
	Source string
	Line   int
	Text   string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: parse %q: %v", e.Source, e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SourceError wraps an I/O failure while reading a source. Line is the last line
// read successfully before the failure (0 when the source could not be opened).
type SourceError struct {
	Source string
	Line   int
	Err    error
}

func (e *SourceError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("read source %s after line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("read source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
