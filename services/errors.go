package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type ErrorCode string

const (
	CodeInvalidInput      ErrorCode = "invalid_input"
	CodeNotFound          ErrorCode = "not_found"
	CodeConflict          ErrorCode = "conflict"
	CodeStorageFailure    ErrorCode = "storage_failure"
	CodeEvaluationFailure ErrorCode = "evaluation_failure"
	CodeTimeout           ErrorCode = "timeout"
)

// Error is the error type returned across the service boundary.
// Message is safe to show to callers; Cause is for logs only.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

func Wrap(code ErrorCode, op, message string, cause error) *Error {
	return &Error{Code: code, Op: op, Message: message, Cause: cause}
}

// CodeOf returns the code of the outermost *Error in err's chain, or
// storage_failure for anything unclassified.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStorageFailure
}

func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// Retryable reports whether repeating the operation may succeed.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeConflict, CodeTimeout, CodeStorageFailure:
		return true
	}
	return false
}

// errVersionMismatch marks a lost optimistic-concurrency race inside a unit of work.
var errVersionMismatch = errors.New("version mismatch")

// classifyStorageError maps driver and context errors onto the taxonomy.
func classifyStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, errVersionMismatch):
		return Wrap(CodeConflict, op, "concurrent update, please retry", err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(CodeNotFound, op, "not found", err)
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeTimeout, op, "operation timed out, please retry", err)
	case errors.Is(err, context.Canceled):
		return Wrap(CodeTimeout, op, "operation cancelled", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "23505":
			return Wrap(CodeConflict, op, "concurrent update, please retry", err)
		}
	}
	return Wrap(CodeStorageFailure, op, "storage unavailable, please retry later", err)
}
