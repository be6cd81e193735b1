// Package apperror defines the structured failures returned by billing
// operations. Every failure carries a Kind (the taxonomy bucket, which
// drives the HTTP status) and a stable Code callers can switch on.
package apperror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindNotFound           Kind = "NOT_FOUND"
	KindConflict           Kind = "CONFLICT"
	KindInvalidState       Kind = "INVALID_STATE"
	KindLocked             Kind = "LOCKED"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindInternal           Kind = "INTERNAL"
)

// Stable error codes
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeActorRequired        = "ACTOR_REQUIRED"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeRetryableConflict    = "RETRYABLE_CONFLICT"
	CodeInvalidStatus        = "INVALID_STATUS"
	CodeInvoiceIssued        = "INVOICE_ALREADY_ISSUED"
	CodeAlreadyClosed        = "ALREADY_CLOSED"
	CodeBatchNotClosed       = "BATCH_NOT_CLOSED"
	CodeBatchInvoiced        = "BATCH_ALREADY_INVOICED"
	CodeBatchStale           = "BATCH_STALE"
	CodeReopenRequested      = "REOPEN_ALREADY_REQUESTED"
	CodeRateLocked           = "LOCKED"
	CodeFXNotFound           = "FX_NOT_FOUND"
	CodeNoPendingEvents      = "NO_PENDING_EVENTS"
	CodeNoActivePrice        = "NO_ACTIVE_PRICE"
	CodeInsufficientStock    = "INSUFFICIENT_STOCK"
	CodeLockOrderViolation   = "LOCK_ORDER_VIOLATION"
	CodeInternal             = "INTERNAL_ERROR"
	CodeDuplicateRate        = "DUPLICATE_EXCHANGE_RATE"
	CodeEventAlreadyInvoiced = "EVENT_ALREADY_INVOICED"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Code so sentinel comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether the caller may simply retry the operation.
func (e *Error) Retryable() bool {
	return e.Code == CodeRetryableConflict
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(message string) *Error {
	return New(KindValidation, CodeValidation, message)
}

func NotFound(entity string) *Error {
	return New(KindNotFound, CodeNotFound, entity+" not found")
}

func InvalidState(code, message string) *Error {
	return New(KindInvalidState, code, message)
}

func Precondition(code, message string) *Error {
	return New(KindPreconditionFailed, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Locked(message string) *Error {
	return New(KindLocked, CodeRateLocked, message)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, CodeInternal, message, err)
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the taxonomy bucket of err, INTERNAL when unclassified.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of err, INTERNAL_ERROR when unclassified.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// FromStorage classifies an error coming out of the database layer.
// Already classified errors pass through untouched.
func FromStorage(entity string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Wrap(KindNotFound, CodeNotFound, entity+" not found", err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Wrap(KindConflict, CodeConflict, entity+" already exists", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return Wrap(KindConflict, CodeConflict, entity+" already exists", err)
		case "40001", "40P01", "55P03":
			return Wrap(KindConflict, CodeRetryableConflict, "concurrent update on "+entity+", retry the request", err)
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return Wrap(KindConflict, CodeConflict, entity+" already exists", err)
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "deadlock detected"):
		return Wrap(KindConflict, CodeRetryableConflict, "concurrent update on "+entity+", retry the request", err)
	}

	return Internal("storage failure on "+entity, err)
}
