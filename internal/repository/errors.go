// Package repository defines the error taxonomy shared by the stores,
// services and handlers.  Every failure surfaced to callers is an *Error
// carrying a Kind and a stable machine-readable Code; the sentinel values
// below let higher layers test for a kind with errors.Is.  Raw driver
// errors are translated by TranslateDBError and never leak upward.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindBusinessRule
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Stable error codes returned to clients.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeConflictDuplicate = "CONFLICT_DUPLICATE"
	CodeConflictVersion   = "CONFLICT_VERSION"
	CodeConflictTimestamp = "CONFLICT_TIMESTAMP"
	CodeConflict          = "CONFLICT"
	CodeNotFound          = "NOT_FOUND"
	CodeBusinessRule      = "BUSINESS_RULE"
	CodeForbidden         = "FORBIDDEN"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error is the typed error used across the engine.  Details holds
// structured context such as a list of field errors; Err keeps the
// underlying cause for logging.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind.  A target without a Code
// matches every code of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || t.Code == e.Code)
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict        = &Error{Kind: KindConflict, Message: "conflict"}
	ErrVersionConflict = &Error{Kind: KindConflict, Code: CodeConflictVersion, Message: "version conflict"}
	ErrForbidden       = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrBusinessRule    = &Error{Kind: KindBusinessRule, Message: "business rule violation"}
	ErrValidation      = &Error{Kind: KindValidation, Message: "validation failed"}
)

// NotFound builds a not-found error for the named resource.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: what + " not found"}
}

// Conflict builds a conflict error with the given code.
func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

// Validation builds a validation error; details usually holds the list of
// field errors.
func Validation(msg string, details any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: msg, Details: details}
}

// BusinessRule builds a business-rule error.
func BusinessRule(msg string) *Error {
	return &Error{Kind: KindBusinessRule, Code: CodeBusinessRule, Message: msg}
}

// Forbidden builds a policy-denied error.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: msg}
}

// Internal wraps an unexpected failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: msg, Err: err}
}

// KindOf reports the Kind of err; anything that is not an *Error is
// internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MySQL server error numbers translated by TranslateDBError.
const (
	mysqlDuplicateEntry = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
	mysqlBadNull         = 1048
	mysqlDataTooLong     = 1406
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// TranslateDBError converts driver failures into the taxonomy.  Errors that
// are already *Error pass through; sql.ErrNoRows becomes a NotFound for
// what.  Anything unrecognised is Internal with the driver error kept as the
// cause only.
func TranslateDBError(err error, what string) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound(what)
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDuplicateEntry:
			return &Error{Kind: KindConflict, Code: CodeConflictDuplicate, Message: what + " already exists", Err: err}
		case mysqlRowIsReferenced, mysqlNoReferencedRow:
			return &Error{Kind: KindConflict, Code: CodeConflict, Message: what + " violates a reference constraint", Err: err}
		case mysqlBadNull, mysqlDataTooLong:
			return &Error{Kind: KindValidation, Code: CodeValidation, Message: what + " has an invalid column value", Err: err}
		case mysqlLockWaitTimeout, mysqlDeadlock:
			return &Error{Kind: KindConflict, Code: CodeConflict, Message: what + " is locked by another writer, retry", Err: err}
		}
	}
	return Internal(what+": database error", err)
}
