package errors

// Postgres-specific helpers for mapping pgx errors raised by the direct ConsDB
// querier to project ErrorCode values, and their retry semantics

import (
	"context"
	stderrs "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes a read-only consolidated database can produce
const (
	pgErrSyntaxError          = "42601"
	pgErrUndefinedTable       = "42P01"
	pgErrUndefinedColumn      = "42703"
	pgErrUndefinedFunction    = "42883"
	pgErrInsufficientPrivs    = "42501"
	pgErrInvalidSchemaName    = "3F000"
	pgErrDivisionByZero       = "22012"
	pgErrInvalidTextRepr      = "22P02"
	pgErrInvalidDatetime      = "22007"
	pgErrQueryCanceled        = "57014"
	pgErrSerializationFailure = "40001"
	pgErrDeadlockDetected     = "40P01"
	pgErrCannotConnectNow     = "57P03"
	pgErrAdminShutdown        = "57P01"
	pgErrTooManyConnections   = "53300"
)

// ExtractPgError returns (*pgconn.PgError, true) if the root cause is a PgError
func ExtractPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if stderrs.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// IsSQLState reports whether the error is a Postgres error with the given SQLSTATE code
func IsSQLState(err error, code string) bool {
	pgErr, ok := ExtractPgError(err)
	return ok && pgErr.Code == code
}

// DBErrorCode maps a Postgres error to an ErrorCode with an ok flag
// !ok means err wasn't a PgError; caller may fall back to generic handling
func DBErrorCode(err error) (ErrorCode, bool) {
	pgErr, ok := ExtractPgError(err)
	if !ok {
		return ErrorCodeUnknown, false
	}

	switch pgErr.Code {
	case pgErrSyntaxError, pgErrUndefinedTable, pgErrUndefinedColumn, pgErrUndefinedFunction,
		pgErrInvalidSchemaName, pgErrDivisionByZero, pgErrInvalidTextRepr, pgErrInvalidDatetime:
		// the statement itself is wrong; same class as a ConsDB HTTP 500 with a message
		return ErrorCodeQuery, true

	case pgErrInsufficientPrivs:
		return ErrorCodeUnauthorized, true

	case pgErrCannotConnectNow, pgErrAdminShutdown, pgErrTooManyConnections,
		pgErrSerializationFailure, pgErrDeadlockDetected, pgErrQueryCanceled:
		return ErrorCodeUnavailable, true
	}

	return ErrorCodeDB, true
}

// FromPostgres wraps a pg error with a mapped ErrorCode and message.
// If err is nil, returns nil
func FromPostgres(err error, msg string) error {
	if err == nil {
		return nil
	}
	if code, ok := DBErrorCode(err); ok {
		return Wrap(err, code, msg)
	}
	return Wrap(err, ErrorCodeDB, msg)
}

// FromPostgresf is the formatted variant of FromPostgres
func FromPostgresf(err error, format string, a ...any) error {
	return FromPostgres(err, fmt.Sprintf(format, a...))
}

// PgMessage returns the server message (and detail, when present) of a PgError
func PgMessage(err error) string {
	pgErr, ok := ExtractPgError(err)
	if !ok {
		return ""
	}
	if d := strings.TrimSpace(pgErr.Detail); d != "" {
		return pgErr.Message + ": " + d
	}
	return pgErr.Message
}

// IsRetryable reports whether a database error represents a transient condition
// worth retrying. It handles both structured *pgconn.PgError codes and the
// generic driver text seen when the server drops a connection
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// local cancellations/timeouts are the caller's decision
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}

	if pgErr, ok := ExtractPgError(err); ok {
		switch pgErr.Code {
		case pgErrSerializationFailure, pgErrDeadlockDetected, pgErrCannotConnectNow,
			pgErrAdminShutdown, pgErrTooManyConnections:
			return true
		default:
			return false
		}
	}

	s := strings.ToLower(Root(err).Error())
	switch {
	case strings.Contains(s, "conn closed"),
		strings.Contains(s, "connection reset by peer"),
		strings.Contains(s, "unexpected eof"),
		strings.Contains(s, "terminating connection due to administrator command"):
		return true
	default:
		return false
	}
}
