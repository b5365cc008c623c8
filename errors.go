package fdbsql

import (
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
)

// SQLSTATE codes the adapter reacts to.
const (
	staleStatementCode      = "0A50A"
	uniqueViolationCode     = "23505"
	duplicateKeyCode        = "23501"
	foreignKeyViolationCode = "23503"
)

var (
	// ErrStaleStatement is matched by a StatementError whose prepared statement was still reported stale after it was
	// prepared again.
	ErrStaleStatement = errors.New("prepared statement is stale")

	// ErrRecordNotUnique is matched by a StatementError caused by a unique or primary key violation.
	ErrRecordNotUnique = errors.New("record not unique")

	// ErrInvalidForeignKey is matched by a StatementError caused by a foreign key violation.
	ErrInvalidForeignKey = errors.New("invalid foreign key")

	// ErrConnClosed occurs when an operation is attempted on a closed connection.
	ErrConnClosed = errors.New("conn closed")
)

// PrepareError occurs when the server refuses to prepare a statement.
type PrepareError struct {
	SQL string
	Err error
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare %q: %v", e.SQL, e.Err)
}

func (e *PrepareError) Unwrap() error {
	return e.Err
}

// StatementError occurs when a statement fails to execute. Code is the SQLSTATE reported by the server, if any.
type StatementError struct {
	SQL  string
	Code string
	Err  error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("execute %q: %v", e.SQL, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// Is reports whether the server error classifies as target.
func (e *StatementError) Is(target error) bool {
	switch target {
	case ErrStaleStatement:
		return e.Code == staleStatementCode
	case ErrRecordNotUnique:
		return e.Code == uniqueViolationCode || e.Code == duplicateKeyCode
	case ErrInvalidForeignKey:
		return e.Code == foreignKeyViolationCode
	}
	return false
}

func isStaleStatement(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == staleStatementCode
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// translateError wraps err, as returned by the server for sql, into a StatementError.
func translateError(err error, sql string) error {
	if err == nil {
		return nil
	}
	var stmtErr *StatementError
	if errors.As(err, &stmtErr) {
		return err
	}
	return &StatementError{SQL: sql, Code: sqlState(err), Err: err}
}
