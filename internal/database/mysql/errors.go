package mysql

import (
	"context"
	"errors"
	"fmt"
	"net"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/jobqueue/internal/errs"
)

// MySQL error numbers seen while opening a session
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied     = 1044
	errAccessDenied       = 1045
	errUnknownDatabase    = 1049
	errTooManyConnections = 1040
	errUserLimitReached   = 1203
	errHostNotPrivileged  = 1130
	errAccessDeniedNoPass = 1698
)

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindCanceled, msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errDBAccessDenied, errAccessDenied, errAccessDeniedNoPass, errHostNotPrivileged:
		return errs.ErrKindAuthFailed
	case errUnknownDatabase:
		return errs.ErrKindInvalidInput
	case errTooManyConnections, errUserLimitReached:
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindUnknown
	}
}
