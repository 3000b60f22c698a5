package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/jobqueue/internal/errs"
)

// PostgreSQL SQLSTATE codes relevant to establishing a session.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection          = "08" // connection_exception
	pgClassInvalidAuth         = "28" // invalid_authorization_specification, invalid_password
	pgErrInvalidCatalogName    = "3D000"
	pgErrTooManyConnections    = "53300"
	pgErrCannotConnectNow      = "57P03"
	pgErrInsufficientPrivilege = "42501"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindCanceled, msg, err)
	}
	if isTimeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Server-side rejection during startup
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	var parseErr *pgconn.ParseConfigError
	if errors.As(err, &parseErr) {
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	}

	// Fallthrough: dial, TLS and I/O errors
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifySQLState maps a SQLSTATE code to an ErrKind.
func classifySQLState(code string) errs.ErrKind {
	switch {
	case strings.HasPrefix(code, pgClassInvalidAuth), code == pgErrInsufficientPrivilege:
		return errs.ErrKindAuthFailed
	case code == pgErrInvalidCatalogName:
		return errs.ErrKindInvalidInput
	case strings.HasPrefix(code, pgClassConnection),
		code == pgErrTooManyConnections,
		code == pgErrCannotConnectNow:
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindUnknown
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
