package sqlutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/mcdev12/leaguetimers/go/internal/engineerr"
)

// Postgres error codes the engine cares about.
const (
	codeUniqueViolation  = "23505"
	codeTooManyConns     = "53300"
	codeAdminShutdown    = "57P01"
	codeCrashShutdown    = "57P02"
	codeCannotConnectNow = "57P03"
)

// Classify wraps connectivity-class failures with engineerr.ErrTransientStorage.
// Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, engineerr.ErrTransientStorage) {
		return err
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %w", engineerr.ErrTransientStorage, err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Class() == "08" {
			return true
		}
		switch pqErr.Code {
		case codeTooManyConns, codeAdminShutdown, codeCrashShutdown, codeCannotConnectNow:
			return true
		}
	}
	return false
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
