// Package engineerr holds the error taxonomy shared by the timer engine.
package engineerr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrTransientStorage marks connectivity or timeout failures. A sweep that hits one
	// aborts the remainder of its batch; the whole sweep is safe to retry.
	ErrTransientStorage = errors.New("transient storage error")

	// ErrConcurrencyConflict means another process already handled the row.
	// Sweeps treat it as a no-op.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrDataIntegrity marks a malformed or dangling row.
	ErrDataIntegrity = errors.New("data integrity error")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrDuplicateTimer    = errors.New("duplicate response timer")
	ErrNotFound          = errors.New("not found")
)

// InsufficientFundsError reports a penalty larger than the participant's budget.
type InsufficientFundsError struct {
	Requested decimal.Decimal
	Applied   decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %s, applied %s, shortfall %s",
		e.Requested.StringFixed(2), e.Applied.StringFixed(2), e.Shortfall.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// InvalidTransitionError reports a state change attempted from a terminal or mismatched state.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// DataIntegrity wraps err as a data integrity failure.
func DataIntegrity(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataIntegrity, fmt.Sprintf(format, args...))
}

// IsTransient reports whether err should abort a batch.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStorage)
}
