package engineerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestInsufficientFundsError(t *testing.T) {
	err := &InsufficientFundsError{
		Requested: decimal.NewFromInt(10),
		Applied:   decimal.NewFromInt(4),
		Shortfall: decimal.NewFromInt(6),
	}
	wrapped := fmt.Errorf("apply penalty: %w", err)

	assert.True(t, errors.Is(wrapped, ErrInsufficientFunds))
	assert.Equal(t, "insufficient funds: requested 10.00, applied 4.00, shortfall 6.00", err.Error())

	var target *InsufficientFundsError
	assert.True(t, errors.As(wrapped, &target))
	assert.True(t, target.Shortfall.Equal(decimal.NewFromInt(6)))
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{Entity: "response timer", From: "expired", To: "accepted"}
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, "invalid response timer transition expired -> accepted", err.Error())
}

func TestDataIntegrityAndTransient(t *testing.T) {
	err := DataIntegrity("timer %d has no auction", 7)
	assert.True(t, errors.Is(err, ErrDataIntegrity))
	assert.False(t, IsTransient(err))
	assert.True(t, IsTransient(fmt.Errorf("list: %w", ErrTransientStorage)))
}
