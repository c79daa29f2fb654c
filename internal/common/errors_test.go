package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsufficientFundsError(t *testing.T) {
	var err error = &InsufficientFundsError{UserID: 7, Required: 70, Available: 50}

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, IsClientError(err))
	assert.False(t, IsFatal(err))

	var target *InsufficientFundsError
	require.ErrorAs(t, fmt.Errorf("spend: %w", err), &target)
	assert.Equal(t, int64(20), target.Shortfall())
	assert.Contains(t, err.Error(), "20")
}

func TestShortfallNeverNegative(t *testing.T) {
	e := &InsufficientFundsError{Required: 10, Available: 30}
	assert.Zero(t, e.Shortfall())
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsClientError(fmt.Errorf("x: %w", ErrInvalidPlan)))
	assert.True(t, IsFatal(fmt.Errorf("%w: %w", ErrUnreconciledDebit, errors.New("db down"))))
	assert.False(t, IsClientError(ErrStorageUnavailable))
	assert.False(t, IsFatal(ErrAlreadyGranted))
}
