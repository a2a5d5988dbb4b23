package apperrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/apperrors"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/testsupport"
)

func TestWrapStorageClassification(t *testing.T) {
	cases := []struct {
		message string
		class   apperrors.StorageErrorClass
	}{
		{"database is locked", apperrors.StorageClassConnection},
		{"connection refused", apperrors.StorageClassConnection},
		{"context deadline exceeded", apperrors.StorageClassTimeout},
		{"UNIQUE constraint failed: page_visits.id", apperrors.StorageClassConstraint},
		{"cannot start a transaction within a transaction", apperrors.StorageClassTransaction},
		{"no such column: bogus", apperrors.StorageClassQuery},
	}

	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			err := apperrors.WrapStorage("insert visit", errors.New(tc.message))
			var se *apperrors.StorageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.class, se.Class)
			assert.Equal(t, "insert visit", se.Op)
		})
	}
}

func TestWrapStorageIsIdempotent(t *testing.T) {
	inner := apperrors.NewStorageError(apperrors.StorageClassConstraint, "insert", errors.New("unique"))
	assert.Same(t, error(inner), apperrors.WrapStorage("outer", inner))
	assert.NoError(t, apperrors.WrapStorage("noop", nil))
}

func TestStorageErrorRetriable(t *testing.T) {
	assert.True(t, apperrors.NewStorageError(apperrors.StorageClassConnection, "w", errors.New("locked")).Retriable())
	assert.True(t, apperrors.NewStorageError(apperrors.StorageClassTimeout, "w", errors.New("slow")).Retriable())
	assert.False(t, apperrors.NewStorageError(apperrors.StorageClassConstraint, "w", errors.New("dup")).Retriable())
	assert.False(t, apperrors.NewStorageError(apperrors.StorageClassQuery, "w", errors.New("syntax")).Retriable())
}

func TestRetryStorageRetriesTransientFailures(t *testing.T) {
	logger := testsupport.GetLogger()

	attempts := 0
	err := apperrors.RetryStorage(logger, 3, func() error {
		attempts++
		if attempts < 3 {
			return apperrors.NewStorageError(apperrors.StorageClassConnection, "write", errors.New("database is locked"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStorageDoesNotRetryPermanentFailures(t *testing.T) {
	logger := testsupport.GetLogger()

	attempts := 0
	err := apperrors.RetryStorage(logger, 3, func() error {
		attempts++
		return apperrors.NewStorageError(apperrors.StorageClassConstraint, "write", errors.New("unique constraint"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	attempts = 0
	verr := apperrors.RetryStorage(logger, 3, func() error {
		attempts++
		return apperrors.NewValidationError("pageUrl", "pageUrl is required")
	})
	require.Error(t, verr)
	assert.Equal(t, 1, attempts)
	assert.True(t, apperrors.IsValidation(verr))
}

func TestValidationErrorFormatting(t *testing.T) {
	assert.Equal(t, "pageUrl: pageUrl is required",
		apperrors.NewValidationError("pageUrl", "pageUrl is required").Error())
	assert.Equal(t, "startDate and endDate are required",
		apperrors.NewValidationError("", "startDate and endDate are required").Error())
}
