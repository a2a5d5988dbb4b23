package apperrors

import (
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryStorage runs op, retrying with exponential backoff when the failure is
// a transient StorageError (connection, timeout). Validation errors and
// constraint violations surface immediately.
func RetryStorage(logger *slog.Logger, maxAttempts uint64, op func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
	), maxAttempts)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}

		var se *StorageError
		if errors.As(err, &se) && se.Retriable() {
			logger.Warn("Transient storage failure, retrying",
				slog.Int("attempt", attempt),
				slog.String("class", string(se.Class)),
				slog.Any("error", err))
			return err
		}

		return backoff.Permanent(err)
	}, policy)
}
