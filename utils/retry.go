package utils

import (
	"fmt"
	"time"
)

// Retry runs fn up to maxAttempts times with exponential backoff between
// attempts (2s, 4s, 8s, ...). Returns nil on the first success, otherwise
// the last error after all attempts are exhausted. Used for connection-level
// operations; fetch-task retries have their own classification policy.
func Retry(maxAttempts int, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt < maxAttempts {
			time.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}
