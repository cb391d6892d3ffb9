package supervisor

import (
	"strings"
	"time"
)

// unstableSubstrings classifies an error message as signaling endpoint
// instability (spec §7): the supervisor should rotate away from the
// current endpoint rather than keep retrying it.
var unstableSubstrings = []string{
	"too many requests",
	"429",
	"bad_data",
	"timeout",
}

// IsUnstable reports whether err's message suggests the current
// endpoint has gone bad and should be rotated away from.
func IsUnstable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range unstableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// WithRetry executes op up to maxRetries+1 times, sleeping
// 1000×attempt ms between attempts. It surfaces the last error if all
// attempts fail. rotate is invoked synchronously, before the next
// attempt, when an attempt's error looks like endpoint instability, per
// spec §4.2/§7 (TriggerRotation itself is safe to call repeatedly).
func WithRetry(op func() error, maxRetries int, rotate func(reason string)) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if IsUnstable(lastErr) && rotate != nil {
			rotate(lastErr.Error())
		}

		if attempt <= maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	return lastErr
}
