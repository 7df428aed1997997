package crypto

import (
	"context"
	"crypto/subtle"
	"time"
)

// ConstantTimeCompare reports whether a and b are equal. Only the length
// check may return early; the content comparison touches every byte.
func ConstantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	clear(b)
}

// WipeAll zeroes every buffer.
func WipeAll(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
	}
}

// padUntil suspends the calling goroutine until start+minDuration has
// passed. It returns ctx.Err() if the context ends first.
func padUntil(ctx context.Context, start time.Time, minDuration time.Duration) error {
	remaining := time.Until(start.Add(minDuration))
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
