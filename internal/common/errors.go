// Package common defines shared constants and sentinel errors used across
// the data layer. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound    = errors.New("not found")
	ErrInvalidData = errors.New("invalid data")

	// Remote store errors. ErrNetworkUnavailable is never surfaced to the
	// caller of a local write; it only routes the item into the pending set.
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrQuotaExceeded      = errors.New("storage quota exceeded")
	ErrConflict           = errors.New("remote write conflict")
)

// Retryable reports whether a sync failure is worth another attempt.
// Quota exhaustion is terminal until the user frees remote storage, and
// malformed data cannot heal on its own.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrQuotaExceeded) && !errors.Is(err, ErrInvalidData)
}
