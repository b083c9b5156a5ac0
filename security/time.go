package security

import "time"

// IsExpired reports whether an expiry timestamp has passed.
//
// Authorization state records are issued and checked against the same clock
// (the storage layer's), so no clock-skew grace period is applied: a state
// whose expires_at has passed must never be treated as valid, even if
// physical deletion has not happened yet.
//
// A zero expiry time means the record never expires.
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredAt(expiresAt, time.Now())
}

// IsExpiredAt reports whether expiresAt has passed relative to now.
// Storage backends that evaluate expiry remotely (e.g. inside a Valkey
// script) pass a single authoritative timestamp here rather than reading
// the clock twice.
func IsExpiredAt(expiresAt, now time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt)
}
