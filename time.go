package gateway

import "time"

// isWithin reports whether t is newer than now minus d.
func isWithin(t time.Time, d time.Duration, now time.Time) bool {
	return t.After(now.Add(-d))
}
