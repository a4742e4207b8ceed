package model

import "time"

// RateLimitPolicy is compiled-in configuration; it is never persisted.
type RateLimitPolicy struct {
	Name          string        `json:"name"`
	Window        time.Duration `json:"window"`
	MaxRequests   int           `json:"max_requests"`
	BlockDuration time.Duration `json:"block_duration"` // zero: no temporary block
	Message       string        `json:"message"`
}

// RateRecord is the in-memory window state for one key (client IP + path).
type RateRecord struct {
	Key            string
	WindowCount    int
	WindowResetAt  time.Time
	Blocked        bool
	BlockExpiresAt time.Time
}

// Expired reports whether both the window and any block have lapsed, making
// the record eligible for eviction.
func (r *RateRecord) Expired(now time.Time) bool {
	if now.Before(r.WindowResetAt) {
		return false
	}
	return !r.Blocked || !now.Before(r.BlockExpiresAt)
}
