package dto

import "time"

// RateLimitInfo is the outcome of one window check.
type RateLimitInfo struct {
	Allowed      bool          `json:"allowed"`
	Policy       string        `json:"policy"`
	Limit        int           `json:"limit"`
	Remaining    int           `json:"remaining"`
	ResetTime    time.Time     `json:"reset_time"`
	RetryAfter   time.Duration `json:"retry_after,omitempty"`
	BlockedUntil *time.Time    `json:"blocked_until,omitempty"`
}

// RetryAfterSeconds rounds the retry hint up to whole seconds, never negative.
func (i RateLimitInfo) RetryAfterSeconds() int {
	if i.RetryAfter <= 0 {
		return 0
	}
	secs := int(i.RetryAfter / time.Second)
	if i.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

type RateLimitPolicyInfo struct {
	Name          string `json:"name"`
	PathPrefix    string `json:"path_prefix"`
	Method        string `json:"method,omitempty"`
	MaxRequests   int    `json:"max_requests"`
	WindowSeconds int    `json:"window_seconds"`
	BlockSeconds  int    `json:"block_seconds"`
}

type RateLimitStats struct {
	Entries        int                   `json:"entries"`
	BlockedEntries int                   `json:"blocked_entries"`
	TotalEvictions int64                 `json:"total_evictions"`
	LastSweepAt    *time.Time            `json:"last_sweep_at,omitempty"`
	Policies       []RateLimitPolicyInfo `json:"policies"`
	Timestamp      time.Time             `json:"timestamp"`
}
