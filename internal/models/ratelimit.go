package models

import "time"

// RateLimitRecord is the per-client counter of one limiter preset.
// Key is "user:<id>" or "ip:<addr>".
type RateLimitRecord struct {
	Key           string     `json:"key"`
	Preset        string     `json:"preset"`
	Count         int        `json:"count"`
	WindowResetAt time.Time  `json:"window_reset_at"`
	Blocked       bool       `json:"blocked"`
	BlockUntil    *time.Time `json:"block_until,omitempty"`
}

// IsBlockedAt reports whether the record rejects requests at now.
func (r *RateLimitRecord) IsBlockedAt(now time.Time) bool {
	return r.Blocked && r.BlockUntil != nil && !now.After(*r.BlockUntil)
}

// IsStaleAt reports whether both the window and any block have elapsed, so
// the record can be swept.
func (r *RateLimitRecord) IsStaleAt(now time.Time) bool {
	if !r.WindowResetAt.Before(now) {
		return false
	}
	return !r.Blocked || r.BlockUntil == nil || r.BlockUntil.Before(now)
}

// RateLimitExceededResponse is the 429 body.
type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after"`
}
