// Package ratelimit implements a daily request quota for the shared search API key.
// The counter lives in Redis so every process using the same key draws from
// one budget, and it resets at midnight Japan time when the API's day rolls over.
package ratelimit

import (
	"time"
)

// RedisKeyPrefix prefixes the per-day counter key:
// gourmet:quota:<key hash>:<yyyy-mm-dd>.
const RedisKeyPrefix = "gourmet:quota"

// Thresholds for quota decisions.
const (
	// DefaultDailyLimit is used when no limit is configured.
	DefaultDailyLimit = 3000

	// WarningRatio is the share of the daily limit at which usage is logged as a warning.
	WarningRatio = 0.8
)

// QuotaZone is the time zone in which the quota day starts and ends.
var QuotaZone = time.FixedZone("JST", 9*60*60)

// QuotaState is the usage of the daily quota.
type QuotaState struct {
	// Used is the number of requests admitted today.
	Used int `json:"used"`

	// Limit is the number of requests admitted per day.
	Limit int `json:"limit"`

	// ResetAt is the start of the next quota day.
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns how many requests may still be admitted today.
func (s *QuotaState) Remaining() int {
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// Exhausted returns true once the daily limit has been reached.
func (s *QuotaState) Exhausted() bool {
	return s.Used >= s.Limit
}

// NearLimit returns true when usage has crossed the warning ratio but the
// quota is not yet exhausted.
func (s *QuotaState) NearLimit() bool {
	return float64(s.Used) >= float64(s.Limit)*WarningRatio && !s.Exhausted()
}

// TimeUntilReset returns the duration until the quota resets.
// Returns 0 if the reset time has already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// quotaDay returns the quota date of t and the start of the following day.
func quotaDay(t time.Time) (string, time.Time) {
	local := t.In(QuotaZone)
	y, m, d := local.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, QuotaZone)
	return local.Format("2006-01-02"), next
}
