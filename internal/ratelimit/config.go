package ratelimit

import "time"

// Schedule maps the n-th consecutive denial (1-based) to the backoff
// applied after it. Counts past the end reuse the last step.
type Schedule []time.Duration

// DefaultSchedule allows two quick denials before backing off, then
// escalates to five minutes.
var DefaultSchedule = Schedule{
	0,
	0,
	5 * time.Second,
	15 * time.Second,
	60 * time.Second,
	300 * time.Second,
}

// Backoff returns the wait imposed after the count-th denial.
func (s Schedule) Backoff(count int) time.Duration {
	if len(s) == 0 || count <= 0 {
		return 0
	}
	if count > len(s) {
		count = len(s)
	}
	return s[count-1]
}
