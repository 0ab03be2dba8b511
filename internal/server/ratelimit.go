package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter counts requests and uploaded bytes per client in fixed
// minute, hour and day windows.
type RateLimiter struct {
	mu     sync.Mutex
	limits RateLimitConfig
	now    func() time.Time
	users  map[string]*UserUsage
}

// UserUsage tracks usage for one client.
type UserUsage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64

	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(limits RateLimitConfig) *RateLimiter {
	return &RateLimiter{limits: limits, now: time.Now, users: make(map[string]*UserUsage)}
}

// CheckRateLimit records a request of dataSize bytes from userID, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) CheckRateLimit(userID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	usage, ok := rl.users[userID]
	if !ok {
		usage = &UserUsage{minuteStart: now, hourStart: now, dayStart: startOfDay(now)}
		rl.users[userID] = usage
	}
	usage.roll(now)

	if n := rl.limits.RequestsPerMinute; n > 0 && usage.RequestsLastMinute >= n {
		return &RateLimitError{Type: "minute", Limit: n, RetryAfter: usage.minuteStart.Add(time.Minute).Sub(now)}
	}
	if n := rl.limits.RequestsPerHour; n > 0 && usage.RequestsLastHour >= n {
		return &RateLimitError{Type: "hour", Limit: n, RetryAfter: usage.hourStart.Add(time.Hour).Sub(now)}
	}
	resets := usage.dayStart.AddDate(0, 0, 1)
	if n := rl.limits.MaxRequestsPerDay; n > 0 && usage.RequestsToday >= n {
		return &QuotaExceededError{Type: "requests", Limit: int64(n), Used: int64(usage.RequestsToday), Resets: resets}
	}
	if n := rl.limits.MaxDataPerDay; n > 0 && usage.DataToday+dataSize > n {
		return &QuotaExceededError{Type: "data", Limit: n, Used: usage.DataToday, Resets: resets}
	}

	usage.RequestsLastMinute++
	usage.RequestsLastHour++
	usage.RequestsToday++
	usage.DataToday += dataSize
	return nil
}

// roll starts new windows once the current ones have elapsed.
func (u *UserUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.RequestsLastMinute = 0
		u.minuteStart = now
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.RequestsLastHour = 0
		u.hourStart = now
	}
	if day := startOfDay(now); !day.Equal(u.dayStart) {
		u.RequestsToday = 0
		u.DataToday = 0
		u.dayStart = day
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GetUsage returns a copy of the usage recorded for userID.
func (rl *RateLimiter) GetUsage(userID string) UserUsage {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if usage, ok := rl.users[userID]; ok {
		return *usage
	}
	return UserUsage{}
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a daily quota violation.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
