package telemetry_pipeline

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// defaultRetryAfter is applied when a 429 carries no usable Retry-After
const defaultRetryAfter = 60 * time.Second

// RateLimiter holds the single global send-suppression window. There is no
// per-category granularity: one window blocks every send. Lookups are
// instantaneous; a blocked caller skips its send attempt and leaves the
// queue untouched for the next trigger.
type RateLimiter struct {
	mu           sync.RWMutex
	blockedUntil time.Time
	logger       *zap.Logger
}

// NewRateLimiter creates a new rate limiter instance
func NewRateLimiter(logger *zap.Logger) *RateLimiter {
	return &RateLimiter{logger: logger}
}

// IsBlocked reports whether sends are suppressed at the given instant
func (rl *RateLimiter) IsBlocked(now time.Time) bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.blockedUntil.After(now)
}

// Block suppresses sends until the given instant. The latest server signal
// is authoritative: a new value overwrites the stored one rather than being
// combined with it, so server guidance always supersedes local state.
func (rl *RateLimiter) Block(until time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.blockedUntil = until
	rl.logger.Warn("rate limit applied",
		zap.Time("blocked_until", until))
}

// BlockedUntil returns the end of the current window (zero if none was set)
func (rl *RateLimiter) BlockedUntil() time.Time {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.blockedUntil
}

// HandleResponse updates the window from a transport response. Only a 429
// changes anything; other statuses never clear an existing window.
func (rl *RateLimiter) HandleResponse(statusCode int, header http.Header, now time.Time) {
	if statusCode != http.StatusTooManyRequests {
		return
	}
	rl.Block(now.Add(parseRetryAfter(header.Get("Retry-After"))))
}

// parseRetryAfter parses the Retry-After header as integer seconds, falling
// back to the default window
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}
