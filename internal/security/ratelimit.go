package security

import (
	"fmt"
	"sync"
	"time"

	"github.com/acolita/appliance-shell/internal/adapters/realclock"
	"github.com/acolita/appliance-shell/internal/ports"
)

// DefaultMaxAuthFailures is the default number of failures before lockout.
const DefaultMaxAuthFailures = 3

// DefaultAuthLockoutDuration is the default lockout duration.
const DefaultAuthLockoutDuration = 5 * time.Minute

// AuthRateLimiter tracks login failures per user@host and enforces lockout,
// so a wrong stored password cannot lock the appliance account.
type AuthRateLimiter struct {
	mu              sync.RWMutex
	failures        map[string]*authFailure
	maxFailures     int
	lockoutDuration time.Duration
	clock           ports.Clock
}

type authFailure struct {
	count    int
	lockedAt time.Time
}

// NewAuthRateLimiter creates a new auth rate limiter.
func NewAuthRateLimiter(maxFailures int, lockoutDuration time.Duration, clock ports.Clock) *AuthRateLimiter {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxAuthFailures
	}
	if lockoutDuration <= 0 {
		lockoutDuration = DefaultAuthLockoutDuration
	}
	if clock == nil {
		clock = realclock.New()
	}
	return &AuthRateLimiter{
		failures:        make(map[string]*authFailure),
		maxFailures:     maxFailures,
		lockoutDuration: lockoutDuration,
		clock:           clock,
	}
}

func limiterKey(host, user string) string {
	return fmt.Sprintf("%s@%s", user, host)
}

// IsLocked reports whether logins to user@host are locked and for how long.
func (r *AuthRateLimiter) IsLocked(host, user string) (bool, time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.failures[limiterKey(host, user)]
	if !ok || f.lockedAt.IsZero() {
		return false, 0
	}
	elapsed := r.clock.Now().Sub(f.lockedAt)
	if elapsed >= r.lockoutDuration {
		return false, 0
	}
	return true, r.lockoutDuration - elapsed
}

// RecordFailure records a failed login.
func (r *AuthRateLimiter) RecordFailure(host, user string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := limiterKey(host, user)
	f, ok := r.failures[k]
	if !ok {
		f = &authFailure{}
		r.failures[k] = f
	}

	now := r.clock.Now()
	if !f.lockedAt.IsZero() && now.Sub(f.lockedAt) >= r.lockoutDuration {
		f.count = 0
		f.lockedAt = time.Time{}
	}

	f.count++
	if f.count >= r.maxFailures {
		f.lockedAt = now
	}
}

// RecordSuccess resets the failure count for user@host.
func (r *AuthRateLimiter) RecordSuccess(host, user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failures, limiterKey(host, user))
}
