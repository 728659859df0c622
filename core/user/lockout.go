package user

import (
	"math"
	"time"
)

const (
	DefaultMaxLoginAttempts = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// IsLocked reports whether a lockout is still running at `now`.
func (u User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// LockRemaining is the time left before the lockout ends, zero when not locked.
func (u User) LockRemaining(now time.Time) time.Duration {
	if !u.IsLocked(now) {
		return 0
	}
	return u.LockedUntil.Sub(now)
}

// RemainingMinutes rounds a lockout remainder up to whole minutes.
func RemainingMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

// RegisterFailedLogin counts a bad password. Reaching maxAttempts locks the account
// for lockFor and resets the counter. It returns true when the account got locked.
func (u *User) RegisterFailedLogin(now time.Time, maxAttempts int, lockFor time.Duration) bool {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxLoginAttempts
	}
	if lockFor <= 0 {
		lockFor = DefaultLockoutDuration
	}
	u.FailedLogins++
	if u.FailedLogins >= maxAttempts {
		until := now.Add(lockFor).UTC()
		u.LockedUntil = &until
		u.FailedLogins = 0
		return true
	}
	return false
}

// RegisterSuccessfulLogin resets the lockout state and stamps the last access.
func (u *User) RegisterSuccessfulLogin(now time.Time) {
	now = now.UTC()
	u.FailedLogins = 0
	u.LockedUntil = nil
	u.LastLogin = &now
}

// Unlock clears a running lockout.
func (u *User) Unlock() {
	u.FailedLogins = 0
	u.LockedUntil = nil
}
