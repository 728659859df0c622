package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUser_RegisterFailedLogin(t *testing.T) {
	now := time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)
	var usr User

	assert.False(t, usr.RegisterFailedLogin(now, 3, 10*time.Minute))
	assert.False(t, usr.RegisterFailedLogin(now, 3, 10*time.Minute))
	assert.Equal(t, 2, usr.FailedLogins)
	assert.False(t, usr.IsLocked(now))

	assert.True(t, usr.RegisterFailedLogin(now, 3, 10*time.Minute))
	assert.Zero(t, usr.FailedLogins)
	assert.True(t, usr.IsLocked(now))
	assert.Equal(t, 10*time.Minute, usr.LockRemaining(now))
	assert.False(t, usr.IsLocked(now.Add(10*time.Minute)), "the lockout ends on time")

	usr.RegisterSuccessfulLogin(now)
	assert.Nil(t, usr.LockedUntil)
	assert.Equal(t, now, *usr.LastLogin)
}

func TestUser_RegisterFailedLogin_defaults(t *testing.T) {
	now := time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)
	var usr User
	for i := 1; i < DefaultMaxLoginAttempts; i++ {
		assert.False(t, usr.RegisterFailedLogin(now, 0, 0))
	}
	assert.True(t, usr.RegisterFailedLogin(now, 0, 0))
	assert.Equal(t, DefaultLockoutDuration, usr.LockRemaining(now))

	usr.Unlock()
	assert.False(t, usr.IsLocked(now))
	assert.Zero(t, usr.LockRemaining(now))
}

func TestRemainingMinutes(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Second, 1},
		{time.Minute, 1},
		{time.Minute + time.Second, 2},
		{30 * time.Minute, 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RemainingMinutes(tt.d), tt.d.String())
	}
}
