// Package auth checks credentials and drives the account lockout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
)

var (
	// errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account deactivated")
)

// LockedError rejects a login while the account lockout runs.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Minutes() int { return user.RemainingMinutes(e.Remaining) }

func (e *LockedError) Error() string {
	n := e.Minutes()
	unit := "minutes"
	if n == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("account locked, try again in %d %s", n, unit)
}

// IPBlockedError rejects a login from an address with too many failures.
type IPBlockedError struct {
	Remaining time.Duration
}

func (e *IPBlockedError) Minutes() int { return user.RemainingMinutes(e.Remaining) }

func (e *IPBlockedError) Error() string {
	return fmt.Sprintf("too many attempts from this address, try again in %d minute(s)", e.Minutes())
}

type (
	// Attempt is one login try.
	Attempt struct {
		Email     string
		Password  string
		IP        string
		UserAgent string
	}

	Users interface {
		GetByEmail(ctx context.Context, email string) (user.User, error)
		RecordLoginState(ctx context.Context, usr user.User) error
		NotifyLocked(usr user.User, attempts, minutes int)
	}

	Settings interface {
		Int(ctx context.Context, key string, schoolID, userID int64) int
	}

	Config struct {
		MaxAttempts     int
		LockoutDuration time.Duration
	}

	Service struct {
		users    Users
		settings Settings
		recorder *audit.Recorder
		limiter  *IPLimiter
		logger   core.Logger
		conf     Config
	}
)

// NewService builds the login service. settings and limiter may be nil.
func NewService(users Users, settings Settings, recorder *audit.Recorder, limiter *IPLimiter, logger core.Logger, conf Config) *Service {
	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = user.DefaultMaxLoginAttempts
	}
	if conf.LockoutDuration <= 0 {
		conf.LockoutDuration = user.DefaultLockoutDuration
	}
	return &Service{users: users, settings: settings, recorder: recorder, limiter: limiter, logger: logger, conf: conf}
}

// maxAttempts is the lockout threshold of usr's school, from settings when available.
func (svc *Service) maxAttempts(ctx context.Context, usr user.User) int {
	if svc.settings != nil {
		if n := svc.settings.Int(ctx, setting.KeyMaxLoginAttempts, usr.SchoolID, usr.ID); n > 0 {
			return n
		}
	}
	return svc.conf.MaxAttempts
}

func (svc *Service) fail(at Attempt, usr *user.User, reason string) {
	l := audit.Log{Action: audit.ActionLoginFailed, Target: at.Email, IP: at.IP, UserAgent: at.UserAgent, Detail: reason}
	if usr != nil {
		l.UserID = audit.Int64Ptr(usr.ID)
		l.SchoolID = audit.Int64Ptr(usr.SchoolID)
	}
	svc.recorder.Record(l)
	if svc.limiter != nil && reason != audit.ReasonIPBlocked {
		svc.limiter.Fail(at.IP)
	}
}

// Login checks at. The rejection order is: blocked address, unknown email, running lockout
// (the password is not checked), inactive account, bad password. Reaching the threshold of bad
// passwords locks the account. Every attempt is audited.
func (svc *Service) Login(ctx context.Context, at Attempt) (user.User, error) {
	at.Email = core.CleanString(at.Email, true /* lower */)

	if svc.limiter != nil {
		if blocked, remaining := svc.limiter.Blocked(at.IP); blocked {
			svc.fail(at, nil, audit.ReasonIPBlocked)
			return user.User{}, &IPBlockedError{Remaining: remaining}
		}
	}

	usr, err := svc.users.GetByEmail(ctx, at.Email)
	if err != nil {
		if pkgerrors.Cause(err) == user.ErrNotFound {
			svc.fail(at, nil, audit.ReasonUnknownEmail)
			return user.User{}, ErrInvalidCredentials
		}
		return user.User{}, pkgerrors.Wrap(err, "finding user by email")
	}

	now := core.Now()
	if usr.IsLocked(now) {
		svc.fail(at, &usr, audit.ReasonLocked)
		return user.User{}, &LockedError{Remaining: usr.LockRemaining(now)}
	}
	if !usr.IsActive() {
		svc.fail(at, &usr, audit.ReasonInactive)
		return user.User{}, ErrAccountInactive
	}

	if err := usr.CheckPassword(at.Password); err != nil {
		max := svc.maxAttempts(ctx, usr)
		locked := usr.RegisterFailedLogin(now, max, svc.conf.LockoutDuration)
		if err := svc.users.RecordLoginState(ctx, usr); err != nil {
			return user.User{}, pkgerrors.Wrap(err, "recording failed login")
		}
		svc.fail(at, &usr, audit.ReasonBadPassword)
		if locked {
			svc.recorder.Record(audit.Log{
				UserID:    audit.Int64Ptr(usr.ID),
				Action:    audit.ActionUserLocked,
				Target:    usr.Email,
				IP:        at.IP,
				UserAgent: at.UserAgent,
				Detail:    fmt.Sprintf("%d failed attempts", max),
				SchoolID:  audit.Int64Ptr(usr.SchoolID),
			})
			svc.users.NotifyLocked(usr, max, user.RemainingMinutes(usr.LockRemaining(now)))
		}
		return user.User{}, ErrInvalidCredentials
	}

	usr.RegisterSuccessfulLogin(now)
	if err := svc.users.RecordLoginState(ctx, usr); err != nil {
		return user.User{}, pkgerrors.Wrap(err, "recording login")
	}
	if svc.limiter != nil {
		svc.limiter.Reset(at.IP)
	}
	svc.recorder.Record(audit.Log{
		UserID:    audit.Int64Ptr(usr.ID),
		Action:    audit.ActionLogin,
		Target:    usr.Email,
		IP:        at.IP,
		UserAgent: at.UserAgent,
		SchoolID:  audit.Int64Ptr(usr.SchoolID),
	})
	return usr, nil
}

// Logout audits the end of a session.
func (svc *Service) Logout(sess tenant.Session, ip, userAgent string) {
	svc.recorder.Record(audit.Log{
		UserID:    audit.Int64Ptr(sess.UserID),
		Action:    audit.ActionLogout,
		Target:    sess.Email,
		IP:        ip,
		UserAgent: userAgent,
		SchoolID:  audit.Int64Ptr(sess.SchoolID()),
	})
}

// SwitchSchool moves a super role session to schoolID, or back home when schoolID is 0.
func (svc *Service) SwitchSchool(sess tenant.Session, schoolID int64, ip string) (tenant.Session, error) {
	if schoolID == 0 {
		sess.ClearSwitch()
	} else if err := sess.Switch(schoolID); err != nil {
		return tenant.Session{}, err
	}
	svc.recorder.Record(audit.Log{
		UserID:   audit.Int64Ptr(sess.UserID),
		Action:   audit.ActionSchoolSwitch,
		Target:   fmt.Sprint(sess.SchoolID()),
		IP:       ip,
		SchoolID: audit.Int64Ptr(sess.SchoolID()),
	})
	return sess, nil
}
