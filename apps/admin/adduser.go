package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
)

// addUser updates or creates an active user.User, bypassing the password policy.
func (cli *commandLine) addUser(ctx context.Context, name, email, pwd, roleName string, schoolID int64) error {
	email = core.CleanString(email, true /* lower */)

	r, err := cli.roles.GetByName(ctx, roleName)
	if err != nil {
		return errors.Wrap(err, "role "+roleName)
	}
	if _, err = cli.schools.Get(ctx, schoolID, tenant.AllSchools()); err != nil {
		return err
	}

	now := core.Now()
	usr, err := cli.users.GetUserByEmail(ctx, email)
	found := err == nil
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return err
	}
	if !found {
		usr = user.User{Email: email, CreatedAt: now}
	}
	usr.Name = core.CleanString(name)
	usr.SchoolID = schoolID
	usr.RoleID = r.ID
	usr.RoleName = r.Name
	usr.Status = user.StatusActive
	usr.FailedLogins = 0
	usr.LockedUntil = nil
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if !found {
		_, err = cli.users.CreateUser(ctx, usr)
		return err
	}
	if usr, err = cli.users.UpdateUser(ctx, usr); err != nil {
		return err
	}
	// a running lockout is lifted too
	return cli.users.UpdateLoginState(ctx, usr)
}
