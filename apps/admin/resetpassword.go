package main

import (
	"context"
)

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	usr, err := cli.userSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if _, err := cli.userSvc.SetPassword(ctx, usr, pwd); err != nil {
		return err
	}
	return nil
}
