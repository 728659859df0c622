package main

import (
	"context"
	"fmt"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

// seed is idempotent: existing roles, settings and schools are left alone.
func (cli *commandLine) seed(ctx context.Context, schoolName string) error {
	if err := cli.roles.Seed(ctx); err != nil {
		return err
	}
	if err := cli.settings.Seed(ctx); err != nil {
		return err
	}
	if schoolName == "" {
		return nil
	}

	existing, err := cli.schools.Query(ctx, school.QueryFilter{}, tenant.AllSchools(), nil, core.Page{Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		cli.logger.Info(fmt.Sprintf("schools exist already, %q not created", schoolName))
		return nil
	}
	s, err := cli.schools.Create(ctx, school.NewSchool{Name: schoolName})
	if err != nil {
		return err
	}
	cli.logger.Info(fmt.Sprintf("school %q created with id %d", s.Name, s.ID))
	return nil
}
