package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
	logsvc "github.com/fedimaraquino/dossie-escolar-sub000/services/logger"
	"github.com/fedimaraquino/dossie-escolar-sub000/storage/database/inmem"
	"github.com/fedimaraquino/dossie-escolar-sub000/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Stack) {
	st := testutil.NewStack(t)
	return &commandLine{
		users:    st.UserRepo,
		userSvc:  st.Users,
		roles:    st.Roles,
		schools:  st.Schools,
		settings: st.Settings,
		logger:   st.Logger,
	}, st
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var ran []string
	gooseRunFunc = func(ctx context.Context, db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
	})
	assert.Equal(t, []string{"up", "up-to", "down-to", "status"}, ran)
}

func Test_commandLine_seed(t *testing.T) {
	// a fresh store, nothing seeded
	logger := logsvc.NewNopLogger()
	db := inmemdb.Open()
	roleRepo := inmemdb.NewRoleRepository(db)
	roles := role.NewService(roleRepo, role.NewResolver(roleRepo, logger, role.ResolverConfig{}), logger)
	cli := &commandLine{
		roles:    roles,
		schools:  school.NewService(inmemdb.NewSchoolRepository(db)),
		settings: setting.NewService(inmemdb.NewSettingRepository(db), logger),
		logger:   logger,
	}
	ctx := context.Background()

	runCLITests(t, cli, []cliTest{
		{name: "roles and settings", args: []string{"seed"}},
		{name: "first school", args: []string{"seed", "-school", "Escola Sede"}},
		{name: "idempotent", args: []string{"seed", "-school", "Outra Escola"}},
	})

	for name := range role.DefaultRoles() {
		_, err := roles.GetByName(ctx, name)
		assert.NoError(t, err, name)
	}
	s, err := cli.settings.Resolve(ctx, setting.KeyAllowExport, 0, 0)
	require.NoError(t, err)
	assert.NotZero(t, s.ID)

	schools, err := cli.schools.Query(ctx, school.QueryFilter{}, tenant.AllSchools(), nil, core.Page{})
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.Equal(t, "Escola Sede", schools[0].Name)
}

func Test_commandLine_addUser(t *testing.T) {
	cli, st := setup(t)
	sch := st.CreateSchool(t, "Escola Sede")
	schoolID := strconv.FormatInt(sch.ID, 10)

	mockPassword("")
	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "school required", args: []string{"adduser", "-email", "root@escola.br", "-name", "Root"}, wantErr: errHelp},
		{name: "password required", args: []string{"adduser", "-email", "root@escola.br", "-name", "Root", "-school", schoolID}, wantErr: errHelp},
	})

	mockPassword("s3nha")
	runCLITests(t, cli, []cliTest{
		{name: "unknown school", args: []string{"adduser", "-email", "root@escola.br", "-name", "Root", "-school", "999"}, wantErr: school.ErrNotFound},
		{name: "unknown role", args: []string{"adduser", "-email", "root@escola.br", "-name", "Root", "-school", schoolID, "-role", "Zelador"}, wantErrStr: "role Zelador: " + role.ErrNotFound.Error()},
		{name: "super user", args: []string{"adduser", "-email", " Root@Escola.br ", "-name", "Root", "-school", schoolID}},
	})

	ctx := context.Background()
	usr, err := st.UserRepo.GetUserByEmail(ctx, "root@escola.br")
	require.NoError(t, err)
	assert.True(t, usr.IsSuper())
	assert.True(t, usr.IsActive())
	assert.Equal(t, sch.ID, usr.SchoolID)
	assert.NoError(t, usr.CheckPassword("s3nha"))

	// a second run updates the same user
	mockPassword("0utra")
	runCLITests(t, cli, []cliTest{
		{name: "update", args: []string{"adduser", "-email", "root@escola.br", "-name", "Root", "-school", schoolID, "-role", role.SchoolAdmin}},
	})
	updated, err := st.UserRepo.GetUserByEmail(ctx, "root@escola.br")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, updated.ID)
	assert.Equal(t, role.SchoolAdmin, updated.RoleName)
	assert.NoError(t, updated.CheckPassword("0utra"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, st := setup(t)
	sch := st.CreateSchool(t, "Escola Sede")
	usr := st.CreateUser(t, "User", "awe@escola.br", "mdr", role.Operator, sch.ID)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := st.UserRepo.GetUserByEmail(context.Background(), usr.Email)
				require.NoError(t, err)
				assert.False(t, bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash), "failed to update new password")
			} else {
				assert.Equal(t, tt.wantErr, err)
			}
		})
	}
}
