package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	users    user.Repository
	userSvc  *user.Service
	roles    *role.Service
	schools  *school.Service
	settings *setting.Service
	logger   core.Logger
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version)")
	fmt.Println("  seed [-school NAME] - create the default roles, permissions and settings, and optionally a first school")
	fmt.Println("  adduser -email EMAIL -name NAME -school ID [-role ROLE] - create or update an active user")
	fmt.Println("  resetpassword -email EMAIL - reset user's password")
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	seedCmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	seedSchool := seedCmd.String("school", "", "Name of a school to create when no school exists yet.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's name.")
	addUserSchool := addUserCmd.Int64("school", 0, "The user's school ID.")
	addUserRole := addUserCmd.String("role", role.SuperRoleName, "The user's role name.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "seed":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.seed(ctx, *seedSchool)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" || *addUserSchool == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, *addUserName, *addUserEmail, pwd, *addUserRole, *addUserSchool)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}
