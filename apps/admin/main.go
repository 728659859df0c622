package main

import (
	"os"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
	emailsvc "github.com/fedimaraquino/dossie-escolar-sub000/services/email"
	logsvc "github.com/fedimaraquino/dossie-escolar-sub000/services/logger"
	"github.com/fedimaraquino/dossie-escolar-sub000/storage/database"
	postgres "github.com/fedimaraquino/dossie-escolar-sub000/storage/database/postgres"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewLogger("ADMIN", conf)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	roleRepo := postgres.NewRoleRepository(db)
	roles := role.NewService(roleRepo, role.NewResolver(roleRepo, logger, role.ResolverConfig{}), logger)
	usrRepo := postgres.NewUserRepository(db)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		users:    usrRepo,
		userSvc:  user.NewService(usrRepo, roles, emailsvc.NewConsoleService(conf, logger), logger, conf),
		roles:    roles,
		schools:  school.NewService(postgres.NewSchoolRepository(db)),
		settings: setting.NewService(postgres.NewSettingRepository(db), logger),
		logger:   logger,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}
