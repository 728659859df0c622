package dig_container

import (
	"context"
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/fedimaraquino/dossie-escolar-sub000/apps/api/echo"
	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/attachment"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/auth"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/city"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/director"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/movement"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/photo"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/requester"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
	"github.com/fedimaraquino/dossie-escolar-sub000/services/backup"
	"github.com/fedimaraquino/dossie-escolar-sub000/services/cachebus"
	emailsvc "github.com/fedimaraquino/dossie-escolar-sub000/services/email"
	"github.com/fedimaraquino/dossie-escolar-sub000/services/filestore"
	logsvc "github.com/fedimaraquino/dossie-escolar-sub000/services/logger"
	"github.com/fedimaraquino/dossie-escolar-sub000/storage/database"
	postgres "github.com/fedimaraquino/dossie-escolar-sub000/storage/database/postgres"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// BackupParam carries the optional backup job.
	BackupParam struct {
		dig.In
		Backups *backup.Service `optional:"true"`
	}
)

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewLogger("API", conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewLogger("DB", conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(context.Background(), db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func newFileStore(conf *core.Config) (core.FileStore, error) {
	return filestore.New(conf.Storage)
}

func newRoleService(repo role.Repository, conf *core.Config, logger core.Logger) *role.Service {
	resolver := role.NewResolver(repo, logger, role.ResolverConfig{
		TTL:        conf.Permissions.CacheTTL,
		MaxEntries: conf.Permissions.CacheMaxEntries,
	})
	return role.NewService(repo, resolver, logger)
}

func newUserService(repo user.Repository, roles *role.Service, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *user.Service {
	return user.NewService(repo, roles, mailSvc, logger, conf)
}

func newIPLimiter(conf *core.Config) *auth.IPLimiter {
	return auth.NewIPLimiter(conf.Security.IPMaxAttempts, conf.Security.IPWindow, conf.Security.IPBlockDuration, core.Now)
}

func newAuthService(
	users *user.Service,
	settings *setting.Service,
	recorder *audit.Recorder,
	limiter *auth.IPLimiter,
	logger core.Logger,
	conf *core.Config,
) *auth.Service {
	return auth.NewService(users, settings, recorder, limiter, logger, auth.Config{
		MaxAttempts:     conf.Security.MaxLoginAttempts,
		LockoutDuration: conf.Security.LockoutDuration,
	})
}

func newAttachmentService(repo attachment.Repository, store core.FileStore, conf *core.Config, logger core.Logger) *attachment.Service {
	return attachment.NewService(repo, store, conf.Server.MaxUploadSize, logger)
}

func newMovementService(repo movement.Repository, dossiers *dossier.Service, requesters *requester.Service, schools *school.Service) *movement.Service {
	return movement.NewService(repo, dossiers, requesters, schools)
}

func newPhotoStore(store core.FileStore, conf *core.Config, logger core.Logger) *photo.Store {
	return photo.NewStore(store, conf.Server.MaxPhotoSize, logger)
}

// newBackupService leaves the job out when it is not configured, the API then answers 503 on backup routes.
func newBackupService(conf *core.Config, db *sqlx.DB, recorder *audit.Recorder, logger core.Logger) *backup.Service {
	svc, err := backup.New(conf, "", db, recorder, logger)
	if err != nil {
		logger.Warn(fmt.Sprintf("backups disabled: %v", err))
		return nil
	}
	return svc
}

// newCacheBus connects the permission cache to the other API processes. It is nil without Redis.
func newCacheBus(conf *core.Config, roles *role.Service, logger core.Logger) (*cachebus.Bus, error) {
	bus, err := cachebus.New(context.Background(), conf.Redis, logger)
	if err != nil {
		return nil, err
	}
	if bus != nil {
		roles.SetPublisher(bus)
	}
	return bus, nil
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	authSvc *auth.Service,
	users *user.Service,
	roles *role.Service,
	schools *school.Service,
	cities *city.Service,
	directors *director.Service,
	requesters *requester.Service,
	dossiers *dossier.Service,
	attachments *attachment.Service,
	photos *photo.Store,
	movements *movement.Service,
	settings *setting.Service,
	recorder *audit.Recorder,
	bp BackupParam,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		Auth:        authSvc,
		Users:       users,
		Roles:       roles,
		Schools:     schools,
		Cities:      cities,
		Directors:   directors,
		Requesters:  requesters,
		Dossiers:    dossiers,
		Attachments: attachments,
		Photos:      photos,
		Movements:   movements,
		Settings:    settings,
		Recorder:    recorder,
		Backups:     bp.Backups,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newValidator))
	must(c.Provide(newFileStore))
	must(c.Provide(emailsvc.NewService))

	must(c.Provide(postgres.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(postgres.NewRoleRepository, dig.As(new(role.Repository))))
	must(c.Provide(postgres.NewSchoolRepository, dig.As(new(school.Repository))))
	must(c.Provide(postgres.NewCityRepository, dig.As(new(city.Repository))))
	must(c.Provide(postgres.NewDirectorRepository, dig.As(new(director.Repository))))
	must(c.Provide(postgres.NewRequesterRepository, dig.As(new(requester.Repository))))
	must(c.Provide(postgres.NewDossierRepository, dig.As(new(dossier.Repository))))
	must(c.Provide(postgres.NewAttachmentRepository, dig.As(new(attachment.Repository))))
	must(c.Provide(postgres.NewMovementRepository, dig.As(new(movement.Repository))))
	must(c.Provide(postgres.NewSettingRepository, dig.As(new(setting.Repository))))
	must(c.Provide(postgres.NewAuditRepository, dig.As(new(audit.Repository))))

	must(c.Provide(audit.NewRecorder))
	must(c.Provide(newRoleService))
	must(c.Provide(setting.NewService))
	must(c.Provide(newUserService))
	must(c.Provide(newIPLimiter))
	must(c.Provide(newAuthService))
	must(c.Provide(school.NewService))
	must(c.Provide(city.NewService))
	must(c.Provide(director.NewService))
	must(c.Provide(requester.NewService))
	must(c.Provide(dossier.NewService))
	must(c.Provide(newAttachmentService))
	must(c.Provide(newPhotoStore))
	must(c.Provide(newMovementService))
	must(c.Provide(newBackupService))
	must(c.Provide(newCacheBus))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
