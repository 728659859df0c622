// Package testutil wires the application on top of the in-memory store for tests of the outer layers.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

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
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
	"github.com/fedimaraquino/dossie-escolar-sub000/services/email"
	"github.com/fedimaraquino/dossie-escolar-sub000/services/filestore"
	"github.com/fedimaraquino/dossie-escolar-sub000/services/logger"
	"github.com/fedimaraquino/dossie-escolar-sub000/storage/database/inmem"
)

// Password satisfies the password policy.
const Password = "Dossi3!Escolar"

// Stack is the whole application over one in-memory database. Background work runs synchronously.
type Stack struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator

	DB          *inmemdb.DB
	UserRepo    user.Repository
	AuditRepo   audit.Repository
	Mail        *emailsvc.ConsoleServiceMock
	Files       core.FileStore
	Limiter     *auth.IPLimiter
	Recorder    *audit.Recorder
	Auth        *auth.Service
	Users       *user.Service
	Roles       *role.Service
	Schools     *school.Service
	Cities      *city.Service
	Directors   *director.Service
	Requesters  *requester.Service
	Dossiers    *dossier.Service
	Attachments *attachment.Service
	Photos      *photo.Store
	Movements   *movement.Service
	Settings    *setting.Service
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// NewStack seeds roles, permissions and settings. Attachments are stored under t.TempDir().
func NewStack(t *testing.T) *Stack {
	t.Helper()

	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()
	validate, translator := NewValidator()
	user.LoadCommonPasswords(logger)
	core.ParseEmailTemplates(logger)

	files, err := filestore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() failed: %v", err)
	}

	db := inmemdb.Open()
	st := &Stack{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		DB:         db,
		UserRepo:   inmemdb.NewUserRepository(db),
		AuditRepo:  inmemdb.NewAuditRepository(db),
		Mail:       emailsvc.NewConsoleServiceMock(conf, logger),
		Files:      files,
	}

	roleRepo := inmemdb.NewRoleRepository(db)
	resolver := role.NewResolver(roleRepo, logger, role.ResolverConfig{
		TTL:        conf.Permissions.CacheTTL,
		MaxEntries: conf.Permissions.CacheMaxEntries,
	})
	st.Roles = role.NewService(roleRepo, resolver, logger)
	st.Recorder = audit.NewRecorderMock(st.AuditRepo, logger)
	st.Settings = setting.NewService(inmemdb.NewSettingRepository(db), logger)
	st.Users = user.NewServiceMock(st.UserRepo, st.Roles, st.Mail, logger, conf)
	st.Limiter = auth.NewIPLimiter(conf.Security.IPMaxAttempts, conf.Security.IPWindow, conf.Security.IPBlockDuration, core.Now)
	st.Auth = auth.NewService(st.Users, st.Settings, st.Recorder, st.Limiter, logger, auth.Config{
		MaxAttempts:     conf.Security.MaxLoginAttempts,
		LockoutDuration: conf.Security.LockoutDuration,
	})
	st.Schools = school.NewService(inmemdb.NewSchoolRepository(db))
	st.Cities = city.NewService(inmemdb.NewCityRepository(db))
	st.Requesters = requester.NewService(inmemdb.NewRequesterRepository(db))
	st.Dossiers = dossier.NewService(inmemdb.NewDossierRepository(db))
	st.Attachments = attachment.NewService(inmemdb.NewAttachmentRepository(db), files, conf.Server.MaxUploadSize, logger)
	st.Movements = movement.NewService(inmemdb.NewMovementRepository(db), st.Dossiers, st.Requesters, st.Schools)
	st.Directors = director.NewService(inmemdb.NewDirectorRepository(db))
	st.Photos = photo.NewStore(files, conf.Server.MaxPhotoSize, logger)

	ctx := context.Background()
	if err := st.Roles.Seed(ctx); err != nil {
		t.Fatalf("seeding roles failed: %v", err)
	}
	if err := st.Settings.Seed(ctx); err != nil {
		t.Fatalf("seeding settings failed: %v", err)
	}
	return st
}

func (st *Stack) Role(t *testing.T, name string) role.Role {
	t.Helper()
	r, err := st.Roles.GetByName(context.Background(), name)
	if err != nil {
		t.Fatalf("Role(%q) failed: %v", name, err)
	}
	return r
}

func (st *Stack) CreateSchool(t *testing.T, name string) school.School {
	t.Helper()
	s, err := st.Schools.Create(context.Background(), school.NewSchool{Name: name})
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	return s
}

// CreateUser stores an active user bypassing the service rules. pwd may be empty.
func (st *Stack) CreateUser(t *testing.T, name, email, pwd, roleName string, schoolID int64, createdAt ...time.Time) user.User {
	t.Helper()
	return CreateUser(t, st.UserRepo, st.Role(t, roleName), name, email, pwd, schoolID, createdAt...)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	r role.Role,
	name, email, pwd string,
	schoolID int64,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		SchoolID:  schoolID,
		RoleID:    r.ID,
		RoleName:  r.Name,
		Status:    user.StatusActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// Deactivate flips the status of usr straight in the store.
func (st *Stack) Deactivate(t *testing.T, usr user.User) user.User {
	t.Helper()
	usr.Status = user.StatusInactive
	usr, err := st.UserRepo.UpdateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("Deactivate() failed: %v", err)
	}
	return usr
}

func (st *Stack) CreateDossier(t *testing.T, creator user.User, number, name string) dossier.Dossier {
	t.Helper()
	d, err := st.Dossiers.Create(context.Background(), creator.Session(nil), dossier.NewDossier{Number: number, Year: 2020, Name: name})
	if err != nil {
		t.Fatalf("CreateDossier() failed: %v", err)
	}
	return d
}

// AuditActions returns the actions recorded so far, oldest first.
func (st *Stack) AuditActions(t *testing.T) []audit.Action {
	t.Helper()
	logs, err := st.Recorder.Query(context.Background(), audit.QueryFilter{}, tenant.AllSchools(), core.Page{})
	if err != nil {
		t.Fatalf("AuditActions() failed: %v", err)
	}
	out := make([]audit.Action, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		out = append(out, logs[i].Action)
	}
	return out
}
