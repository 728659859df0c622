package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gbytes "github.com/labstack/gommon/bytes"
	"github.com/labstack/gommon/log"

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
)

type (
	// ServerDeps lists everything the API needs. Backups may be nil when no backup job is configured.
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

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
		Recorder    *audit.Recorder
		Backups     *backup.Service
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		tokens   tokenIssuer
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		tokens:   newTokenIssuer(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.BodyLimit(bodyLimit(conf.Server.MaxUploadSize)))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	authed := v1.Group("", s.tokens.middleware(s.deps.Users), s.ipRestriction)
	guard := s.requirePermission

	registerAuthAPI(v1, authed, s)
	registerPermissionAPI(authed, guard, s.deps.Roles, s.deps.Validate, s.deps.Recorder)
	registerUserAPI(authed, guard, s.deps.Users, s.deps.Photos, s.deps.Validate, s.deps.Recorder)
	registerSchoolAPI(authed, guard, s.deps.Schools, s.deps.Directors, s.deps.Validate, s.deps.Recorder)
	registerCityAPI(authed, guard, s.deps.Cities, s.deps.Validate, s.deps.Recorder)
	registerDirectorAPI(authed, guard, s.deps.Directors, s.deps.Photos, s.deps.Validate, s.deps.Recorder)
	registerRequesterAPI(authed, guard, s.deps.Requesters, s.deps.Validate, s.deps.Recorder)
	registerDossierAPI(authed, guard, s.deps.Dossiers, s.deps.Attachments, s.deps.Photos, s.deps.Settings, s.deps.Validate, s.deps.Recorder)
	registerMovementAPI(authed, guard, s.deps.Movements, s.deps.Dossiers, s.deps.Validate, s.deps.Recorder)
	registerSettingAPI(authed, guard, s.deps.Settings, s.deps.Validate, s.deps.Recorder)
	registerReportAPI(authed, guard, s.deps.Dossiers, s.deps.Movements, s.deps.Settings, s.deps.Recorder)
	registerAdminAPI(authed, guard, s.deps.Recorder, s.deps.Backups, s.deps.Roles.Resolver(), s.deps.Users)
}

// bodyLimit leaves room for the multipart envelope around the largest accepted upload.
func bodyLimit(maxUpload int64) string {
	if maxUpload <= 0 {
		maxUpload = attachment.DefaultMaxSize
	}
	return gbytes.Format(maxUpload + 1<<20)
}

// Start serves until Shutdown. Listener failures are sent to Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the main goroutine to stop the server gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
