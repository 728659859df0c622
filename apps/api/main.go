package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	dig_container "github.com/fedimaraquino/dossie-escolar-sub000/apps/api/di/dig"
	echoapi "github.com/fedimaraquino/dossie-escolar-sub000/apps/api/echo"
	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/auth"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
	"github.com/fedimaraquino/dossie-escolar-sub000/services/cachebus"
)

// limiterCleanupInterval is how often expired login failures are dropped from memory.
const limiterCleanupInterval = time.Minute

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sqlx.DB,
		roles *role.Service,
		settings *setting.Service,
		limiter *auth.IPLimiter,
		bus *cachebus.Bus,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.ParseEmailTemplates(apiLogger)

		user.LoadCommonPasswords(apiLogger)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// default roles and settings, existing rows are left alone
		if err := roles.Seed(ctx); err != nil {
			apiLogger.Fatal(fmt.Sprintf("seeding roles: %v", err), err)
		}
		if err := settings.Seed(ctx); err != nil {
			apiLogger.Fatal(fmt.Sprintf("seeding settings: %v", err), err)
		}

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		expvar.Publish("permission_cache", expvar.Func(func() interface{} {
			return roles.Resolver().Stats()
		}))

		if conf.Server.DebugHost != "" {
			go func() {
				if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
					apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
				}
			}()
		}

		// =========================================================================
		// Start Background Jobs

		if bus != nil {
			defer func() { _ = bus.Close() }()
			go func() {
				if err := bus.Listen(ctx, roles.Resolver()); err != nil {
					apiLogger.Error(fmt.Sprintf("permission cache bus stopped: %v", err), err)
				}
			}()
		}

		go func() {
			ticker := time.NewTicker(limiterCleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					limiter.Cleanup()
				}
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancelShutdown()

			// asking listener to shut down and shed load
			if err := server.Shutdown(shutdownCtx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "starting api").Error())
	}
}
