package logsvc

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/rs/zerolog"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

// Logger writes structured events with zerolog and forwards them to Rollbar when enabled.
type Logger struct {
	zl      zerolog.Logger
	rollbar bool
}

var _ core.Logger = (*Logger)(nil)

// NewLogger builds a Logger named `component` ("API", "DB", "ADMIN", ...).
// Rollbar is only enabled outside debug mode and when a token is configured.
func NewLogger(component string, conf *core.Config) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(conf.LogLevel))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if conf.LogFormat != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05.000"}
	}
	zl := zerolog.New(out).Level(lvl).With().Timestamp().Str("component", component).Logger()

	enabled := conf.RollbarToken != "" && !conf.Debug && !conf.TestMode
	if enabled {
		rollbar.SetToken(conf.RollbarToken)
		rollbar.SetEnvironment(conf.Env)
		rollbar.SetServerHost(conf.Server.Host)
		rollbar.SetCodeVersion(conf.Build)
		rollbar.SetStackTracer(errors.StackTracer)
	}
	rollbar.SetEnabled(enabled)

	return &Logger{zl: zl, rollbar: enabled}
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// expected fmt: msg | error, map[string]interface{}, core.Actor
func (l *Logger) prepare(msg string, args []interface{}) []interface{} {
	var actorSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		// set logged in user
		if actor, ok := arg.(core.Actor); ok {
			if !actorSet { // only set one user
				rollbar.SetPerson(strconv.FormatInt(actor.ID, 10), actor.Name, actor.Email)
				actorSet = true
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	if !actorSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l *Logger) event(e *zerolog.Event, msg string, args []interface{}) {
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			e = e.Err(a)
		case core.Actor:
			e = e.Int64("user_id", a.ID).Str("user_email", a.Email)
		case map[string]interface{}:
			e = e.Fields(a)
		default:
			e = e.Interface("extra", a)
		}
	}
	e.Msg(msg)
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.event(l.zl.Debug(), msg, args)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.event(l.zl.Info(), msg, args)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.rollbar {
		rollbar.Warning(l.prepare(msg, args)...)
	}
	l.event(l.zl.Warn(), msg, args)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	if l.rollbar {
		rollbar.Error(l.prepare(msg, args)...)
	}
	l.event(l.zl.Error(), msg, args)
}

func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.rollbar {
		rollbar.Critical(l.prepare(msg, args)...)
		rollbar.Wait()
	}
	l.event(l.zl.Error(), msg, args)
	os.Exit(1)
}
