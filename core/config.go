package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		RememberMeExpirationDelta time.Duration
		CookieName                string
		MaxUploadSize             int64
		MaxPhotoSize              int64
	}

	SecurityConfig struct {
		MaxLoginAttempts int
		LockoutDuration  time.Duration
		IPMaxAttempts    int
		IPWindow         time.Duration
		IPBlockDuration  time.Duration
	}

	PermissionsConfig struct {
		CacheTTL        time.Duration
		CacheMaxEntries int
	}

	S3Config struct {
		Bucket         string
		Region         string
		Endpoint       string
		AccessKey      string
		SecretKey      string
		ForcePathStyle bool
	}

	StorageConfig struct {
		Backend   string // local | s3
		MediaRoot string
		S3        S3Config
	}

	BackupConfig struct {
		Dir           string
		Method        string // pg_dump | tables
		PgDumpPath    string
		RetentionDays int
		Upload        bool
		Prefix        string
		ConfigFile    string
		S3            S3Config
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		Channel  string
	}

	Config struct {
		Env                       string
		Build                     string
		AppName                   string
		SecretKey                 string
		Debug                     bool
		TestMode                  bool
		WorkDir                   string
		FrontendBaseURL           string
		RollbarToken              string
		SendgridApiKey            string
		LogLevel                  string
		LogFormat                 string
		PasswordResetTimeoutDelta time.Duration

		Server      ServerConfig
		Database    DatabaseConfig
		Security    SecurityConfig
		Permissions PermissionsConfig
		Storage     StorageConfig
		Backup      BackupConfig
		Redis       RedisConfig

		defaultFromEmail string
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Dossie Escolar")
	v.SetDefault("secretKey", "k3o#q9v!w2z@x7m$r4t%y1u^i8o&p5a*s6d(f0g)h-j+l=")
	v.SetDefault("defaultFromEmail", "Dossie Escolar <noreply@localhost>")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 8*time.Hour)
	v.SetDefault("server.rememberMeExpirationDelta", 30*24*time.Hour)
	v.SetDefault("server.cookieName", "dossie_session")
	v.SetDefault("server.maxUploadSize", int64(16<<20))
	v.SetDefault("server.maxPhotoSize", int64(2<<20))

	v.SetDefault("db.engine", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.name", "dossie")
	v.SetDefault("db.user", "dossie")
	v.SetDefault("db.password", "")
	v.SetDefault("db.adminUser", "postgres")
	v.SetDefault("db.adminPassword", "")
	v.SetDefault("db.disableTLS", true)

	v.SetDefault("security.maxLoginAttempts", 5)
	v.SetDefault("security.lockoutDuration", 30*time.Minute)
	v.SetDefault("security.ipMaxAttempts", 5)
	v.SetDefault("security.ipWindow", 5*time.Minute)
	v.SetDefault("security.ipBlockDuration", 15*time.Minute)

	v.SetDefault("permissions.cacheTTL", time.Hour)
	v.SetDefault("permissions.cacheMaxEntries", 1000)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.mediaRoot", "media")
	v.SetDefault("storage.s3.region", "us-east-1")

	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.method", "pg_dump")
	v.SetDefault("backup.pgDumpPath", "pg_dump")
	v.SetDefault("backup.retentionDays", 30)
	v.SetDefault("backup.upload", false)
	v.SetDefault("backup.prefix", "backups")
	v.SetDefault("backup.configFile", "")
	v.SetDefault("backup.s3.region", "us-east-1")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "dossie:permissions")
}

func s3Config(v *viper.Viper, prefix string) S3Config {
	return S3Config{
		Bucket:         v.GetString(prefix + ".bucket"),
		Region:         v.GetString(prefix + ".region"),
		Endpoint:       v.GetString(prefix + ".endpoint"),
		AccessKey:      v.GetString(prefix + ".accessKey"),
		SecretKey:      v.GetString(prefix + ".secretKey"),
		ForcePathStyle: v.GetBool(prefix + ".forcePathStyle"),
	}
}

// NewConfig loads the application configuration from defaults, the environment and an optional
// `config/.env.<env>` file. Environment variables are prefixed by ENV, e.g. `PROD_DB_HOST`.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		WorkDir:                   wd,
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		LogLevel:                  v.GetString("log.level"),
		LogFormat:                 v.GetString("log.format"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			RememberMeExpirationDelta: v.GetDuration("server.rememberMeExpirationDelta"),
			CookieName:                v.GetString("server.cookieName"),
			MaxUploadSize:             v.GetInt64("server.maxUploadSize"),
			MaxPhotoSize:              v.GetInt64("server.maxPhotoSize"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("db.engine"),
			Host:          v.GetString("db.host"),
			Port:          v.GetString("db.port"),
			Name:          v.GetString("db.name"),
			User:          v.GetString("db.user"),
			Password:      v.GetString("db.password"),
			AdminUser:     v.GetString("db.adminUser"),
			AdminPassword: v.GetString("db.adminPassword"),
			DisableTLS:    v.GetBool("db.disableTLS"),
		},
		Security: SecurityConfig{
			MaxLoginAttempts: v.GetInt("security.maxLoginAttempts"),
			LockoutDuration:  v.GetDuration("security.lockoutDuration"),
			IPMaxAttempts:    v.GetInt("security.ipMaxAttempts"),
			IPWindow:         v.GetDuration("security.ipWindow"),
			IPBlockDuration:  v.GetDuration("security.ipBlockDuration"),
		},
		Permissions: PermissionsConfig{
			CacheTTL:        v.GetDuration("permissions.cacheTTL"),
			CacheMaxEntries: v.GetInt("permissions.cacheMaxEntries"),
		},
		Storage: StorageConfig{
			Backend:   v.GetString("storage.backend"),
			MediaRoot: v.GetString("storage.mediaRoot"),
			S3:        s3Config(v, "storage.s3"),
		},
		Backup: BackupConfig{
			Dir:           v.GetString("backup.dir"),
			Method:        v.GetString("backup.method"),
			PgDumpPath:    v.GetString("backup.pgDumpPath"),
			RetentionDays: v.GetInt("backup.retentionDays"),
			Upload:        v.GetBool("backup.upload"),
			Prefix:        v.GetString("backup.prefix"),
			ConfigFile:    v.GetString("backup.configFile"),
			S3:            s3Config(v, "backup.s3"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Channel:  v.GetString("redis.channel"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no env lookups, debug off, test mode on.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("debug", false)
	v.Set("testMode", true)
	conf := &Config{
		Env:                       "TEST",
		AppName:                   v.GetString("appName"),
		SecretKey:                 "test-secret",
		TestMode:                  true,
		WorkDir:                   Getwd(),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		LogLevel:                  "disabled",
	}
	conf.Server.JWTExpirationDelta = v.GetDuration("server.jwtExpirationDelta")
	conf.Server.RememberMeExpirationDelta = v.GetDuration("server.rememberMeExpirationDelta")
	conf.Server.CookieName = v.GetString("server.cookieName")
	conf.Server.MaxUploadSize = v.GetInt64("server.maxUploadSize")
	conf.Server.MaxPhotoSize = v.GetInt64("server.maxPhotoSize")
	conf.Security = SecurityConfig{
		MaxLoginAttempts: v.GetInt("security.maxLoginAttempts"),
		LockoutDuration:  v.GetDuration("security.lockoutDuration"),
		IPMaxAttempts:    v.GetInt("security.ipMaxAttempts"),
		IPWindow:         v.GetDuration("security.ipWindow"),
		IPBlockDuration:  v.GetDuration("security.ipBlockDuration"),
	}
	conf.Permissions = PermissionsConfig{
		CacheTTL:        v.GetDuration("permissions.cacheTTL"),
		CacheMaxEntries: v.GetInt("permissions.cacheMaxEntries"),
	}
	conf.Backup.RetentionDays = v.GetInt("backup.retentionDays")
	conf.Backup.Prefix = v.GetString("backup.prefix")
	return conf
}
