package backup

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

// Methods
const (
	MethodPgDump = "pg_dump"
	MethodTables = "tables"
)

type (
	S3Config struct {
		Bucket         string `yaml:"bucket"`
		Region         string `yaml:"region"`
		Endpoint       string `yaml:"endpoint"`
		AccessKey      string `yaml:"access_key"`
		SecretKey      string `yaml:"secret_key"`
		ForcePathStyle bool   `yaml:"force_path_style"`
	}

	// Config drives a backup job. Values of the optional YAML file override the application config.
	Config struct {
		Dir           string   `yaml:"dir"`
		Method        string   `yaml:"method"`
		PgDumpPath    string   `yaml:"pg_dump_path"`
		RetentionDays int      `yaml:"retention_days"`
		Upload        *bool    `yaml:"upload"`
		Prefix        string   `yaml:"prefix"`
		S3            S3Config `yaml:"s3"`
	}
)

func (c Config) uploads() bool { return c.Upload != nil && *c.Upload }

func (c S3Config) toCore() core.S3Config {
	return core.S3Config{
		Bucket:         c.Bucket,
		Region:         c.Region,
		Endpoint:       c.Endpoint,
		AccessKey:      c.AccessKey,
		SecretKey:      c.SecretKey,
		ForcePathStyle: c.ForcePathStyle,
	}
}

func fromCore(bc core.BackupConfig) Config {
	upload := bc.Upload
	return Config{
		Dir:           bc.Dir,
		Method:        bc.Method,
		PgDumpPath:    bc.PgDumpPath,
		RetentionDays: bc.RetentionDays,
		Upload:        &upload,
		Prefix:        bc.Prefix,
		S3: S3Config{
			Bucket:         bc.S3.Bucket,
			Region:         bc.S3.Region,
			Endpoint:       bc.S3.Endpoint,
			AccessKey:      bc.S3.AccessKey,
			SecretKey:      bc.S3.SecretKey,
			ForcePathStyle: bc.S3.ForcePathStyle,
		},
	}
}

// merge copies the set values of o over c.
func (c Config) merge(o Config) Config {
	if o.Dir != "" {
		c.Dir = o.Dir
	}
	if o.Method != "" {
		c.Method = o.Method
	}
	if o.PgDumpPath != "" {
		c.PgDumpPath = o.PgDumpPath
	}
	if o.RetentionDays > 0 {
		c.RetentionDays = o.RetentionDays
	}
	if o.Upload != nil {
		c.Upload = o.Upload
	}
	if o.Prefix != "" {
		c.Prefix = o.Prefix
	}
	if o.S3.Bucket != "" {
		c.S3.Bucket = o.S3.Bucket
	}
	if o.S3.Region != "" {
		c.S3.Region = o.S3.Region
	}
	if o.S3.Endpoint != "" {
		c.S3.Endpoint = o.S3.Endpoint
	}
	if o.S3.AccessKey != "" {
		c.S3.AccessKey = o.S3.AccessKey
		c.S3.SecretKey = o.S3.SecretKey
	}
	if o.S3.ForcePathStyle {
		c.S3.ForcePathStyle = true
	}
	return c
}

func (c Config) validate() error {
	switch c.Method {
	case MethodPgDump, MethodTables:
	default:
		return errors.Errorf("unknown backup method %q", c.Method)
	}
	if c.Dir == "" {
		return errors.New("backup dir is required")
	}
	if c.uploads() && c.S3.Bucket == "" {
		return errors.New("backup upload needs an s3 bucket")
	}
	return nil
}

// LoadConfig builds the job config from conf, then from the YAML file at path when set.
func LoadConfig(conf *core.Config, path string) (Config, error) {
	c := fromCore(conf.Backup)
	if path == "" {
		path = conf.Backup.ConfigFile
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "reading backup config")
		}
		var file Config
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, errors.Wrap(err, "parsing backup config")
		}
		c = c.merge(file)
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.Prefix == "" {
		c.Prefix = "backups"
	}
	return c, c.validate()
}
