// Package backup dumps the database to gzip files, uploads them to S3 and prunes the old ones.
package backup

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/services/filestore"
)

const (
	filePrefix = "backup_"
	fileSuffix = ".sql.gz"
	timeLayout = "20060102_150405"
)

// Locations
const (
	LocationLocal  = "local"
	LocationRemote = "remote"
)

type (
	// Backup is one artifact, local or in the bucket.
	Backup struct {
		Name      string    `json:"name"`
		Location  string    `json:"location"`
		Key       string    `json:"key"`
		Size      int64     `json:"size"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	Result struct {
		Backup
		RemoteKey string        `json:"remote_key,omitempty"`
		Duration  time.Duration `json:"duration"`
	}

	Service struct {
		conf     Config
		dbName   string
		dumper   Dumper
		remote   core.FileStore
		recorder *audit.Recorder
		logger   core.Logger
		now      func() time.Time
	}
)

// NewService builds a backup service. remote is nil when backups stay local.
func NewService(conf Config, dbName string, dumper Dumper, remote core.FileStore, recorder *audit.Recorder, logger core.Logger) *Service {
	return &Service{
		conf:     conf,
		dbName:   dbName,
		dumper:   dumper,
		remote:   remote,
		recorder: recorder,
		logger:   logger,
		now:      core.Now,
	}
}

// New wires a service from the application config and the optional YAML file.
func New(conf *core.Config, configFile string, db *sqlx.DB, recorder *audit.Recorder, logger core.Logger) (*Service, error) {
	bc, err := LoadConfig(conf, configFile)
	if err != nil {
		return nil, err
	}
	var dumper Dumper
	if bc.Method == MethodTables {
		dumper = NewTableDumper(db)
	} else {
		dumper = NewPgDumper(bc.PgDumpPath, conf.Database)
	}
	var remote core.FileStore
	if bc.uploads() {
		if remote, err = filestore.NewS3Store(bc.S3.toCore()); err != nil {
			return nil, err
		}
	}
	return NewService(bc, conf.Database.Name, dumper, remote, recorder, logger), nil
}

// FileName is backup_<db>_<YYYYMMDD_HHMMSS>.sql.gz.
func FileName(dbName string, at time.Time) string {
	return filePrefix + dbName + "_" + at.UTC().Format(timeLayout) + fileSuffix
}

// parseTime reads the timestamp back from a FileName.
func parseTime(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	base := strings.TrimSuffix(name, fileSuffix)
	if len(base) < len(timeLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(timeLayout, base[len(base)-len(timeLayout):], time.UTC)
	return t, err == nil
}

// RemoteKey is <prefix>/<YYYY>/<MM>/<DD>/<name>.
func RemoteKey(prefix, name string, at time.Time) string {
	return path.Join(prefix, at.UTC().Format("2006/01/02"), name)
}

// Run dumps the database into a new local file and uploads it when configured.
// The outcome is audited either way. userID is 0 for scheduled runs.
func (svc *Service) Run(ctx context.Context, userID int64) (Result, error) {
	start := svc.now()
	res, err := svc.run(ctx, start)
	res.Duration = svc.now().Sub(start)

	l := audit.Log{UserID: audit.Int64Ptr(userID), Action: audit.ActionBackup, Target: res.Name}
	if err != nil {
		l.Detail = "failed: " + err.Error()
		svc.logger.Error("running backup", err, map[string]interface{}{"file": res.Name})
	} else {
		l.Detail = fmt.Sprintf("ok: %d bytes", res.Size)
		if res.RemoteKey != "" {
			l.Detail += ", uploaded to " + res.RemoteKey
		}
		svc.logger.Info("backup done", map[string]interface{}{"file": res.Name, "size": res.Size, "remote": res.RemoteKey})
	}
	svc.recorder.Record(l)
	return res, err
}

func (svc *Service) run(ctx context.Context, at time.Time) (Result, error) {
	name := FileName(svc.dbName, at)
	res := Result{Backup: Backup{Name: name, Location: LocationLocal, Key: filepath.Join(svc.conf.Dir, name), CreatedAt: at.UTC()}}

	if err := os.MkdirAll(svc.conf.Dir, 0o750); err != nil {
		return res, errors.Wrap(err, "creating backup dir")
	}
	size, err := svc.write(ctx, res.Key)
	if err != nil {
		_ = os.Remove(res.Key)
		return res, err
	}
	res.Size = size

	if svc.remote != nil {
		key := RemoteKey(svc.conf.Prefix, name, at)
		f, err := os.Open(res.Key)
		if err != nil {
			return res, errors.Wrap(err, "opening backup")
		}
		defer func() { _ = f.Close() }()
		if err := svc.remote.Put(ctx, key, f, "application/gzip"); err != nil {
			return res, errors.Wrap(err, "uploading backup")
		}
		res.RemoteKey = key
	}
	return res, nil
}

func (svc *Service) write(ctx context.Context, p string) (int64, error) {
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, errors.Wrap(err, "creating backup file")
	}
	defer func() { _ = f.Close() }()

	zw := gzip.NewWriter(f)
	zw.Name = strings.TrimSuffix(filepath.Base(p), ".gz")
	if err := svc.dumper.Dump(ctx, zw); err != nil {
		return 0, errors.Wrap(err, "dumping database")
	}
	if err := zw.Close(); err != nil {
		return 0, errors.Wrap(err, "compressing backup")
	}
	info, err := f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "reading backup size")
	}
	return info.Size(), nil
}

// List returns the local and remote backups, newest first.
func (svc *Service) List(ctx context.Context) ([]Backup, error) {
	backups, err := svc.listLocal()
	if err != nil {
		return nil, err
	}
	if svc.remote != nil {
		files, err := svc.remote.List(ctx, svc.conf.Prefix+"/")
		if err != nil {
			return nil, errors.Wrap(err, "listing remote backups")
		}
		for _, f := range files {
			name := path.Base(f.Key)
			created, ok := parseTime(name)
			if !ok {
				continue
			}
			backups = append(backups, Backup{Name: name, Location: LocationRemote, Key: f.Key, Size: f.Size, CreatedAt: created})
		}
	}
	sort.SliceStable(backups, func(i, j int) bool { return backups[i].CreatedAt.After(backups[j].CreatedAt) })
	return backups, nil
}

func (svc *Service) listLocal() ([]Backup, error) {
	entries, err := os.ReadDir(svc.conf.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Backup{}, nil
		}
		return nil, errors.Wrap(err, "reading backup dir")
	}
	backups := make([]Backup, 0, len(entries))
	for _, e := range entries {
		created, ok := parseTime(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Backup{
			Name:      e.Name(),
			Location:  LocationLocal,
			Key:       filepath.Join(svc.conf.Dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: created,
		})
	}
	return backups, nil
}

// expired selects the backups created before the retention window.
func expired(backups []Backup, now time.Time, retentionDays int) []Backup {
	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
	old := make([]Backup, 0)
	for _, b := range backups {
		if b.CreatedAt.Before(cutoff) {
			old = append(old, b)
		}
	}
	return old
}

// Prune deletes the local and remote backups older than the retention window.
func (svc *Service) Prune(ctx context.Context) ([]Backup, error) {
	backups, err := svc.List(ctx)
	if err != nil {
		return nil, err
	}
	deleted := make([]Backup, 0)
	for _, b := range expired(backups, svc.now(), svc.conf.RetentionDays) {
		var err error
		if b.Location == LocationRemote {
			err = svc.remote.Delete(ctx, b.Key)
		} else {
			err = os.Remove(b.Key)
		}
		if err != nil && !os.IsNotExist(err) && errors.Cause(err) != core.ErrFileNotFound {
			svc.logger.Error("pruning backup", err, map[string]interface{}{"key": b.Key})
			continue
		}
		deleted = append(deleted, b)
	}
	if len(deleted) > 0 {
		svc.logger.Info("backups pruned", map[string]interface{}{"count": len(deleted)})
	}
	return deleted, nil
}

// Open streams a local backup file by name.
func (svc *Service) Open(name string) (io.ReadCloser, error) {
	if _, ok := parseTime(name); !ok || name != filepath.Base(name) {
		return nil, core.ErrFileNotFound
	}
	f, err := os.Open(filepath.Join(svc.conf.Dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrFileNotFound
		}
		return nil, errors.Wrap(err, "opening backup")
	}
	return f, nil
}
