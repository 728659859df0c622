package backup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

// Dumper writes a plain SQL dump of the database to w.
type Dumper interface {
	Dump(ctx context.Context, w io.Writer) error
}

// execCommandFunc is swapped in tests.
var execCommandFunc = exec.CommandContext

type pgDumper struct {
	path string
	db   core.DatabaseConfig
}

func NewPgDumper(path string, db core.DatabaseConfig) Dumper {
	if path == "" {
		path = "pg_dump"
	}
	return &pgDumper{path: path, db: db}
}

func (d *pgDumper) args() []string {
	return []string{
		"--host=" + d.db.Host,
		"--port=" + d.db.Port,
		"--username=" + d.db.User,
		"--dbname=" + d.db.Name,
		"--format=plain",
		"--no-owner",
		"--no-password",
	}
}

func (d *pgDumper) Dump(ctx context.Context, w io.Writer) error {
	cmd := execCommandFunc(ctx, d.path, d.args()...)
	cmd.Env = append(cmd.Environ(), "PGPASSWORD="+d.db.Password)
	cmd.Stdout = w
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "running pg_dump: %s", strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Tables are dumped parents first, so the output restores without deferring constraints.
var Tables = []string{
	"cities", "schools", "roles", "permissions", "role_permissions", "users",
	"dossiers", "attachments", "requesters", "movements",
	"settings", "setting_history", "audit_logs", "system_logs",
}

type tableDumper struct {
	db     *sqlx.DB
	tables []string
}

// NewTableDumper dumps every row of tables as INSERT statements, without pg_dump.
func NewTableDumper(db *sqlx.DB, tables ...string) Dumper {
	if len(tables) == 0 {
		tables = Tables
	}
	return &tableDumper{db: db, tables: tables}
}

func (d *tableDumper) Dump(ctx context.Context, w io.Writer) error {
	bw := bufio.NewWriter(w)
	_, _ = fmt.Fprintf(bw, "-- dossie escolar table dump\n-- at: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	total := 0
	for _, table := range d.tables {
		n, err := d.dumpTable(ctx, bw, table)
		if err != nil {
			return errors.Wrap(err, "dumping "+table)
		}
		total += n
	}
	_, _ = fmt.Fprintf(bw, "-- rows: %d\n", total)
	return bw.Flush()
}

func (d *tableDumper) dumpTable(ctx context.Context, w io.Writer, table string) (int, error) {
	rows, err := d.db.QueryxContext(ctx, "SELECT * FROM "+table+" ORDER BY 1")
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	_, _ = fmt.Fprintf(w, "-- table: %s\n", table)
	prefix := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES ("
	n := 0
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return n, err
		}
		literals := make([]string, len(values))
		for i, v := range values {
			literals[i] = sqlLiteral(v)
		}
		if _, err := io.WriteString(w, prefix+strings.Join(literals, ", ")+");\n"); err != nil {
			return n, err
		}
		n++
	}
	_, _ = io.WriteString(w, "\n")
	return n, rows.Err()
}

// sqlLiteral renders v as a postgres literal.
func sqlLiteral(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return quote(x.UTC().Format(time.RFC3339Nano))
	case []byte:
		return quote(string(x))
	case string:
		return quote(x)
	}
	return quote(fmt.Sprint(v))
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
