// Command backup runs the database backup job outside the API, typically from cron.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/services/backup"
	logsvc "github.com/fedimaraquino/dossie-escolar-sub000/services/logger"
	"github.com/fedimaraquino/dossie-escolar-sub000/storage/database"
	postgres "github.com/fedimaraquino/dossie-escolar-sub000/storage/database/postgres"
)

// openFunc builds the backup service from an optional YAML file. close releases what it opened.
type openFunc func(ctx context.Context, configFile string) (svc *backup.Service, close func(), err error)

func main() {
	app := newApp(os.Stdout, openService)
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openService(_ context.Context, configFile string) (*backup.Service, func(), error) {
	conf := core.NewConfig()
	logger := logsvc.NewLogger("BACKUP", conf)

	db, err := database.Open(conf)
	if err != nil {
		return nil, nil, err
	}
	// synchronous, the process may exit right after the job
	recorder := audit.NewRecorderMock(postgres.NewAuditRepository(db), logger)
	svc, err := backup.New(conf, configFile, db, recorder, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return svc, func() { _ = db.Close() }, nil
}

func newApp(w io.Writer, open openFunc) *cli.Command {
	withService := func(fn func(ctx context.Context, svc *backup.Service) error) cli.ActionFunc {
		return func(ctx context.Context, cmd *cli.Command) error {
			svc, closeFn, err := open(ctx, cmd.String("config"))
			if err != nil {
				return err
			}
			defer closeFn()
			return fn(ctx, svc)
		}
	}

	return &cli.Command{
		Name:  "backup",
		Usage: "database backups",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML file overriding the backup settings of the environment"},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "dump the database, upload the dump when configured, then prune old backups",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-prune", Usage: "keep expired backups"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withService(func(ctx context.Context, svc *backup.Service) error {
						res, err := svc.Run(ctx, 0)
						if err != nil {
							return err
						}
						fmt.Fprintf(w, "%s\t%d bytes\t%s\n", res.Key, res.Size, res.Duration)
						if res.RemoteKey != "" {
							fmt.Fprintf(w, "uploaded to %s\n", res.RemoteKey)
						}
						if cmd.Bool("no-prune") {
							return nil
						}
						return prune(ctx, w, svc)
					})(ctx, cmd)
				},
			},
			{
				Name:  "prune",
				Usage: "delete the backups older than the retention",
				Action: withService(func(ctx context.Context, svc *backup.Service) error {
					return prune(ctx, w, svc)
				}),
			},
			{
				Name:  "list",
				Usage: "list local and uploaded backups, newest first",
				Action: withService(func(ctx context.Context, svc *backup.Service) error {
					backups, err := svc.List(ctx)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "NAME\tLOCATION\tSIZE\tCREATED")
					for _, b := range backups {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", b.Name, b.Location, b.Size, b.CreatedAt.Format("2006-01-02 15:04:05"))
					}
					return tw.Flush()
				}),
			},
		},
	}
}

func prune(ctx context.Context, w io.Writer, svc *backup.Service) error {
	removed, err := svc.Prune(ctx)
	for _, b := range removed {
		fmt.Fprintf(w, "removed %s (%s)\n", b.Name, b.Location)
	}
	return err
}
