// Package cli turns flags, environment and the settings file into a
// configured migrator and reports what it did.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/forumops/migrant"
	"github.com/forumops/migrant/internal/metrics"
	"github.com/forumops/migrant/internal/source"
	"github.com/forumops/migrant/migration"
	"github.com/logrusorgru/aurora/v3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	ExitOK      = 0
	ExitFailure = 1

	LogFormatColor = "color"
	LogFormatBW    = "bw"
	LogFormatJSON  = "json"
)

var ErrUnknownLogFormat = errors.New("unknown log format")

type (
	CloserFunc func() error

	Config struct {
		DatabaseURL      string
		Schema           string
		MigrationsFolder string
		GoFolder         string
		GoPackage        string
		MigrationsTable  string
		RunsTable        string

		// Migrations are the Go migrations compiled into the binary
		Migrations []migration.Factory

		NoSessionTx bool
		LogFormat   string
		Debug       bool
		SQL         bool
		MetricsFile string
	}

	ActionConfig struct {
		Steps  int
		Target string
	}

	App struct {
		migrator *migrant.Migrator
		metrics  *metrics.Recorder
		cfg      Config
		out      io.Writer
		color    bool
	}
)

// New connects to the configured database and builds the migrator
func New(cfg Config, out io.Writer) (*App, CloserFunc, error) {
	db, driver, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	dbOpt, err := createMigratorFrom(driver, factories, db, cfg)
	if err != nil {
		return nil, nil, multierr.Append(err, db.Close())
	}

	app, closer, err := build(cfg, out, dbOpt, migrant.UseSessionTransaction(!cfg.NoSessionTx))
	if err != nil {
		return nil, nil, multierr.Append(err, db.Close())
	}

	return app, func() error {
		return multierr.Append(closer(), db.Close())
	}, nil
}

// NewOffline builds a migrator that can only scaffold, it never opens the database
func NewOffline(cfg Config, out io.Writer) (*App, CloserFunc, error) {
	return build(cfg, out)
}

func build(cfg Config, out io.Writer, extra ...migrant.OptionFunc) (*App, CloserFunc, error) {
	lgOpt, err := loggerOption(cfg, out)
	if err != nil {
		return nil, nil, err
	}

	rec := metrics.New(nil)

	opts := []migrant.OptionFunc{
		lgOpt,
		migrant.UseMetrics(rec),
		migrant.UseMigrations(cfg.Migrations...),
		migrant.UseMigrationsTable(cfg.MigrationsTable, cfg.RunsTable),
	}

	if cfg.MigrationsFolder != "" {
		opts = append(opts, migrant.UseLocalFolderSource(cfg.MigrationsFolder))
	}

	if cfg.GoFolder != "" {
		opts = append(opts, migrant.UseGoScaffold(cfg.GoFolder, cfg.GoPackage))
	}

	m, closer, err := migrant.NewMigrator(append(opts, extra...)...)
	if err != nil {
		return nil, nil, err
	}

	app := &App{
		migrator: m,
		metrics:  rec,
		cfg:      cfg,
		out:      out,
		color:    cfg.LogFormat == "" || cfg.LogFormat == LogFormatColor,
	}

	return app, CloserFunc(closer), nil
}

func loggerOption(cfg Config, out io.Writer) (migrant.OptionFunc, error) {
	switch cfg.LogFormat {
	case "", LogFormatColor:
		return migrant.UseColorLogger(log.New(out, "", 0), cfg.SQL, cfg.Debug), nil
	case LogFormatBW:
		return migrant.UseLogger(log.New(out, "", 0), cfg.SQL, cfg.Debug), nil
	case LogFormatJSON:
		zc := zap.NewProductionConfig()
		if cfg.Debug {
			zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}

		l, err := zc.Build()
		if err != nil {
			return nil, errors.Wrap(err, "could not build json logger")
		}

		return migrant.UseZapLogger(l, cfg.SQL), nil
	default:
		return nil, errors.Wrapf(ErrUnknownLogFormat, "%s", cfg.LogFormat)
	}
}

func (app *App) Migrator() *migrant.Migrator {
	return app.migrator
}

func (app *App) Up(ctx context.Context, cfg ActionConfig) error {
	migrated, err := app.migrator.Up(ctx, migrant.CreateConfigurators(cfg.Steps, cfg.Target)...)
	if errors.Is(err, migrant.ErrNothingToMigrate) {
		app.printf(aurora.Green, "nothing to migrate")
		return app.exportMetrics(err)
	}

	if len(migrated) > 0 {
		app.printf(aurora.Green, "migrated %s", humanize.Comma(int64(len(migrated))))
	}

	return app.exportMetrics(err)
}

func (app *App) Down(ctx context.Context, cfg ActionConfig) error {
	reverted, err := app.migrator.Down(ctx, migrant.CreateConfigurators(cfg.Steps, cfg.Target)...)
	if errors.Is(err, migrant.ErrNothingToRollback) {
		app.printf(aurora.Green, "nothing to roll back")
		return app.exportMetrics(err)
	}

	if len(reverted) > 0 {
		app.printf(aurora.Green, "rolled back %s", humanize.Comma(int64(len(reverted))))
	}

	return app.exportMetrics(err)
}

func (app *App) Pending(ctx context.Context) error {
	pending, err := app.migrator.Pending(ctx)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		app.printf(aurora.Green, "nothing pending")
		return app.exportMetrics(nil)
	}

	for _, d := range pending {
		app.printf(aurora.Yellow, "%s  written %s  %s", d.Name, d.DateWritten.Format(migration.DateLayout), d.Source)
	}

	return app.exportMetrics(nil)
}

func (app *App) Executed(ctx context.Context) error {
	entries, err := app.migrator.Executed(ctx)
	if err != nil {
		return err
	}

	known := app.migrator.Registry()
	for _, e := range entries {
		line := fmt.Sprintf("%s  applied %s", e.Name, humanize.Time(e.AppliedAt))
		if !known.Has(e.Name) {
			app.printf(aurora.Yellow, "%s  (unknown)", line)
			continue
		}

		app.printf(aurora.Green, "%s", line)
	}

	return nil
}

func (app *App) Rerun(ctx context.Context, name string) error {
	return app.exportMetrics(app.migrator.Rerun(ctx, name))
}

func (app *App) History(ctx context.Context, limit int) error {
	runs, err := app.migrator.History(ctx, limit)
	if err != nil {
		return err
	}

	for _, r := range runs {
		switch {
		case r.Succeeded == nil:
			app.printf(aurora.Yellow, "%s %s started %s, never finished", r.Name, r.Direction, humanize.Time(r.StartedAt))
		case *r.Succeeded:
			app.printf(aurora.Green, "%s %s ok %s", r.Name, r.Direction, took(r))
		default:
			msg := ""
			if r.Error != nil {
				msg = *r.Error
			}
			app.printf(aurora.Red, "%s %s failed %s: %s", r.Name, r.Direction, took(r), msg)
		}
	}

	return nil
}

func (app *App) Create(name string, kind source.Kind) (string, error) {
	return app.migrator.Create(name, kind)
}

// Report prints a failure in red, naming the migration when there is one
func Report(w io.Writer, err error) {
	if err == nil || IsSuccess(err) {
		return
	}

	var execErr *migrant.ExecutionError
	if errors.As(err, &execErr) {
		fmt.Fprintln(w, aurora.Red("migrant:"), aurora.Red(execErr.Name), execErr.Err.Error())
		return
	}

	fmt.Fprintln(w, aurora.Red("migrant:"), err.Error())
}

// IsSuccess reports whether err still counts as a successful invocation
func IsSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, migrant.ErrNothingToMigrate) ||
		errors.Is(err, migrant.ErrNothingToRollback)
}

func ExitCode(err error) int {
	if IsSuccess(err) {
		return ExitOK
	}

	return ExitFailure
}

func (app *App) exportMetrics(err error) error {
	if app.cfg.MetricsFile == "" {
		return err
	}

	return multierr.Append(err, app.metrics.WriteTextfile(app.cfg.MetricsFile))
}

func (app *App) printf(color func(arg interface{}) aurora.Value, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if app.color {
		fmt.Fprintln(app.out, color(msg))
		return
	}

	fmt.Fprintln(app.out, msg)
}

func took(r migrant.Run) string {
	if r.FinishedAt == nil {
		return ""
	}

	return "in " + r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
