package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/forumops/migrant"
	"github.com/forumops/migrant/internal/cli"
	"github.com/forumops/migrant/internal/source"
	"github.com/forumops/migrant/migrations"
	"github.com/logrusorgru/aurora/v3"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd(viper.New()).ExecuteContext(ctx)
	stop()

	cli.Report(os.Stderr, err)
	os.Exit(cli.ExitCode(err))
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "migrant",
		Short:         "Apply and revert forum database migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("db", "", "database url, defaults to PG_URL and then the settings file")
	flags.String("settings", "", "settings file, defaults to SETTINGS_FILE and then "+cli.DefaultSettingsFile)
	flags.String("env", cli.DefaultEnvironment, "environment in the settings file")
	flags.String("forum", cli.DefaultForum, "forum in the settings file")
	flags.String("log-format", cli.LogFormatColor, "color, bw or json")
	flags.Bool("debug", false, "print debug output")
	flags.Bool("sql", false, "print every executed statement")
	flags.String("metrics-file", "", "write prometheus metrics to this file after the run")
	flags.Bool("no-session-tx", false, "commit every migration on its own instead of one session transaction")

	_ = v.BindPFlags(flags)
	_ = v.BindEnv("db", cli.DatabaseURLEnv)
	_ = v.BindEnv("settings", cli.SettingsFileEnv)

	root.AddCommand(
		upCmd(v),
		downCmd(v),
		pendingCmd(v),
		executedCmd(v),
		createCmd(v),
		rerunCmd(v),
		historyCmd(v),
		initCmd(v),
	)

	return root
}

func upCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up [target]",
		Short: "Apply pending migrations, up to and including target",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(v, func(ctx context.Context, app *cli.App, cmd *cobra.Command, args []string) error {
			return app.Up(ctx, actionConfig(cmd, args))
		}),
	}

	cmd.Flags().Int("steps", 0, "apply at most this many migrations")

	return cmd
}

func downCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down [target]",
		Short: "Revert the latest migration, or everything down to and including target",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(v, func(ctx context.Context, app *cli.App, cmd *cobra.Command, args []string) error {
			return app.Down(ctx, actionConfig(cmd, args))
		}),
	}

	cmd.Flags().Int("steps", 0, "revert at most this many migrations")

	return cmd
}

func pendingCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List migrations that have not been applied",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(ctx context.Context, app *cli.App, _ *cobra.Command, _ []string) error {
			return app.Pending(ctx)
		}),
	}
}

func executedCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "executed",
		Short: "List applied migrations in the order they were applied",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(ctx context.Context, app *cli.App, _ *cobra.Command, _ []string) error {
			return app.Executed(ctx)
		}),
	}
}

func rerunCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "rerun <name>",
		Short: "Run an idempotent migration again",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(v, func(ctx context.Context, app *cli.App, _ *cobra.Command, args []string) error {
			return app.Rerun(ctx, args[0])
		}),
	}
}

func historyCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the latest migration runs, failed ones included",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(ctx context.Context, app *cli.App, cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return app.History(ctx, limit)
		}),
	}

	cmd.Flags().Int("limit", migrant.DefaultHistoryLimit, "number of runs to show")

	return cmd
}

func createCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Scaffold a new migration, the database is not touched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			kind, err := source.ParseKind(format)
			if err != nil {
				return err
			}

			cfg, err := resolveConfig(v)
			if err != nil {
				return err
			}

			app, closer, err := cli.NewOffline(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closer()

			path, err := app.Create(args[0], kind)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), aurora.Green("migrant:"), "created", path)

			return nil
		},
	}

	cmd.Flags().String("format", string(source.KindSQL), "sql or go")

	return cmd
}

func initCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a settings file stub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := cli.SettingsPath(v.GetString("settings"))
			if err := cli.WriteSettingsStub(path); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), aurora.Green("migrant:"), "created", path)

			return nil
		},
	}
}

type appFunc func(ctx context.Context, app *cli.App, cmd *cobra.Command, args []string) error

func withApp(v *viper.Viper, f appFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		cfg, err := resolveConfig(v)
		if err != nil {
			return err
		}

		app, closer, err := cli.New(cfg, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		defer func() {
			if closeErr := closer(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()

		return f(cmd.Context(), app, cmd, args)
	}
}

// resolveConfig merges flags and environment with the settings file. A
// missing default settings file is fine, one that was asked for is not.
func resolveConfig(v *viper.Viper) (cli.Config, error) {
	cfg := cli.Config{
		DatabaseURL: v.GetString("db"),
		Migrations:  migrations.All,
		NoSessionTx: v.GetBool("no-session-tx"),
		LogFormat:   v.GetString("log-format"),
		Debug:       v.GetBool("debug"),
		SQL:         v.GetBool("sql"),
		MetricsFile: v.GetString("metrics-file"),
	}

	explicit := v.GetString("settings")
	settings, err := cli.LoadSettings(cli.SettingsPath(explicit))
	switch {
	case err == nil:
		if err := settings.Apply(&cfg, v.GetString("env"), v.GetString("forum")); err != nil {
			return cfg, err
		}
	case explicit == "" && errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, err
	}

	if cfg.MigrationsFolder == "" {
		cfg.MigrationsFolder = source.DefaultMigrationsFolder
	}

	if cfg.GoFolder == "" {
		cfg.GoFolder = cfg.MigrationsFolder
	}

	return cfg, nil
}

func actionConfig(cmd *cobra.Command, args []string) cli.ActionConfig {
	steps, _ := cmd.Flags().GetInt("steps")

	var target string
	if len(args) > 0 {
		target = args[0]
	}

	return cli.ActionConfig{Steps: steps, Target: target}
}
