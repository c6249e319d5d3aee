// Package cli contains the podgrab command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/podgrab/internal/config"
	"github.com/bryan-buckman/podgrab/internal/database"
	"github.com/bryan-buckman/podgrab/internal/download"
	"github.com/bryan-buckman/podgrab/internal/logger"
	"github.com/bryan-buckman/podgrab/internal/notify"
	"github.com/bryan-buckman/podgrab/internal/output"
	"github.com/bryan-buckman/podgrab/internal/podcasts"
	"github.com/bryan-buckman/podgrab/internal/rss"
	"github.com/bryan-buckman/podgrab/internal/syncer"
)

// app holds state shared by all commands of one invocation.
type app struct {
	cfgFile string
	verbose bool
	quiet   bool
	cfg     *config.Config
	printer *output.Printer
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "podgrab",
		Short: "Podcast subscription manager",
		Long: `podgrab keeps podcast subscriptions and downloads new episodes.

Each subscription remembers the date of the last downloaded episode, so an
update only fetches what was published since then.

Example usage:
  podgrab subscribe https://example.com/feed.xml
  podgrab update                     # Download new episodes of all subscriptions
  podgrab download feed.xml --max 0  # Download a whole feed without subscribing
  podgrab list`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is .podgrab.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "only print errors")

	root.AddCommand(
		newSubscribeCommand(a),
		newUpdateCommand(a),
		newDownloadCommand(a),
		newUnsubscribeCommand(a),
		newListCommand(a),
		newImportCommand(a),
		newExportCommand(a),
		newMailCommand(a),
		newServeCommand(a),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// init loads configuration and sets up logging and output.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg

	slog.SetDefault(logger.New(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Level))
	a.printer = output.NewPrinterWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr(),
		output.ResolveColors(cfg.Output.Colors), a.quiet)

	slog.Debug("configuration loaded",
		"download_dir", cfg.Download.Dir,
		"database", cfg.Database.Driver,
		"max_per_run", cfg.Download.MaxPerRun,
	)
	return nil
}

// openService wires the store, feed source and sync engine. The returned
// func closes the store.
func (a *app) openService() (*podcasts.Service, func(), error) {
	if err := os.MkdirAll(a.cfg.Download.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create download directory: %w", err)
	}

	store, err := database.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	slog.Debug("database opened", "type", store.DatabaseType())

	downloader := download.NewDownloader(a.cfg.Download.Timeout, rss.UserAgent)
	engine := syncer.New(a.cfg.Download.Dir, a.cfg.Download.MaxPerRun, downloader)

	var mailer podcasts.Mailer
	if a.cfg.Mail.Server != "" {
		mailer = notify.NewSMTPMailer(a.cfg.Mail.Server, a.cfg.Mail.From)
	}

	svc := podcasts.New(store, rss.NewSource(a.cfg.Feed.Timeout, a.cfg.Feed.Retries), rss.NewParser(), engine, mailer)
	return svc, func() { store.Close() }, nil
}

// run executes a single operation against a freshly opened service.
func (a *app) run(cmd *cobra.Command, op podcasts.Operation) (podcasts.Result, error) {
	svc, closeStore, err := a.openService()
	if err != nil {
		return podcasts.Result{}, err
	}
	defer closeStore()
	return svc.Run(cmd.Context(), op)
}
