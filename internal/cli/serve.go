package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/bryan-buckman/podgrab/internal/podcasts"
	"github.com/bryan-buckman/podgrab/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and update subscriptions periodically",
		Long: `Serve the HTTP API on serve.addr and run an update every serve.interval.

Updates started by the API and by the poller never overlap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStore, err := a.openService()
			if err != nil {
				return err
			}
			defer closeStore()

			refresher := podcasts.NewRefresher(svc)
			srv := server.New(svc, refresher)
			poller := podcasts.NewPoller(refresher, a.cfg.Serve.Interval)

			var g run.Group
			{
				ctx, cancel := context.WithCancel(cmd.Context())
				g.Add(func() error {
					return srv.ListenAndServe(ctx, a.cfg.Serve.Addr)
				}, func(error) {
					cancel()
				})
			}
			{
				ctx, cancel := context.WithCancel(cmd.Context())
				g.Add(func() error {
					return poller.Run(ctx)
				}, func(error) {
					cancel()
				})
			}
			g.Add(run.SignalHandler(cmd.Context(), os.Interrupt, syscall.SIGTERM))

			err = g.Run()
			if errors.Is(err, run.ErrSignal) || errors.Is(err, context.Canceled) {
				slog.Info("server stopped", "reason", err)
				return nil
			}
			return err
		},
	}
}
