package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/podgrab/internal/podcasts"
)

func newSubscribeCommand(a *app) *cobra.Command {
	var noDownload bool

	cmd := &cobra.Command{
		Use:   "subscribe URL",
		Short: "Subscribe to a podcast feed",
		Long: `Subscribe to a podcast feed and download its episodes of the last week.

Examples:
  podgrab subscribe https://example.com/feed.xml
  podgrab subscribe https://example.com/feed.xml --no-download`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.run(cmd, podcasts.Subscribe{URL: args[0], NoDownload: noDownload})
			if err != nil {
				return err
			}
			if res.Notice != "" {
				a.printer.Warning("%s: %s", args[0], res.Notice)
				return nil
			}
			a.printer.Success("Subscribed to %s", args[0])
			return printReport(a.printer, res.Report)
		},
	}
	cmd.Flags().BoolVar(&noDownload, "no-download", false, "only record the subscription")
	return cmd
}

func newUpdateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Download new episodes of all subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.run(cmd, podcasts.Update{})
			if perr := printReport(a.printer, res.Report); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}
}

func newDownloadCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "download URL|FILE",
		Short: "Download episodes of a feed without subscribing",
		Long: `Download every episode of a feed, regardless of its age, without
subscribing to it.

Examples:
  podgrab download https://example.com/feed.xml
  podgrab download ./feed.xml --max 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.run(cmd, podcasts.Download{Locator: args[0], Max: limit})
			if err != nil {
				return err
			}
			return printReport(a.printer, res.Report)
		},
	}
	cmd.Flags().IntVar(&limit, "max", 0, "maximum episodes per channel (0 for all)")
	return cmd
}

func newUnsubscribeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe URL",
		Short: "Remove a subscription and its downloaded episodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.run(cmd, podcasts.Unsubscribe{URL: args[0]})
			if err != nil {
				return err
			}
			if res.Notice != "" {
				a.printer.Warning("%s: %s", args[0], res.Notice)
			}
			if len(res.Subscriptions) == 0 {
				return nil
			}
			if res.Path != "" {
				a.printer.Info("Deleted %s", res.Path)
			}
			a.printer.Success("Unsubscribed from %s", res.Subscriptions[0].ChannelName)
			return nil
		},
	}
}

func newListCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List subscriptions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.run(cmd, podcasts.List{})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.printer.Out())
				enc.SetIndent("", "  ")
				return enc.Encode(res.Subscriptions)
			}

			if len(res.Subscriptions) == 0 {
				a.printer.Info("No subscriptions.")
				return nil
			}
			table := a.printer.NewTable("Name", "Feed", "Last episode")
			for _, sub := range res.Subscriptions {
				last := a.printer.Dim("never")
				if sub.Watermark != nil {
					last = sub.Watermark.Format("2006-01-02 15:04:05")
				}
				table.AddRow(sub.ChannelName, sub.FeedURL, last)
			}
			return table.Render()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
