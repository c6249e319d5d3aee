package cli

import (
	"github.com/spf13/cobra"

	"github.com/bryan-buckman/podgrab/internal/podcasts"
)

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import subscriptions from an OPML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.run(cmd, podcasts.Import{Path: args[0]})
			if err != nil {
				return err
			}
			a.printer.Success("%d subscriptions have been added from %s", res.Added, args[0])
			if res.Added > 0 {
				a.printer.Info("These will be updated on the next update run.")
			}
			return nil
		},
	}
}

func newExportCommand(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export subscriptions to an OPML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.run(cmd, podcasts.Export{Dir: dir})
			if err != nil {
				return err
			}
			a.printer.Success("Subscriptions exported to %s", res.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to write the OPML file to")
	return cmd
}
