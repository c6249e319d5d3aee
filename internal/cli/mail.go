package cli

import (
	"github.com/spf13/cobra"

	"github.com/bryan-buckman/podgrab/internal/podcasts"
)

func newMailCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail",
		Short: "Manage addresses that receive update reports",
		Long: `Manage addresses that receive a report after each update.

Reports are only sent when mail.server is configured.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add ADDRESS",
			Short: "Add a mail address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := a.run(cmd, podcasts.MailAdd{Address: args[0]}); err != nil {
					return err
				}
				a.printer.Success("E-Mail address %s has been added", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete ADDRESS",
			Short: "Delete a mail address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := a.run(cmd, podcasts.MailDelete{Address: args[0]}); err != nil {
					return err
				}
				a.printer.Success("E-Mail address %s has been deleted", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List mail addresses",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				res, err := a.run(cmd, podcasts.MailList{})
				if err != nil {
					return err
				}
				if len(res.Addresses) == 0 {
					a.printer.Info("No mail addresses.")
					return nil
				}
				for _, addr := range res.Addresses {
					a.printer.Print("%s", addr)
				}
				return nil
			},
		},
	)
	return cmd
}
