package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"savings/internal/cli"
)

func newHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show a user's total savings and monthly ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			res, err := cli.OpenBackend(ctx, logger, cfg)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			user, err := res.Stores.GetUser(ctx, args[0])
			if err != nil {
				return err
			}
			entries, err := res.Stores.ListEntries(ctx, args[0])
			if err != nil {
				return fmt.Errorf("list ledger: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user %s  total savings %s\n\n", user.ID, user.TotalSavings)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "MONTH\tSAVING\tAPPLIED\t")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%t\t\n", e.Month, e.Saving, e.Applied)
			}
			return tw.Flush()
		},
	}
}
