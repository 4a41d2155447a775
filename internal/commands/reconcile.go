package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"savings/internal/cli"
	"savings/internal/services"
)

func newReconcileCommand() *cobra.Command {
	var now string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Close the month before --now for every user",
		Long: "Records one saving per user for the month preceding --now and adds it to\n" +
			"the user's total. Months already recorded are skipped, so reruns are safe.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			at, err := parseNow(now, loc, time.Now())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			res, err := cli.OpenBackend(ctx, logger, cfg)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			publisher, closePublisher := cli.OpenPublisher(logger, cfg)
			defer closePublisher()

			rec, err := cli.NewReconciler(logger, cfg, res.Stores, publisher)
			if err != nil {
				return err
			}

			sum, runErr := rec.Reconcile(ctx, at)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(sum); err != nil {
					return err
				}
			} else {
				printSummary(cmd.OutOrStdout(), sum)
			}
			if runErr != nil {
				return fmt.Errorf("reconciliation %s: %w", sum.Status(), runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&now, "now", "", "reference time (RFC3339 or YYYY-MM-DD); the month before it is reconciled")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")

	return cmd
}

// parseNow accepts RFC3339 or a bare date interpreted in loc. Empty means fallback.
func parseNow(s string, loc *time.Location, fallback time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --now %q: want RFC3339 or YYYY-MM-DD", s)
}

func printSummary(w io.Writer, sum services.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", sum.RunID)
	fmt.Fprintf(tw, "month\t%s\n", sum.Month)
	fmt.Fprintf(tw, "policy\t%s\n", sum.Policy)
	fmt.Fprintf(tw, "status\t%s\n", sum.Status())
	fmt.Fprintf(tw, "processed\t%d\n", sum.Processed)
	fmt.Fprintf(tw, "skipped\t%d\n", sum.Skipped)
	fmt.Fprintf(tw, "failed\t%d\n", sum.Failed)
	fmt.Fprintf(tw, "repaired\t%d\n", sum.Repaired)
	fmt.Fprintf(tw, "repair failed\t%d\n", sum.RepairFailed)
	fmt.Fprintf(tw, "duration\t%s\n", sum.Duration().Round(time.Millisecond))
	tw.Flush()

	if len(sum.Failures) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tMONTH\tREASON\tERROR")
	for _, f := range sum.Failures {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.UserID, f.Month, f.Reason, f.Error)
	}
	tw.Flush()
}
