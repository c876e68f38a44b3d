package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newReportCmd creates the 'report' subcommand: print one day's change
// report as JSON.
func newReportCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the daily change report as JSON",
		Long: `Aggregates the change events of one UTC day into counts by kind,
price and availability change totals, and the most-changed titles.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReportCommand(cmd, date)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "report day as YYYY-MM-DD (default today, UTC)")
	return cmd
}

func runReportCommand(cmd *cobra.Command, date string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	day := time.Now().UTC()
	if date != "" {
		day, err = time.Parse("2006-01-02", date)
		if err != nil {
			return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", date)
		}
	}

	report, err := a.Reporter().Daily(cmd.Context(), day)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	cmd.Println(string(out))
	return nil
}
