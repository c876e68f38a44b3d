package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newDetectCmd creates the 'detect' subcommand: a crawl-free comparison
// of the live site against the stored records.
func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Compare the live catalog against stored records",
		Long: `Takes a fresh snapshot of the catalog without writing records, diffs
it against the store, and persists a change event for every new,
removed, or updated title.`,
		RunE: runDetectCommand,
	}
}

func runDetectCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	summary, err := a.Detector().Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	a.Logger().Info("detection finished",
		zap.Int("current", summary.Current),
		zap.Int("stored", summary.Stored),
		zap.Int("new", summary.New),
		zap.Int("removed", summary.Removed),
		zap.Int("updated", summary.Updated),
		zap.Int("events", summary.Total),
	)
	return nil
}
