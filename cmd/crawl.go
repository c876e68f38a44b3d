package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookwatch/crawler/internal/catalog"
)

// newCrawlCmd creates the 'crawl' subcommand: one full crawl session.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl session over the configured catalog",
		Long: `Walks the catalog listing pages, fetches every product page with
bounded concurrency, and upserts the extracted records into the store.
Session counters are persisted as the crawl progresses.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	sess, err := a.Crawler().Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	a.Logger().Info("crawl finished",
		zap.String("session_id", sess.ID),
		zap.String("status", string(sess.Status)),
		zap.Int("discovered", sess.TotalDiscovered),
		zap.Int("succeeded", sess.Succeeded),
		zap.Int("failed", sess.Failed),
		zap.Int("inserted", sess.Inserted),
		zap.Int("updated", sess.Updated),
		zap.Int("unchanged", sess.Unchanged),
	)
	if sess.Status == catalog.SessionFailed {
		return fmt.Errorf("crawl session %s failed: %s", sess.ID, sess.ErrorMessage)
	}
	return nil
}
