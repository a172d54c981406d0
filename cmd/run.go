package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

func newRunCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Processes every enabled source once",
		Long: `Runs each enabled source through the pipeline: listing pages are scanned for
article links, RSS feeds are read, single-URL sources are fetched and ask_for_url sources
prompt on stdin. Already stored URLs are skipped before any fetch. With --source only the
named source runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			results, err := appInstance.RunSources(cmd.Context(), source)
			if err != nil {
				return err
			}
			logSummary(appInstance.Logger(), results)
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "run only the source with this name (case-insensitive)")
	return cmd
}

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url>...",
		Short: "Fetches individual article URLs",
		Long: `Processes the given article URLs. Arguments may also be comma separated lists.
The source of each article is taken from a configured source on the same host, else the
page's site name, else its hostname.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			var urls []string
			for _, arg := range args {
				urls = append(urls, crawler.SplitURLList(arg)...)
			}
			results := appInstance.FetchURLs(cmd.Context(), urls)
			logSummary(appInstance.Logger(), results)
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
}

func logSummary(logger *zap.Logger, results []crawler.ItemResult) {
	counts := make(map[crawler.ItemStatus]int)
	for _, r := range results {
		counts[r.Status]++
	}
	logger.Info("Run finished",
		zap.Int("items", len(results)),
		zap.Int("saved", counts[crawler.ItemSaved]),
		zap.Int("updated", counts[crawler.ItemUpdated]),
		zap.Int("skipped", counts[crawler.ItemSkipped]),
		zap.Int("failed", counts[crawler.ItemFailed]),
	)
}
