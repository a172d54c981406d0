package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newUnprocessedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "unprocessed",
		Short: "Prints records without an analysis as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			recs, err := appInstance.Unprocessed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records (0 for all)")
	return cmd
}

func newExportCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Writes unprocessed records as one batch for the scoring agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			uri, n, err := appInstance.ExportUnprocessed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if n == 0 {
				appInstance.Logger().Info("Nothing to export")
			} else {
				appInstance.Logger().Info("Exported batch", zap.String("uri", uri), zap.Int("records", n))
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"uri": uri, "count": n})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records (0 for all)")
	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Stores scoring agent results from a JSON file",
		Long: `Reads a JSON array (or a single object) of {id, score, label, rationale|reasons,
summary, signals, analyzed_at} and attaches each analysis to its record. Use "-" for stdin.
Unknown ids and invalid payloads are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open analyses: %w", err)
				}
				defer f.Close() //nolint:errcheck // read-only
				in = f
			}
			summary, err := appInstance.ImportAnalyses(cmd.Context(), in)
			if err != nil {
				return err
			}
			appInstance.Logger().Info("Import finished",
				zap.Int("saved", summary.Saved),
				zap.Int("unknown", len(summary.Unknown)),
				zap.Int("invalid", len(summary.Invalid)),
			)
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
}
