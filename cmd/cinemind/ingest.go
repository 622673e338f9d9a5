package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"cinemind/internal/app"
	"cinemind/models"
	"cinemind/services"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [tmdb|imdb|script|all]",
	Short: "Run ingestion pipelines in the foreground",
	Long: `Run one or all ingestion pipelines and wait for them to finish.

Examples:
  cinemind ingest tmdb --limit 10     # Popular movies from the catalog API
  cinemind ingest imdb --limit 2      # Scrape reviews for the seed titles
  cinemind ingest script              # Chunk every screenplay in SCRIPTS_DIR`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"tmdb", "imdb", "script", "all"},
	RunE:      runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().Int("limit", services.DefaultAPILimit, "movies per source")
}

func runIngest(cmd *cobra.Command, args []string) error {
	target := models.IngestTarget(args[0])
	if !target.Valid() {
		return fmt.Errorf("unknown source %q, want tmdb, imdb, script or all", args[0])
	}
	limit, _ := cmd.Flags().GetInt("limit")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		reports := a.Coordinator.Run(ctx, target, limit)
		status := models.DeriveStatus(reports)

		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), map[string]any{"status": status, "stages": reports}); err != nil {
				return err
			}
		} else {
			printReports(cmd.OutOrStdout(), reports, status)
		}
		if status == models.JobFailed {
			return fmt.Errorf("ingestion failed")
		}
		return nil
	})
}

func printReports(w io.Writer, reports []models.StageReport, status models.JobStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tFETCHED\tSTORED\tEMBED FAILS\tSENTIMENT FALLBACK\tITEM ERRORS\tDURATION\tERROR")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%dms\t%s\n",
			r.Source, r.Fetched, r.Stored, r.EmbeddingFailures, r.SentimentFallback, r.ItemErrors, r.DurationMs, r.Error)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nstatus: %s\n", status)
}
