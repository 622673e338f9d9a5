package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"cinemind/internal/app"
	"cinemind/internal/vectorstore"
	"cinemind/services"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show index counts and sample documents",
	Long: `Print the document count per source and sentiment label, a few sample
documents, or every document stored for one movie.

Examples:
  cinemind inspect --sample 5
  cinemind inspect --movie the-dark-knight-2008`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Int("sample", 3, "sample documents to print")
	inspectCmd.Flags().String("movie", "", "list documents for this movie id")
}

func runInspect(cmd *cobra.Command, args []string) error {
	sample, _ := cmd.Flags().GetInt("sample")
	movie, _ := cmd.Flags().GetString("movie")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		out := cmd.OutOrStdout()
		if movie != "" {
			docs := a.Inspector.MovieDocuments(ctx, movie, 0)
			if len(docs) == 0 {
				return fmt.Errorf("no documents for movie %q", movie)
			}
			if jsonOutput {
				return printJSON(out, docs)
			}
			printRecords(out, docs)
			return nil
		}

		stats := a.Inspector.Stats(ctx, sample)
		if jsonOutput {
			return printJSON(out, stats)
		}
		printStats(out, stats)
		return nil
	})
}

func printStats(w io.Writer, stats services.IndexStats) {
	fmt.Fprintf(w, "documents: %d\n", stats.Total)
	printCounts(w, "by source", stats.BySource)
	printCounts(w, "by sentiment", stats.BySentiment)
	if len(stats.Sample) > 0 {
		fmt.Fprintln(w, "\nsample:")
		printRecords(w, stats.Sample)
	}
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-10s %d\n", k, counts[k])
	}
}

func printRecords(w io.Writer, recs []vectorstore.Record) {
	for _, r := range recs {
		fmt.Fprintf(w, "- %s\n  %s\n", r.ID, preview(r.Document, 160))
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
