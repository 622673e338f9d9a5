package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cinemind/internal/app"
	"cinemind/models"
	"cinemind/services"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Answer a question from the index",
	Long: `Retrieve the closest documents, re-rank them by source and ask the
generator for an answer.

Examples:
  cinemind query "What is the Joker's plan?"
  cinemind query --source script "How does the heist start?"
  cinemind query --movie "The Dark Knight" "Why the money?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().String("source", "", "only search tmdb, imdb or script documents")
	queryCmd.Flags().Int("limit", services.DefaultQueryLimit, "documents to retrieve")
	queryCmd.Flags().String("movie", "", "prefix the question with a movie title")
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	source, _ := cmd.Flags().GetString("source")
	limit, _ := cmd.Flags().GetInt("limit")
	movie, _ := cmd.Flags().GetString("movie")

	var filter *models.SourceKind
	if source != "" {
		kind, ok := models.ParseSourceKind(source)
		if !ok {
			return fmt.Errorf("unknown source %q, want tmdb, imdb or script", source)
		}
		filter = &kind
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		var (
			resp *services.RAGResponse
			err  error
		)
		if movie != "" {
			resp, err = a.RAG.QueryMovie(ctx, movie, question)
		} else {
			resp, err = a.RAG.Query(ctx, question, limit, filter)
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printAnswer(cmd.OutOrStdout(), resp)
		return nil
	})
}

func printAnswer(w io.Writer, resp *services.RAGResponse) {
	fmt.Fprintln(w, resp.Answer)
	if len(resp.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, d := range resp.Sources {
		fmt.Fprintf(w, "  %d. [%s] %s (distance %.3f, score %.3f)\n", i+1, d.Source, d.MovieTitle, d.Distance, d.WeightedScore)
	}
}
