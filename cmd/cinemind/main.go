// Command cinemind runs ingestion, queries and index maintenance from a
// terminal, without the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"cinemind/internal/app"
	"cinemind/internal/config"
	"cinemind/internal/logger"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "cinemind",
	Short: "Cinema knowledge base ingestion and question answering",
	Long: `cinemind loads movie reviews and screenplays into a local vector index
and answers questions over it.

Example usage:
  cinemind ingest tmdb --limit 5      # Fetch popular movies and their reviews
  cinemind ingest all                 # Run every source one after another
  cinemind query "Why does the Joker burn the money?"
  cinemind inspect --sample 3         # Index counts and a few documents
  cinemind export --out index.xlsx    # Spreadsheet of the whole index`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withApp loads the configuration, wires the application and runs fn with a
// context cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	mode := "release"
	if verbose {
		mode = "debug"
	}
	logger.InitLoggerTo(cmd.ErrOrStderr(), mode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
