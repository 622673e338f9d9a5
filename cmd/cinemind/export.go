package main

import (
	"context"
	"fmt"
	"os"

	"cinemind/internal/app"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the index to an xlsx spreadsheet",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("out", "o", "", "output file (default cinemind_index_<timestamp>.xlsx)")
}

func runExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if out == "" {
			out = a.Export.ExportFileName()
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		rows, err := a.Export.WriteXLSX(ctx, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d documents to %s\n", rows, out)
		return nil
	})
}
