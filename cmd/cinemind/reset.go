package main

import (
	"context"
	"errors"
	"fmt"

	"cinemind/internal/app"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every document in the index collection",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().Bool("yes", false, "confirm the reset")
}

func runReset(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return errors.New("refusing to reset without --yes")
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		before := a.Inspector.Count(ctx)
		if err := a.Inspector.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d documents from %s\n", before, a.Index.Collection())
		return nil
	})
}
