package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voicelocal/voicelocal/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo issues into an empty store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return seedRun()
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func seedRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would load demo issues if the store is empty")
		return nil
	}

	n, err := store.Seed(context.Background(), s)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if n == 0 {
		ui.Info("Store already has issues; nothing seeded.")
		return nil
	}
	ui.Success("Seeded %d demo issues", n)
	return nil
}
