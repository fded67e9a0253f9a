package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quinteroac/ai-content-creator/internal/fetcher"
)

func newCleanupCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove orphaned temp files from the models directory",
		Long: `Walk the models directory and remove partial download files left
behind by interrupted runs. The daemon does this automatically at
startup; this command does the same on demand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return &configError{err: err}
			}

			removed, err := fetcher.CleanupOrphans(cfg.ModelsDir)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d orphaned temp file(s)\n", removed)
			return nil
		},
	}
}
