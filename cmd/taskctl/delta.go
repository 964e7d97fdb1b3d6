package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"taskforge/internal/agentadapters"
	"taskforge/internal/config"
	"taskforge/internal/logging"
	"taskforge/internal/sessionstore"
)

func newDeltaCommand(flags *globalFlags, cfg config.Config) *cobra.Command {
	var newPRDPath string

	cmd := &cobra.Command{
		Use:   "delta",
		Short: "Create a delta session against the latest session for a revised PRD",
		RunE: func(cmd *cobra.Command, args []string) error {
			if newPRDPath == "" {
				return fmt.Errorf("--prd is required")
			}
			logger := logging.NewComponentLogger("delta")
			store := sessionstore.New(flags.planDir, agentadapters.Sha256Hasher{}, agentadapters.StructuralPRDValidator{}, logger)
			store.Retry = cfg.RetryConfig()
			store.LongChainThreshold = cfg.LongChainThreshold

			delta, err := store.CreateDeltaSession(context.Background(), newPRDPath)
			if err != nil {
				return err
			}
			fmt.Printf("%s delta session %s (parent %s)\n", green("created"), bold(delta.Metadata.ID), *delta.Metadata.ParentSession)
			if delta.DiffSummary != "" {
				fmt.Printf("%s %s\n", gray("diff:"), delta.DiffSummary)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&newPRDPath, "prd", "", "path to the revised PRD markdown file")
	return cmd
}
