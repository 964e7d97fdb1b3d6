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

func newInitCommand(flags *globalFlags, cfg config.Config) *cobra.Command {
	var prdPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize or resume a session for a PRD",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prdPath == "" {
				return fmt.Errorf("--prd is required")
			}
			logger := logging.NewComponentLogger("init")
			store := sessionstore.New(flags.planDir, agentadapters.Sha256Hasher{}, agentadapters.StructuralPRDValidator{}, logger)
			store.Retry = cfg.RetryConfig()
			store.LongChainThreshold = cfg.LongChainThreshold

			state, err := store.Initialize(context.Background(), prdPath)
			if err != nil {
				return err
			}
			fmt.Printf("%s session %s at %s (%d item(s) in registry)\n", green("initialized"), bold(state.Metadata.ID), state.Metadata.Path, len(state.TaskRegistry.Backlog))
			return nil
		},
	}

	cmd.Flags().StringVar(&prdPath, "prd", "", "path to the PRD markdown file")
	return cmd
}
