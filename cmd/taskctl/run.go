package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"taskforge/internal/agentadapters"
	"taskforge/internal/config"
	"taskforge/internal/errorsx"
	"taskforge/internal/executor"
	"taskforge/internal/logging"
	"taskforge/internal/research"
	"taskforge/internal/scope"
	"taskforge/internal/sessionstore"
	"taskforge/internal/taskmodel"
)

func newRunCommand(flags *globalFlags, cfg config.Config) *cobra.Command {
	var (
		prdPath     string
		scopeStr    string
		concurrency int
		planCommand string
		executeCmd  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve a scope and drive it to completion with the Concurrent Executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prdPath == "" {
				return fmt.Errorf("--prd is required")
			}
			ctx := context.Background()
			logger := logging.NewComponentLogger("run")

			parsedScope, err := scope.Parse(scopeStr)
			if err != nil {
				return err
			}

			store := sessionstore.New(flags.planDir, agentadapters.Sha256Hasher{}, agentadapters.StructuralPRDValidator{}, logger)
			store.Retry = cfg.RetryConfig()
			store.LongChainThreshold = cfg.LongChainThreshold
			if _, err := store.Initialize(ctx, prdPath); err != nil {
				return err
			}

			backlog := store.Current().TaskRegistry

			var scopeIDs map[string]bool
			if parsedScope.Kind != scope.KindAll {
				resolved := scope.Resolve(&backlog, parsedScope)
				scopeIDs = make(map[string]bool, len(resolved))
				for _, it := range resolved {
					if it.Kind == taskmodel.KindSubtask {
						scopeIDs[it.ID] = true
					}
				}
				if len(scopeIDs) == 0 {
					return fmt.Errorf("scope %q matched no subtasks", scopeStr)
				}
			}

			var runner executor.Config
			runner.MaxConcurrency = concurrency
			runner.ResourceThreshold = cfg.ResourceThreshold
			runner.MemoryCeilingBytes = cfg.MemoryCeilingBytes
			runner.Enabled = true

			var researchQueue *research.Queue
			if planCommand != "" {
				gen := agentadapters.ShellPlanGenerator{ShellCommand: agentadapters.ShellCommand{Command: planCommand}}
				researchQueue = research.New(gen, 0, logger)
			}

			subtaskExecutor := agentadapters.ShellSubtaskExecutor{ShellCommand: agentadapters.ShellCommand{Command: executeCmd}}
			ex := executor.New(store, subtaskExecutor, researchQueue, logger, runner)

			summaries, runErr := ex.Run(ctx, &backlog, executor.Cancel{Done: make(chan struct{})}, scopeIDs)
			for i, s := range summaries {
				fmt.Printf("%s batch %d: %d/%d failed\n", blue("·"), i+1, s.FailureCount, s.Total)
			}

			if runErr != nil {
				var deadlock *errorsx.DeadlockError
				if errors.As(runErr, &deadlock) {
					fmt.Printf("%s %d subtask(s) blocked:\n", red("deadlock:"), len(deadlock.Blocked))
					for id, blockers := range deadlock.Blocked {
						fmt.Printf("  %s waiting on %v\n", id, blockers)
					}
				}
				return runErr
			}

			fmt.Println(green("run complete"))
			return nil
		},
	}

	cmd.Flags().StringVar(&prdPath, "prd", "", "path to the PRD markdown file")
	cmd.Flags().StringVar(&scopeStr, "scope", "all", `"all" or a P.M.T.S id`)
	cmd.Flags().IntVar(&concurrency, "concurrency", cfg.Concurrency, "max subtasks executed in parallel per batch")
	cmd.Flags().StringVar(&planCommand, "plan-command", "", "shell command invoked per subtask to prefetch a plan (optional)")
	cmd.Flags().StringVar(&executeCmd, "execute-command", "", "shell command invoked per subtask to perform the work")
	return cmd
}
