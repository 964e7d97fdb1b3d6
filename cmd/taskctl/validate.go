package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"taskforge/internal/agentadapters"
	"taskforge/internal/agentports"
	"taskforge/internal/config"
)

// newValidateCommand runs the structural PRD validator over one or more
// PRDs concurrently. A --prd flag may be repeated; every validation
// runs in its own goroutine under a shared errgroup, and the first read
// error is returned once all of them have finished.
func newValidateCommand(cfg config.Config) *cobra.Command {
	var prdPaths []string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate one or more PRDs without creating a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(prdPaths) == 0 {
				return fmt.Errorf("at least one --prd is required")
			}
			validator := agentadapters.StructuralPRDValidator{}

			results := make([]agentports.ValidationResult, len(prdPaths))
			var mu sync.Mutex
			g, ctx := errgroup.WithContext(cmd.Context())
			for i, path := range prdPaths {
				i, path := i, path
				g.Go(func() error {
					result, err := validator.Validate(ctx, path)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					mu.Lock()
					results[i] = result
					mu.Unlock()
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			anyCritical := false
			for i, path := range prdPaths {
				r := results[i]
				status := green("ok")
				if !r.Valid {
					status = red("invalid")
				}
				fmt.Printf("%s %s — %s\n", status, path, r.Summary)
				for _, issue := range r.Issues {
					fmt.Printf("  %s %s\n", yellow(issue.Severity+":"), issue.Message)
				}
				if r.HasCritical() {
					anyCritical = true
				}
			}
			if anyCritical {
				return fmt.Errorf("one or more PRDs failed validation with critical issues")
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&prdPaths, "prd", nil, "path to a PRD markdown file (repeatable)")
	return cmd
}
