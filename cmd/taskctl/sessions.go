package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"taskforge/internal/agentadapters"
	"taskforge/internal/config"
	"taskforge/internal/logging"
	"taskforge/internal/sessionstore"
)

func newSessionsCommand(flags *globalFlags, cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect sessions recorded under the plan directory",
	}
	cmd.AddCommand(newSessionsListCommand(flags, cfg))
	cmd.AddCommand(newSessionsShowCommand(flags, cfg))
	return cmd
}

func newSessionsListCommand(flags *globalFlags, cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every session under the plan directory, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := sessionstore.New(flags.planDir, agentadapters.Sha256Hasher{}, agentadapters.StructuralPRDValidator{}, logging.Discard())
			sessions, err := store.ListSessions(flags.planDir)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println(gray("no sessions found"))
				return nil
			}
			for _, s := range sessions {
				parent := "-"
				if s.ParentSession != nil {
					parent = *s.ParentSession
				}
				fmt.Printf("%s  %s  parent=%s\n", bold(s.ID), gray(s.CreatedAt.Format("2006-01-02 15:04:05")), parent)
			}
			return nil
		},
	}
}

func newSessionsShowCommand(flags *globalFlags, cfg config.Config) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <session-dir>",
		Short: "Print a session's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := sessionstore.New(flags.planDir, agentadapters.Sha256Hasher{}, agentadapters.StructuralPRDValidator{}, logging.Discard())
			state, err := store.LoadSession(args[0])
			if err != nil {
				return err
			}

			switch format {
			case "yaml":
				out, err := yaml.Marshal(state)
				if err != nil {
					return fmt.Errorf("sessions show: marshal yaml: %w", err)
				}
				fmt.Print(string(out))
			default:
				fmt.Printf("%s %s\n", bold("session"), state.Metadata.ID)
				fmt.Printf("path: %s\n", state.Metadata.Path)
				fmt.Printf("hash: %s\n", state.Metadata.Hash)
				fmt.Printf("items: %d\n", len(state.TaskRegistry.Backlog))
				if state.CurrentItemID != nil {
					fmt.Printf("current item: %s\n", *state.CurrentItemID)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "text|yaml")
	return cmd
}
