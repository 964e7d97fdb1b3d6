package main

import (
	"net/http"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"taskforge/internal/config"
	"taskforge/internal/logging"
	"taskforge/internal/metrics"
)

// Color helpers, grounded on cmd/cobra_cli.go's fatih/color SprintFunc
// set (blue/green/yellow/red/gray for status vs. success vs. warning
// vs. error vs. secondary text).
var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// globalFlags holds the root command's persistent flags, resolved once
// in PersistentPreRunE and shared by every subcommand.
type globalFlags struct {
	planDir     string
	logLevel    string
	logFormat   string
	metricsAddr string
}

// runID is a per-invocation correlation id, generated afresh in
// PersistentPreRunE for every `taskctl` run. Log lines do not include it.
var runID string

// NewRootCommand builds the taskctl cobra command tree: init, run,
// delta, sessions (list|show), validate — plus the global
// --plan-dir/--log-level/--log-format flags, grounded on
// cmd/cobra_cli.go's NewRootCommand structure (persistent flags on the
// root, subcommands added via AddCommand, viper wired in for file
// config defaults).
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cfg, _ := config.Load() // on error (unreadable file, unparsable or out-of-range values) Load still returns the defaults

	root := &cobra.Command{
		Use:   "taskctl",
		Short: "Drives a hierarchical task plan through research, implementation, and validation.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			runID = uuid.NewString()
			logging.Configure(nil, logging.ParseLevel(flags.logLevel), flags.logFormat == "json")
			if flags.metricsAddr != "" {
				serveMetrics(flags.metricsAddr, logging.NewComponentLogger("metrics"))
			}
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.planDir, "plan-dir", cfg.PlanDir, "root directory containing session subdirectories")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", cfg.LogFormat, "text|json")
	root.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics at this address (e.g. :9090) for the lifetime of the command")

	root.AddCommand(newInitCommand(flags, cfg))
	root.AddCommand(newRunCommand(flags, cfg))
	root.AddCommand(newDeltaCommand(flags, cfg))
	root.AddCommand(newSessionsCommand(flags, cfg))
	root.AddCommand(newValidateCommand(cfg))

	return root
}

// serveMetrics starts a /metrics endpoint over metrics.Registry on a
// background goroutine and returns immediately; the listener runs for
// the remaining lifetime of the process. A bind failure is logged, not
// fatal, since metrics export is an optional side channel and should
// never block the command it accompanies.
func serveMetrics(addr string, logger logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server on %s stopped: %v", addr, err)
		}
	}()
	logger.Info("serving metrics on %s/metrics", addr)
}
