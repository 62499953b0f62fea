// Package cli provides the command-line interface for hvctl.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/javanstorm/hvctl/internal/config"
	"github.com/javanstorm/hvctl/internal/hosts"
	"github.com/javanstorm/hvctl/internal/logging"
	"github.com/javanstorm/hvctl/internal/render"
)

var rootCmd = &cobra.Command{
	Use:   "hvctl",
	Short: "hvctl - manage Hyper-V hosts through WMI",
	Long: `hvctl manages the virtual machines, switches and disks of a Hyper-V host.

It talks to the host's virtualization provider over SSH and PowerShell,
walks the WMI object graph, and waits on the jobs the host starts.
Use --simulate to run any command against a built-in simulated host.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var (
	outputFlag string
	output     render.Format
	showTiming bool
)

// Execute runs the root command.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("host", "H", "", "Management host: registered name or address (default: active host)")
	pf.Bool("simulate", false, "Use the simulated host instead of a real one")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
	pf.String("log-format", "", "Log format: text or json")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
	pf.StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json or dot")
	pf.BoolVar(&showTiming, "timing", false, "Report how long connecting and running the command took")

	for key, flag := range map[string]string{
		"host":              "host",
		"simulator.enabled": "simulate",
		"log.level":         "log-level",
		"log.format":        "log-format",
		"metrics.addr":      "metrics-addr",
	} {
		if err := viper.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(vmCmd)
	rootCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(traverseCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(diskCmd)
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(configCmd)
}

// setup loads configuration, configures logging and validates settings.
func setup(cmd *cobra.Command, args []string) error {
	switch cmd.Name() {
	case "version", "completion", "help":
		return nil
	}

	var err error
	if output, err = render.ParseFormat(outputFlag); err != nil {
		return err
	}
	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.Global

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.Init(level, cfg.Log.Format, cmd.ErrOrStderr())

	remote := needsHost(cmd) && !cfg.Simulator.Enabled
	if remote && cfg.Host == "" {
		paths, err := config.GetPaths()
		if err != nil {
			return err
		}
		if active, err := hosts.NewRegistry(paths.DataDir).GetActive(); err == nil {
			cfg.Host = active
		}
	}

	errs := config.ValidateConfig(cfg, remote)
	if config.HasFatal(errs) {
		return fmt.Errorf("invalid configuration:\n%s", config.FormatValidationErrors(errs))
	}
	for _, e := range errs {
		slog.Debug("configuration warning", "field", e.Field, "message", e.Message)
	}
	return nil
}

// needsHost reports whether cmd talks to a management host.
func needsHost(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "host", "templates", "config":
			return false
		}
	}
	return true
}
