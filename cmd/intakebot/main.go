// Command intakebot runs the study material intake bot.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/intakebot/bot/app"
	"github.com/m3rciful/intakebot/bot/config"
	"github.com/m3rciful/intakebot/core/buildinfo"
	corecmd "github.com/m3rciful/intakebot/core/cmd"
)

const (
	configEnvVar      = "CONFIG_PATH"
	defaultConfigPath = "config.yaml"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "intakebot",
		Short:         "Telegram bot that collects study material for an operator chat",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.Run(cmd.Context(), corecmd.Options{
				ConfigPath:        configPath,
				ConfigEnvVar:      configEnvVar,
				DefaultConfigPath: defaultConfigPath,
				LoadConfig:        loadConfig,
				Bootstrap:         app.Bootstrap,
			})
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("path to the YAML config (default $%s or %s)", configEnvVar, defaultConfigPath))

	root.AddCommand(
		&cobra.Command{
			Use:   "check-config",
			Short: "Validate the configuration and print the effective settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path := corecmd.ResolveConfigPath(configPath, configEnvVar, defaultConfigPath)
				cfg, err := config.Load(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "config: %s\n", path)
				for _, line := range cfg.Summary() {
					fmt.Fprintln(out, line)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "intakebot %s (commit %s, built %s)\n",
					buildinfo.Version, buildinfo.Commit, builtAt())
			},
		},
	)
	return root
}

func loadConfig(path string) (corecmd.ConfigCarrier, error) {
	return config.Load(path)
}

func builtAt() string {
	if buildinfo.Date == "" {
		return "unknown"
	}
	return buildinfo.Date
}
