// Package cmd implements the command-line interface for dnsmedic.
// It provides subcommands for serving the agent tools, inspecting blocked
// queries, whitelisting domains and managing local credentials.
package cmd

import (
	"fmt"
	"os"

	"dnsmedic/internal/adguard"
	"dnsmedic/internal/config"
	"dnsmedic/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// GlobalOptions holds flags shared by every subcommand
type GlobalOptions struct {
	ConfigFile string
	Version    string
}

// NewRootCmd creates the dnsmedic command tree
func NewRootCmd(version string) *cobra.Command {
	opts := &GlobalOptions{Version: version}

	rootCmd := &cobra.Command{
		Use:   "dnsmedic",
		Short: "Diagnose and fix AdGuard DNS over-blocking",
		Long: `dnsmedic lets an AI agent (or you) see which DNS queries AdGuard DNS
blocked recently and whitelist the domains that broke something.
It serves the tools over MCP on stdio and, optionally, a local HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default is ./dnsmedic.yaml)")

	rootCmd.AddCommand(
		NewServeCmd(opts),
		NewQueryLogCmd(opts),
		NewUnblockCmd(opts),
		NewWhitelistCmd(opts),
		NewCheckCmd(opts),
		NewAuthCmd(opts),
		NewAPITokenCmd(),
		NewAuditCmd(opts),
		NewVersionCmd(opts),
	)

	return rootCmd
}

// loadConfig reads and validates configuration and sets up logging on stderr
func loadConfig(opts *GlobalOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logging.Setup(cfg.Agent.LogLevel, os.Stderr, cfg.Agent.RedactPII); err != nil {
		return nil, err
	}

	for _, warning := range config.ValidateCredentialSecurity(cfg) {
		logrus.Warnf("SECURITY WARNING: %s", warning)
	}
	logrus.Debugf("Loaded configuration: %+v", config.SanitizeConfig(cfg))

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newClient(opts *GlobalOptions) (*config.Config, *adguard.Client, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	client, err := adguard.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}

// NewVersionCmd creates the version command
func NewVersionCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dnsmedic v%s\n", opts.Version)
		},
	}
}
