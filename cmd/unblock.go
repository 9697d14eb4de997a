package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"dnsmedic/internal/adguard"
	"dnsmedic/internal/rules"

	"github.com/spf13/cobra"
)

// NewUnblockCmd creates the unblock command
func NewUnblockCmd(global *GlobalOptions) *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "unblock DOMAIN...",
		Short: "Whitelist domains in AdGuard DNS",
		Long: `Add @@||domain^ exception rules for each domain that is not already
whitelisted. Asks for confirmation unless --yes or agent.assumeYes is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// fail on bad input before touching config or the network
			for _, d := range args {
				if _, err := rules.WhitelistRule(d); err != nil {
					return err
				}
			}

			cfg, client, err := newClient(global)
			if err != nil {
				return err
			}

			if !assumeYes && !cfg.Agent.AssumeYes {
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Whitelist %s on server %s?", strings.Join(args, ", "), client.ServerID()))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			res, err := client.Unblock(cmd.Context(), args)
			if err != nil {
				return err
			}
			printUnblockResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func printUnblockResult(out io.Writer, res *adguard.UnblockResult) {
	fmt.Fprintln(out, res.Message)
	for _, r := range res.RulesAdded {
		fmt.Fprintf(out, "  + %s\n", r)
	}
	for _, d := range res.AlreadyWhitelisted {
		fmt.Fprintf(out, "  = %s (already whitelisted)\n", d)
	}
}
