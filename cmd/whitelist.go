package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewWhitelistCmd creates the whitelist command
func NewWhitelistCmd(global *GlobalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "List domains already whitelisted on the AdGuard DNS server",
		Long: `List the domains that have an @@||domain^ exception rule in the
server's user rules. Rules with modifiers are not shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := newClient(global)
			if err != nil {
				return err
			}

			domains, err := client.Whitelisted(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(domains)
			}
			if len(domains) == 0 {
				fmt.Fprintf(out, "No domains are whitelisted on server %s\n", client.ServerID())
				return nil
			}
			fmt.Fprintf(out, "%d domain(s) whitelisted on server %s:\n", len(domains), client.ServerID())
			for _, d := range domains {
				fmt.Fprintf(out, "  %s\n", d)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the list as JSON")

	return cmd
}
