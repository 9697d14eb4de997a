package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"dnsmedic/internal/adguard"

	"github.com/spf13/cobra"
)

// NewQueryLogCmd creates the query-log command
func NewQueryLogCmd(global *GlobalOptions) *cobra.Command {
	var (
		minutes int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "query-log",
		Short: "Show DNS queries blocked in the last few minutes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := adguard.ValidateWindow(minutes); err != nil {
				return err
			}

			_, client, err := newClient(global)
			if err != nil {
				return err
			}

			res, err := client.FetchBlocked(cmd.Context(), minutes)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			fmt.Fprintf(out, "%d blocked of %d queries in the last %d minutes\n", len(res.BlockedDomains), res.TotalQueries, minutes)
			if res.Truncated {
				fmt.Fprintln(out, "Note: only the most recent page of the query log was inspected")
			}
			if len(res.BlockedDomains) == 0 {
				return nil
			}

			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tDOMAIN\tRULE")
			for _, d := range res.BlockedDomains {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.BlockedAt, d.Domain, d.FilterRule)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&minutes, "minutes", "m", adguard.DefaultWindowMinutes, "how far back to look")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")

	return cmd
}
