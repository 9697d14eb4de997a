package cmd

import (
	"fmt"
	"strings"

	"dnsmedic/internal/dns"

	"github.com/spf13/cobra"
)

// NewCheckCmd creates the check command
func NewCheckCmd(global *GlobalOptions) *cobra.Command {
	var resolver string

	cmd := &cobra.Command{
		Use:   "check DOMAIN...",
		Short: "Check whether domains are blocked by the filtering resolver",
		Long: `Resolve each domain through the AdGuard DNS resolver (dns.resolver) and
report whether the answer looks like a block: 0.0.0.0 or ::, NXDOMAIN or REFUSED.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			if resolver == "" {
				resolver = cfg.DNS.Resolver
			}

			prober := dns.NewProber(resolver, cfg.DNS.Timeout)
			out := cmd.OutOrStdout()
			blocked := 0

			for _, domain := range args {
				res, err := prober.Probe(cmd.Context(), domain)
				if err != nil {
					fmt.Fprintf(out, "❌ %s: %v\n", domain, err)
					continue
				}

				switch {
				case res.Verdict == dns.VerdictNXDomain:
					blocked++
					fmt.Fprintf(out, "⚠️  %s: NXDOMAIN (blocked, or the domain does not exist)\n", res.Domain)
				case res.Blocked():
					blocked++
					fmt.Fprintf(out, "🚫 %s: blocked (%s %s)\n", res.Domain, res.Rcode, strings.Join(res.Addresses, ", "))
				default:
					fmt.Fprintf(out, "✅ %s: %s %s\n", res.Domain, res.Verdict, strings.Join(res.Addresses, ", "))
				}
			}

			if blocked > 0 {
				fmt.Fprintf(out, "\n%d of %d domain(s) look blocked. Whitelist with: dnsmedic unblock DOMAIN\n", blocked, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&resolver, "resolver", "", "resolver address (overrides dns.resolver)")

	return cmd
}
