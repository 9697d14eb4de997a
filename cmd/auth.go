package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAuthCmd creates the auth command
func NewAuthCmd(global *GlobalOptions) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage AdGuard DNS API credentials",
	}

	var show bool
	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Long: `Verify the configured refresh token by exchanging it for a new access
token. Tokens are kept in memory only; use --show to print the new
values so they can be stored in ADGUARD_ACCESS_TOKEN and ADGUARD_REFRESH_TOKEN.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := newClient(global)
			if err != nil {
				return err
			}

			before := client.Credentials()
			token, err := client.Refresher().Refresh(cmd.Context())
			if err != nil {
				return err
			}
			after := client.Credentials()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Access token refreshed successfully.")
			if after.RefreshToken != before.RefreshToken {
				fmt.Fprintln(out, "The provider rotated the refresh token; the old one no longer works.")
			}
			if show {
				fmt.Fprintf(out, "\nADGUARD_ACCESS_TOKEN=%s\n", token)
				fmt.Fprintf(out, "ADGUARD_REFRESH_TOKEN=%s\n", after.RefreshToken)
			}
			return nil
		},
	}
	refreshCmd.Flags().BoolVar(&show, "show", false, "print the new tokens")

	authCmd.AddCommand(refreshCmd)
	return authCmd
}
