package cmd

import (
	"fmt"

	"dnsmedic/internal/api"

	"github.com/spf13/cobra"
)

// NewAPITokenCmd creates the api-token command
func NewAPITokenCmd() *cobra.Command {
	var tokenPath string

	apiTokenCmd := &cobra.Command{
		Use:   "api-token",
		Short: "Manage the local HTTP API token",
		Long:  `Generate and show the bearer token required by the dnsmedic HTTP API.`,
	}
	apiTokenCmd.PersistentFlags().StringVar(&tokenPath, "token-file", "", "token file (default ~/.dnsmedic/api_token)")

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new API token, replacing the current one",
		RunE: func(cmd *cobra.Command, args []string) error {
			tm := api.NewAPITokenManager(tokenPath)

			token, err := tm.GenerateToken()
			if err != nil {
				return fmt.Errorf("failed to generate API token: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "API authentication token generated successfully:")
			fmt.Fprintf(out, "Token: %s\n", token)
			fmt.Fprintln(out, "\nUse this token in the Authorization header:")
			fmt.Fprintf(out, "Authorization: Bearer %s\n", token)
			fmt.Fprintf(out, "\nThe token is saved in %s\n", tm.Path())
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Display the current API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := api.NewAPITokenManager(tokenPath).Token()
			if err != nil {
				return fmt.Errorf("failed to load token: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Current API token: %s\n", token)
			fmt.Fprintln(out, "\nUse this token in the Authorization header:")
			fmt.Fprintf(out, "Authorization: Bearer %s\n", token)
			return nil
		},
	}

	apiTokenCmd.AddCommand(generateCmd, showCmd)
	return apiTokenCmd
}
