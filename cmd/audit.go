package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"dnsmedic/internal/audit"
	"dnsmedic/internal/logging"

	"github.com/spf13/cobra"
)

// NewAuditCmd creates the audit command
func NewAuditCmd(global *GlobalOptions) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Work with the local audit trail",
	}

	archiveCmd := &cobra.Command{
		Use:   "archive [FILE...]",
		Short: "Upload audit files to the configured S3 bucket",
		Long: `Compress and upload audit files to audit.s3.bucket. Without arguments,
every audit file in audit.dir is uploaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			if cfg.Audit.S3.Bucket == "" {
				return fmt.Errorf("audit.s3.bucket is not configured")
			}

			files := args
			if len(files) == 0 {
				files, err = filepath.Glob(filepath.Join(audit.ExpandDir(cfg.Audit.Dir), "audit-*.log"))
				if err != nil {
					return err
				}
				sort.Strings(files)
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No audit files to archive")
				return nil
			}

			s3Client, err := logging.NewS3Client(cmd.Context(), &cfg.Audit.S3)
			if err != nil {
				return err
			}
			archiver := logging.NewArchiver(s3Client, &cfg.Audit.S3, 0)

			for _, f := range files {
				key, err := archiver.UploadFile(cmd.Context(), f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to s3://%s/%s\n", f, cfg.Audit.S3.Bucket, key)
			}
			return nil
		},
	}

	auditCmd.AddCommand(archiveCmd)
	return auditCmd
}
