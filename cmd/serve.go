package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"dnsmedic/internal/adguard"
	"dnsmedic/internal/api"
	"dnsmedic/internal/audit"
	"dnsmedic/internal/config"
	"dnsmedic/internal/logging"
	"dnsmedic/internal/mcp"
	"dnsmedic/internal/security"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// ServeOptions contains options for the serve command
type ServeOptions struct {
	EnableAPI bool
	APIPort   int
	NoMCP     bool
}

// NewServeCmd creates the serve command
func NewServeCmd(global *GlobalOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the AdGuard DNS tools to an agent",
		Long: `Serve get-adguard-query-log and unblock-adguard-domain over MCP on
stdio. With --api, the same operations are also available on a local
HTTP API protected by the token from 'dnsmedic api-token generate'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), global, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.EnableAPI, "api", false, "also serve the local HTTP API")
	cmd.Flags().IntVar(&opts.APIPort, "api-port", 0, "HTTP API port (overrides api.port)")
	cmd.Flags().BoolVar(&opts.NoMCP, "no-mcp", false, "do not serve MCP on stdio (requires --api)")

	return cmd
}

func runServe(parent context.Context, global *GlobalOptions, opts *ServeOptions) error {
	cfg, client, err := newClient(global)
	if err != nil {
		return err
	}
	if opts.EnableAPI {
		cfg.API.Enabled = true
	}
	if opts.APIPort != 0 {
		cfg.API.Port = opts.APIPort
	}
	if opts.NoMCP && !cfg.API.Enabled {
		return fmt.Errorf("--no-mcp requires the HTTP API to be enabled")
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trail := openAuditTrail(ctx, cfg, newS3Putter)
	defer trail.Close()

	// credentials are in memory from here on
	security.NewHardening().Apply()

	logrus.WithFields(logrus.Fields{
		"version":   global.Version,
		"server_id": cfg.AdGuard.ServerID,
		"api":       cfg.API.Enabled,
		"mcp":       !opts.NoMCP,
	}).Info("Starting dnsmedic")

	errCh := make(chan error, 2)

	var apiServer *api.Server
	if cfg.API.Enabled {
		tokens := api.NewAPITokenManager("")
		if _, err := tokens.Token(); err != nil {
			logrus.WithError(err).Warn("API token not found, authenticated endpoints will reject requests")
		}
		apiServer = api.NewServer(client, tokens, cfg.API, global.Version)
		go func() {
			if err := apiServer.Start(cfg.API.Port); err != nil {
				errCh <- fmt.Errorf("API server failed: %w", err)
			}
		}()
	}

	if !opts.NoMCP {
		go func() {
			errCh <- serveMCP(ctx, client, global.Version)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logrus.Info("Shutting down")
	case runErr = <-errCh:
		if runErr == nil {
			logrus.Info("MCP client disconnected")
		}
	}

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logrus.WithError(err).Error("Failed to stop API server")
		}
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func serveMCP(ctx context.Context, client *adguard.Client, version string) error {
	return mcp.New(client, version).Run(ctx)
}

// auditTrail owns the local audit file and the optional S3 archive fed from it
type auditTrail struct {
	enabled  bool
	archiver *logging.Archiver
}

type putterFactory func(ctx context.Context, cfg *config.S3AuditConfig) (logging.ObjectPutter, error)

func newS3Putter(ctx context.Context, cfg *config.S3AuditConfig) (logging.ObjectPutter, error) {
	client, err := logging.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// openAuditTrail starts audit logging. The S3 archive is only started when
// the audit file is open, since it receives events as a sink of that logger.
func openAuditTrail(ctx context.Context, cfg *config.Config, newPutter putterFactory) *auditTrail {
	t := &auditTrail{}
	if err := audit.Initialize(cfg.Audit.Dir); err != nil {
		logrus.WithError(err).Warn("Audit log unavailable, events go to the application log only")
		if cfg.Audit.S3.Enabled {
			logrus.Warn("S3 audit archive disabled: no audit log to archive")
		}
		return t
	}
	t.enabled = true

	if !cfg.Audit.S3.Enabled {
		return t
	}
	client, err := newPutter(ctx, &cfg.Audit.S3)
	if err != nil {
		logrus.WithError(err).Warn("S3 audit archive disabled")
		return t
	}

	t.archiver = logging.NewArchiver(client, &cfg.Audit.S3, logging.DefaultArchiveInterval)
	audit.AddSink(t.archiver)
	t.archiver.Start()
	return t
}

// Close writes the stop event, then makes the final archive upload so the
// stop event is included.
func (t *auditTrail) Close() {
	if !t.enabled {
		return
	}
	if err := audit.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close audit log")
	}

	if t.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := t.archiver.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Final audit upload failed")
	}
}
