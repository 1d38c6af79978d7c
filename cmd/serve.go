package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/delta-incubator/riverbank/catalog"
	"github.com/delta-incubator/riverbank/delta"
	"github.com/delta-incubator/riverbank/health"
	"github.com/delta-incubator/riverbank/internal/config"
	"github.com/delta-incubator/riverbank/server"
	"github.com/delta-incubator/riverbank/signing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sharing server",
	Long: `Starts the HTTP server: the bearer-protected sharing API under /api/v1,
the basic-auth admin surface under /admin, and /healthz, /readyz, and
/metrics.

The catalog comes from Postgres (--database-url) or from a static YAML
file (--static-catalog); exactly one must be configured.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8000", "HTTP listen address")
	serveCmd.Flags().String("database-url", "", "Postgres catalog connection string")
	serveCmd.Flags().String("static-catalog", "", "static catalog YAML file (bypasses the database)")
	serveCmd.Flags().String("endpoint", "", "externally advertised data-plane base URL")
	serveCmd.Flags().Duration("sign-expiry", signing.DefaultExpiry, "validity window of presigned file URLs")
	serveCmd.Flags().String("admin-username", "admin", "admin username")
	serveCmd.Flags().String("admin-password", "admin", "admin password")
	serveCmd.Flags().String("template-dir", "views", "admin template directory")
	serveCmd.Flags().Bool("template-reload", false, "re-parse admin templates on every render")
	serveCmd.Flags().StringSlice("cors-origins", nil, "allowed CORS origins for the data plane")
	serveCmd.Flags().Duration("read-timeout", 10*time.Second, "HTTP server read timeout")
	serveCmd.Flags().Duration("idle-timeout", 60*time.Second, "HTTP server idle timeout")

	mustBindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	mustBindPFlag("database_url", serveCmd.Flags().Lookup("database-url"))
	mustBindPFlag("static_catalog", serveCmd.Flags().Lookup("static-catalog"))
	mustBindPFlag("endpoint", serveCmd.Flags().Lookup("endpoint"))
	mustBindPFlag("sign_expiry", serveCmd.Flags().Lookup("sign-expiry"))
	mustBindPFlag("admin_username", serveCmd.Flags().Lookup("admin-username"))
	mustBindPFlag("admin_password", serveCmd.Flags().Lookup("admin-password"))
	mustBindPFlag("template_dir", serveCmd.Flags().Lookup("template-dir"))
	mustBindPFlag("template_reload", serveCmd.Flags().Lookup("template-reload"))
	mustBindPFlag("cors_origins", serveCmd.Flags().Lookup("cors-origins"))
	mustBindPFlag("read_timeout", serveCmd.Flags().Lookup("read-timeout"))
	mustBindPFlag("idle_timeout", serveCmd.Flags().Lookup("idle-timeout"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	checker := health.NewChecker()
	checker.Register("catalog")
	ready := health.NewReadinessChecker()

	// Catalog store: Postgres or static file.
	var store catalog.Store
	switch {
	case cfg.DatabaseURL != "":
		pg, err := catalog.NewPGStore(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer pg.Close()
		if err := pg.Ping(ctx); err != nil {
			return fmt.Errorf("ping catalog: %w", err)
		}
		store = pg
		logger.Info("catalog store ready", "mode", "postgres")
	default:
		mem, err := catalog.LoadStatic(cfg.StaticCatalog)
		if err != nil {
			return fmt.Errorf("load static catalog: %w", err)
		}
		store = mem
		logger.Info("catalog store ready", "mode", "static", "file", cfg.StaticCatalog)
	}
	checker.SetStatus("catalog", health.StatusUp)

	// Shared S3 client for delta log reads.
	s3Client, err := newS3Client(ctx, cfg)
	if err != nil {
		return fmt.Errorf("s3 client: %w", err)
	}
	opener := delta.NewLogOpener(s3Client, logger)

	signer, err := signing.NewS3Signer(ctx,
		cfg.AWSEndpoint, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey,
		cfg.SignExpiry, logger)
	if err != nil {
		return fmt.Errorf("signer: %w", err)
	}

	tmpl, err := server.NewTemplateCache(cfg.TemplateDir, cfg.TemplateReload)
	if err != nil {
		return err
	}

	api := server.NewAPI(store, opener, signer, logger)
	admin := server.NewAdmin(store, tmpl,
		server.StaticCredentials{Username: cfg.AdminUsername, Password: cfg.AdminPassword},
		cfg.Endpoint, logger)

	httpServer := server.New(api, admin, checker, ready, cfg.CORSOrigins, cfg.ReadTimeout, cfg.IdleTimeout)
	httpServer.Addr = cfg.Addr

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ln, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		ready.SetReady(true)
		logger.Info("server listening", "addr", cfg.Addr, "endpoint", cfg.Endpoint)
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		ready.SetReady(false)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// newS3Client builds the S3 client used for delta log reads, honoring the
// same endpoint/region/credential overrides as the signer.
func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	region := cfg.AWSRegion
	if region == "" {
		region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(region))
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.AWSEndpoint != "" {
		endpoint := cfg.AWSEndpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}
