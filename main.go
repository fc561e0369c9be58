// Package main runs the CogniCare workflow orchestrator.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davidanoel/cognicare-sub000/internal/adapter/collaborator"
	"github.com/davidanoel/cognicare-sub000/internal/auth"
	"github.com/davidanoel/cognicare-sub000/internal/config"
	"github.com/davidanoel/cognicare-sub000/internal/logging"
	"github.com/davidanoel/cognicare-sub000/internal/repository"
	"github.com/davidanoel/cognicare-sub000/internal/service"
	"github.com/davidanoel/cognicare-sub000/internal/telemetry"
	handler "github.com/davidanoel/cognicare-sub000/internal/transport/http"
	"github.com/davidanoel/cognicare-sub000/policy"
)

var (
	configPath string
	version    = "0.1.0"

	tokenClinician string
	tokenTTL       time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "cognicare-orchestrator",
	Short:   "Workflow orchestrator for the CogniCare analysis collaborators",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workflow HTTP server",
	RunE:  runServe,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a caller bearer token for local testing",
	Long: `Mint a caller bearer token signed with auth.caller_secret.

Examples:
  COGNICARE_AUTH_CALLER_SECRET=dev cognicare-orchestrator token --clinician u-123`,
	RunE: runToken,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	tokenCmd.Flags().StringVar(&tokenClinician, "clinician", "", "clinician account id (token subject)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("clinician")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting orchestrator",
		zap.String("version", version),
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.String("collaborators", cfg.Collaborators.BaseURL),
	)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	// Initialize risk screening policy
	ctx := context.Background()
	screener, err := policy.NewEngine(ctx, policy.DefaultPolicy, cfg.Screening.Keywords)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	metrics := telemetry.NewMetrics()
	issuer := auth.NewIssuer(cfg.Auth.ServiceSecret, cfg.Auth.ServiceIssuer, cfg.Auth.ServiceTokenTTL)
	gateway := collaborator.NewClient(cfg.Collaborators, issuer, metrics, logger)

	svc := service.New(db, gateway, screener, cfg, logger, metrics)
	server := handler.NewServer(svc, auth.NewVerifier(cfg.Auth.CallerSecret), logger, version)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("workflow API started", zap.Int("port", cfg.Server.HTTPPort))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("shutting down orchestrator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server gracefully", zap.Error(err))
	}

	logger.Info("orchestrator stopped")
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	token, err := auth.NewIssuer(cfg.Auth.CallerSecret, cfg.Auth.ServiceIssuer, tokenTTL).Issue(tokenClinician, "")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
