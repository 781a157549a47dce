package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civic-desk/issue-sync/internal/api/dto"
	httptransport "github.com/civic-desk/issue-sync/internal/api/http"
	"github.com/civic-desk/issue-sync/internal/api/http/handlers"
	"github.com/civic-desk/issue-sync/internal/auth"
	"github.com/civic-desk/issue-sync/internal/config"
	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/observability"
	"github.com/civic-desk/issue-sync/internal/worker"
)

var rootCmd = &cobra.Command{
	Use:           "issuesync",
	Short:         "Citizen issue sync and enrichment service",
	Long:          `Polls the issue backend, enriches records with addresses, images and submitter profiles, and serves the merged view over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the poller and the HTTP API until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), serve)
	},
}

var syncOnceCmd = &cobra.Command{
	Use:   "sync-once",
	Short: "Run a single poll cycle and print the merged snapshot as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			return syncOnce(ctx, rt, cmd)
		})
	},
}

var (
	tokenRole       string
	tokenDepartment string
	tokenSubject    string
	tokenTTL        time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator bearer token signed with AUTH_JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, tokenTTL)
		if tokens == nil {
			return errors.New("AUTH_JWT_SECRET is not set")
		}
		token, expiresAt, err := tokens.GenerateToken(tokenSubject, domain.OperatorRole(tokenRole), tokenDepartment)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(domain.OperatorRoleAdmin), "ADMIN or DEPARTMENT")
	tokenCmd.Flags().StringVar(&tokenDepartment, "department", "", "department id for DEPARTMENT tokens")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncOnceCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withRuntime(ctx context.Context, run func(context.Context, *runtime) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return err
	}
	defer logger.Sync() //nolint:errcheck

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer rt.Close()
	return run(ctx, rt)
}

func serve(ctx context.Context, rt *runtime) error {
	cfg, logger := rt.cfg, rt.logger

	stopNotifications := worker.StartNotificationWorker(rt.notifications)
	defer stopNotifications()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, rt.metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, rt.store, rt.metrics, map[string]handlers.Pinger{
			"postgres": rt.postgres,
			"redis":    rt.redis,
		}),
		Issues:         handlers.NewIssuesHandler(rt.query, rt.mutations),
		Departments:    handlers.NewDepartmentsHandler(rt.query, rt.departments),
		AuthMiddleware: auth.NewAuthMiddleware(rt.tokens),
	})
	if rt.tokens == nil {
		logger.Warn("AUTH_JWT_SECRET not set; API is unauthenticated")
	}

	if err := rt.poller.Start(ctx, cfg.Poller.Interval()); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	var err error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-listenErr:
		logger.Error("fiber listen", zap.Error(err))
	}

	rt.poller.Stop()
	if shutdownErr := app.ShutdownWithTimeout(10 * time.Second); shutdownErr != nil {
		logger.Warn("http shutdown", zap.Error(shutdownErr))
	}
	return err
}

type snapshotOutput struct {
	Version     uint64                   `json:"version"`
	Issues      []dto.IssueResponse      `json:"issues"`
	Departments []dto.DepartmentResponse `json:"departments"`
}

func syncOnce(ctx context.Context, rt *runtime, cmd *cobra.Command) error {
	report, err := rt.poller.RunOnce(ctx)
	rt.flags.Stop()
	if err != nil {
		return err
	}
	rt.logger.Info("sync complete",
		zap.String("cycle_id", report.CycleID),
		zap.Int("fetched", report.Fetched),
		zap.Duration("duration", report.Duration))

	snap := rt.store.Snapshot()
	out := snapshotOutput{
		Version:     snap.Version,
		Issues:      dto.NewIssueList(snap.Issues),
		Departments: make([]dto.DepartmentResponse, 0, len(snap.Departments)),
	}
	for _, d := range snap.Departments {
		out.Departments = append(out.Departments, dto.NewDepartmentResponse(d))
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
