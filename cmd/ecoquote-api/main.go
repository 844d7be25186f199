package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecoquote/internal/api"
	"ecoquote/internal/auth"
	"ecoquote/internal/config"
	"ecoquote/internal/db"
	"ecoquote/internal/jobs"
	"ecoquote/internal/mail"
	"ecoquote/internal/metrics"
	"ecoquote/internal/model"
	"ecoquote/internal/pubsub"
	"ecoquote/internal/quickbooks"
	"ecoquote/internal/schema"
	"ecoquote/internal/service"
	"ecoquote/internal/storage"
	"ecoquote/internal/ws"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := &cobra.Command{
		Use:           "ecoquote-api",
		Short:         "Quotation and permit workflow backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, args []string) error { return serve() },
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE:  func(cmd *cobra.Command, args []string) error { return serve() },
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			return db.Migrate(cfg.DatabaseURL)
		},
	})

	root.AddCommand(createStaffCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func createStaffCmd() *cobra.Command {
	var input service.CreateStaffInput
	var role string

	cmd := &cobra.Command{
		Use:   "create-staff",
		Short: "Create a staff account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if input.Password == "" {
				input.Password = os.Getenv("ECOQUOTE_STAFF_PASSWORD")
			}
			input.Role = model.Role(role)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := service.NewStaffService(pool.Queries, auth.NewJWTConfig(cfg.JWTSecret), schema.NewCompilerWithCache(8), logger)
			staff, err := svc.CreateStaff(ctx, input)
			if err != nil {
				return err
			}
			fmt.Printf("created %s (%s) with role %s\n", staff.Email, staff.ID, staff.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&input.Email, "email", "", "Login email")
	cmd.Flags().StringVar(&role, "role", string(model.RoleEmployee), "manager, admin or employee")
	cmd.Flags().StringVar(&input.Password, "password", "", "Password (or ECOQUOTE_STAFF_PASSWORD)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("email")
	return cmd
}

func serve() error {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	metrics.Register()

	ctx := context.Background()

	// Database connection
	dbPool, err := db.NewPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	// Redis connection
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Pub/sub bus and WebSocket hub
	bus := pubsub.New(rdb, logger)
	hub := ws.NewHub(logger)
	hub.SetReplayer(bus.GetStreams())
	go hub.Run()
	defer hub.Close()
	bus.SetWSHub(hub)

	artifacts, err := storage.NewLocalStorage(cfg.StorageBaseDir)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	// Services
	schemaComp := schema.NewCompilerWithCache(64)
	jwtCfg := auth.NewJWTConfig(cfg.JWTSecret)
	quotations := service.NewQuotationService(dbPool.Queries, schemaComp, auth.NewResponseSigner(cfg.ResponseTokenSecret), bus, service.QuotationConfig{
		TokenTTL:      cfg.ResponseTokenTTL,
		PublicBaseURL: cfg.PublicBaseURL,
		CompanyName:   cfg.CompanyName,
	}, logger)
	quotations.SetArtifacts(artifacts)
	if cfg.QuickBooks.Enabled() {
		quotations.SetEstimator(quickbooks.New(ctx, cfg.QuickBooks))
		logger.Info("QuickBooks integration enabled", zap.String("realm_id", cfg.QuickBooks.RealmID))
	}

	// Background jobs
	jobServer, jobClient := jobs.NewJobServer(cfg.RedisAddr, dbPool.Queries, bus, logger)
	jobServer.SetMailer(mail.New(cfg.SMTP, logger), cfg.CompanyName)
	jobServer.SetEstimateSyncer(quotations)
	go func() {
		if err := jobServer.Start(); err != nil {
			logger.Fatal("Job server failed", zap.Error(err))
		}
	}()
	defer jobServer.Stop()
	quotations.SetJobClient(service.NewAsynqJobClient(jobClient))

	handler := api.Handler(api.Dependencies{
		Quotations: quotations,
		Catalog:    service.NewCatalogService(dbPool.Queries, schemaComp, logger),
		Staff:      service.NewStaffService(dbPool.Queries, jwtCfg, schemaComp, logger),
		JWT:        jwtCfg,
		Hub:        hub,
		Log:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting server", zap.String("addr", cfg.Addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}
