package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"flowmarket/internal/api"
	"flowmarket/internal/auth"
	"flowmarket/internal/codestore"
	"flowmarket/internal/config"
	"flowmarket/internal/hub"
	"flowmarket/internal/ledger"
	"flowmarket/internal/logging"
	"flowmarket/internal/mcp"
	"flowmarket/internal/repository"
	"flowmarket/internal/scheduler"
	srvtls "flowmarket/internal/tls"
	"flowmarket/pkg/models"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowmarket",
		Short: "Registry, ledger, and marketplace for pluggable workflow units",
	}
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the flowmarket service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	// Initialize logging
	logger := logging.NewLogger()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"okta_domain", cfg.Auth.OktaDomain,
		"fee_percent", cfg.Market.FeePercent,
		"config_file", viper.ConfigFileUsed(),
	)

	logger.Info("Starting Flowmarket Service")

	// Initialize persistence mirror (optional)
	var store repository.Store
	var dbPool *pgxpool.Pool
	if cfg.DB.Enable {
		dbPool, err = initDatabase(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize database", "error", err)
			return fmt.Errorf("database initialization failed: %w", err)
		}
		defer dbPool.Close()
		store = repository.NewPostgresStore(dbPool)
		logger.Info("Database connected")
	} else {
		logger.Warn("Persistence mirror disabled; ledger state is in-memory only")
	}

	// Fee policy
	feePercent, err := decimal.NewFromString(cfg.Market.FeePercent)
	if err != nil {
		return fmt.Errorf("invalid market.fee_percent: %w", err)
	}
	floor := decimal.Zero
	if cfg.Market.LowBalanceFloor != "" {
		floor, err = decimal.NewFromString(cfg.Market.LowBalanceFloor)
		if err != nil {
			return fmt.Errorf("invalid market.low_balance_floor: %w", err)
		}
	}

	// Initialize the hub
	h, err := hub.New(hub.Config{
		Fees: ledger.FeePolicy{
			Percent:   feePercent,
			Collector: models.AccountID(cfg.Market.FeeCollector),
		},
		Code:            codestore.NewDirStore(cfg.CodeStore.Dir),
		Store:           store,
		Logger:          logger,
		Events:          eventLogger(logger),
		LowBalanceFloor: floor,
	})
	if err != nil {
		return fmt.Errorf("hub initialization failed: %w", err)
	}
	logger.Info("Ledger hub initialized")

	// Scheduler for recurring runs
	sched := scheduler.New(h, logger)
	h.SetDetach(sched.Detach)
	sched.Start()
	defer sched.Stop()
	logger.Info("Scheduler started")

	// Create Echo server
	e := echo.New()
	e.HTTPErrorHandler = api.ProblemHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("flowmarket"))

	// Initialize authentication
	authz, err := auth.New(ctx, cfg, h, logger)
	if err != nil {
		logger.Error("failed to initialize auth", "error", err)
		return fmt.Errorf("auth initialization failed: %w", err)
	}

	// Register auth handlers
	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))
	e.GET("/health", echo.WrapHandler(http.HandlerFunc(api.HandleHealth)))

	// Mount REST API handlers behind auth
	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	api.NewServer(h, sched).RegisterRoutes(apiGroup)

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	if cfg.MCP.Enable {
		agent := models.AccountID(cfg.MCP.AgentAccount)
		h.EnsureAccount(agent)
		mcpServer := mcp.NewServer(h, agent)
		e.Any("/mcp/*", echo.WrapHandler(mcpServer.Handler()))
		logger.Info("MCP protocol handlers mounted", "agent_account", agent)
	}

	// Create HTTP server
	addr := ":8080"
	if cfg.TLS.Enable {
		// use TLS port 8443
		addr = ":8443"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			// ensure certificate exists if requested
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			// generate if missing and hostnames provided
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.TLS.Hostnames) > 0 {
					if err := srvtls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
						logger.Error("failed to generate self-signed cert", "error", err)
					}
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig)

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
	return nil
}

// eventLogger surfaces ledger events on the application log.
func eventLogger(logger *logging.Logger) ledger.Sink {
	return ledger.SinkFunc(func(event ledger.Event) {
		logger.Info("ledger event", "event", event.EventName(), "detail", fmt.Sprintf("%+v", event))
	})
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure mirror tables exist
	if _, err := pool.Exec(ctx, repository.Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create mirror tables: %w", err)
	}

	return pool, nil
}
