package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	cfg "github.com/sand/chat-wallet-app/backend/config"
	"github.com/sand/chat-wallet-app/backend/internal/conversation"
	"github.com/sand/chat-wallet-app/backend/internal/core/ports"
	"github.com/sand/chat-wallet-app/backend/internal/handlers"
	"github.com/sand/chat-wallet-app/backend/internal/shared"
	"github.com/sand/chat-wallet-app/backend/internal/usecases"
	"github.com/sand/chat-wallet-app/backend/internal/usecases/mocked"
	"github.com/sand/chat-wallet-app/backend/internal/usecases/repository"
	"github.com/sand/chat-wallet-app/backend/internal/workers"
	"github.com/sand/chat-wallet-app/backend/pkg/database"
)

// Server timeout constants.
const (
	readTimeoutSeconds     = 15
	writeTimeoutSeconds    = 15
	idleTimeoutSeconds     = 60
	shutdownTimeoutSeconds = 5
)

func main() {
	time.Local = time.UTC

	// Parse configuration
	config, err := cfg.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	// Setup logging
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if config.App.Debug {
		opts.Level = slog.LevelDebug
	}

	ctx := context.Background()

	migrationsPath := "./migrations"
	if workDir, err := os.Getwd(); err == nil {
		if _, err := os.Stat(filepath.Join(workDir, "migrations")); !os.IsNotExist(err) {
			migrationsPath = filepath.Join(workDir, "migrations")
		} else if _, err := os.Stat(filepath.Join(workDir, "..", "migrations")); !os.IsNotExist(err) {
			migrationsPath = filepath.Join(workDir, "..", "migrations")
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	logger.Warn("Starting application with configuration",
		"debug", config.App.Debug,
		"network", config.Blockchain.Network,
		"rpc_url", config.Blockchain.RPCURL,
		"server_port", config.HTTP.Port,
		"database_url", config.DB.DatabaseURL)

	// Connect to Database
	pg, err := database.New(config,
		database.MaxPoolSize(config.DB.PoolMax),
		database.ConnTimeout(config.DB.ConnectTimeout),
		database.HealthCheckPeriod(config.DB.HealthCheckPeriod),
		database.Isolation(pgx.ReadCommitted),
	)
	if err != nil {
		slog.Error("postgres connection failed", slog.String("error", err.Error()))
		return
	}
	defer pg.Close()

	// Run database migrations
	logger.Info("Running database migrations", "path", migrationsPath)
	if err = database.RunMigrations(logger, config.DB.DatabaseURL, migrationsPath); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		log.Fatal(err)
	}
	logger.Info("Database migrations completed successfully")

	// Create repositories
	accountsRepository := repository.NewAccountsRepository(logger, pg)
	claimsRepository := repository.NewClaimsRepository(logger, pg)
	transactionsRepository := repository.NewTransactionsRepository(logger, pg)

	// Wallet resolution and chain access
	resolver, err := usecases.NewHDWalletResolver(logger, config.Blockchain.WalletSeed,
		usecases.Network(config.Blockchain.Network), accountsRepository)
	if err != nil {
		logger.Error("Failed to create wallet resolver", "error", err)
		log.Fatal(err)
	}

	treasury, err := resolver.Treasury()
	if err != nil {
		logger.Error("Failed to derive treasury wallet", "error", err)
		log.Fatal(err)
	}

	oracle := newChainOracle(logger, config)

	// Core engine
	stalenessWindow := time.Duration(config.Engine.StalenessWindowMinutes) * time.Minute
	claimTTL := time.Duration(config.Engine.ClaimTTLHours) * time.Hour

	flows := conversation.NewStore(stalenessWindow)
	registry := usecases.NewConfirmationRegistry(logger, oracle, stalenessWindow)
	preparer := usecases.NewTransactionPreparer(logger, resolver, oracle, accountsRepository, registry)
	escrowService := usecases.NewClaimEscrowService(logger, claimsRepository, transactionsRepository,
		oracle, accountsRepository, treasury, claimTTL)

	websocketManager := handlers.NewWebSocketManager(logger)

	dispatcher := usecases.NewExecutionDispatcher(logger, resolver, oracle, escrowService,
		accountsRepository, transactionsRepository, websocketManager)
	registry.SetDispatcher(dispatcher)

	chatEngine := usecases.NewChatEngine(logger, flows, preparer, registry, resolver, oracle, accountsRepository)

	// Workers
	sweepInterval := time.Duration(config.Engine.SweepIntervalMinutes) * time.Minute
	claimSweeper := workers.NewClaimSweeper(logger, escrowService, sweepInterval)
	go func() {
		logger.Info("Starting claim sweeper worker")
		claimSweeper.Start(ctx)
	}()

	// Create handlers
	httpHandler := handlers.NewHTTPHandler(logger, chatEngine, preparer, registry,
		escrowService, dispatcher, resolver, oracle)
	wsHandler := handlers.NewWebSocketHandler(logger, websocketManager)

	// Create router
	router := mux.NewRouter()

	// Register WebSocket routes before HTTP routes
	wsHandler.RegisterRoutes(router)
	httpHandler.RegisterRoutes(router)

	// Configure CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	handler := c.Handler(router)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + config.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  readTimeoutSeconds * time.Second,
		WriteTimeout: writeTimeoutSeconds * time.Second,
		IdleTimeout:  idleTimeoutSeconds * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "address", server.Addr)
		if err = server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			log.Fatal(err)
		}
	}()

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return
	}

	logger.Info("Server exited properly")
}

// newChainOracle picks the chain adapter for the configured network. Debug
// mode runs against the in-memory ledger so flows work without a node.
func newChainOracle(logger *slog.Logger, config *cfg.Config) ports.ChainOracle {
	if shared.IsBlockchainDebugMode() {
		logger.Warn("Blockchain debug mode enabled, using in-memory chain")
		return mocked.NewChain(logger)
	}

	switch usecases.Network(config.Blockchain.Network) {
	case usecases.NetworkSolana:
		return usecases.NewSolanaOracle(logger, config.Blockchain.RPCURL)
	default:
		return usecases.NewEVMOracle(logger, config.Blockchain.RPCURL)
	}
}
