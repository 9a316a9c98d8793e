package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/iamkuldeepprovana/kmschatbot/db"
	"github.com/iamkuldeepprovana/kmschatbot/internal/api"
	"github.com/iamkuldeepprovana/kmschatbot/internal/chat"
	"github.com/iamkuldeepprovana/kmschatbot/internal/chat/mongostore"
	"github.com/iamkuldeepprovana/kmschatbot/internal/chat/pgstore"
	"github.com/iamkuldeepprovana/kmschatbot/internal/config"
	"github.com/iamkuldeepprovana/kmschatbot/internal/log"
	"github.com/iamkuldeepprovana/kmschatbot/internal/retrieve"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 5 * time.Minute // the retrieval proxy waits on a slow upstream
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second

	connectTimeout = 30 * time.Second
)

// PostgreSQL connection pool sizing.
const (
	pgMaxConns = 10
	pgMinConns = 2
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes the session store and starts the HTTP server.
func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		JSON:      cfg.LogJSON,
		AddSource: cfg.IsDev(),
	})
	logger.Info("starting server", "version", Version, "config", cfg)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, pinger, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer closeStore()

	service := chat.NewService(store, cfg.StoreTimeout(), logger)
	retriever := retrieve.NewClient(cfg.RetrieveURL, cfg.RetrieveTimeout(), logger)

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Service:     service,
		Retriever:   retriever,
		Pinger:      pinger,
		ClientName:  cfg.RetrieveClientName,
		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Addr(),
		"store_driver", cfg.StoreDriver,
		"api", "/api/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// openStore builds the session store backend selected by the config.
// The returned cleanup func releases the backend's connections.
func openStore(ctx context.Context, cfg *config.Config, logger log.Logger) (chat.Store, api.Pinger, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		store, disconnect, err := mongostore.Connect(connectCtx, cfg.MongoURI, cfg.MongoDBName, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to MongoDB: %w", err)
		}
		cleanup := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := disconnect(disconnectCtx); err != nil {
				logger.Warn("MongoDB disconnect error", "error", err)
			}
		}
		return store, store, cleanup, nil

	case config.DriverPostgres:
		if err := db.Migrate(cfg.PostgresURL()); err != nil {
			return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}

		poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parsing PostgreSQL config: %w", err)
		}
		poolCfg.MaxConns = pgMaxConns
		poolCfg.MinConns = pgMinConns

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating PostgreSQL pool: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("pinging PostgreSQL: %w", err)
		}

		store := pgstore.New(pool, logger)
		return store, store, pool.Close, nil

	default:
		// Load validates the driver; this is unreachable through Execute.
		return nil, nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidStoreDriver, cfg.StoreDriver)
	}
}
