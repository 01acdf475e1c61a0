package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jjenkins/sorteio/internal/logging"
	"github.com/jjenkins/sorteio/internal/metrics"
	"github.com/jjenkins/sorteio/internal/server"
	"github.com/jjenkins/sorteio/internal/store"
	"github.com/spf13/cobra"
)

var port int
var inMemory bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the registrant API server",
	Long:  `Start the HTTP API that validates registrants and runs the draw.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to run the server on (overrides PORT)")
	serveCmd.Flags().BoolVar(&inMemory, "in-memory", false, "Keep registrants in memory instead of PostgreSQL")
}

func runServe(cmd *cobra.Command, args []string) error {
	if port != 0 {
		cfg.App.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Lifespan(appLogger, cfg.App.Title(), false)
	defer logging.Lifespan(appLogger, cfg.App.Title(), true)

	var registrants store.Store
	if inMemory {
		appLogger.Warn("Using in-memory store; state is lost on exit")
		registrants = store.NewMemoryStore()
	} else {
		dbLogger := logging.Task(appLogger, "database")
		dbLogger.Debug("Creating database connection pool...")

		db, err := store.NewDB(ctx, cfg.Database.URL(), store.PoolConfig{
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			dbLogger.Error("Database connection failed", "error", err)
			return err
		}
		defer db.Close()
		dbLogger.Info("Database connection tested successfully", "table", cfg.Database.Table)

		registrants = store.NewPostgresStore(db, cfg.Database.Table)
	}

	app := server.New(server.Deps{
		Config:       cfg.App,
		Store:        registrants,
		Metrics:      metrics.New(),
		Logger:       appLogger,
		QueryTimeout: cfg.Database.QueryTimeout,
		AccessLog:    os.Stdout,
	})

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("Starting server", "addr", cfg.App.Addr(), "mode", cfg.App.Mode)
		errCh <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			appLogger.Error("Failed to start server", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
