package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unicode/utf8"

	"github.com/jjenkins/sorteio/internal/logging"
	"github.com/jjenkins/sorteio/internal/service"
	"github.com/jjenkins/sorteio/internal/store"
	"github.com/spf13/cobra"
)

var importDelimiter string

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Load registrants from a CSV file",
	Long: `Import reads a CSV file with the columns cpf,nome[,observacao] and inserts
every registrant whose CPF has no active record yet. Existing records are
left untouched, so re-running an import is safe.

Examples:
  # Import a comma separated file
  ./sorteio import servidores.csv

  # Import a semicolon separated export
  ./sorteio import --delimiter ';' servidores.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVarP(&importDelimiter, "delimiter", "d", ",", "Field delimiter")
}

func runImport(cmd *cobra.Command, args []string) error {
	if utf8.RuneCountInString(importDelimiter) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", importDelimiter)
	}
	comma, _ := utf8.DecodeRuneInString(importDelimiter)

	logger := logging.Task(appLogger, "import")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	logger.Info("Connecting to database...")
	db, err := store.NewDB(ctx, cfg.Database.URL(), store.PoolConfig{MaxOpenConns: 2})
	if err != nil {
		return err
	}
	defer db.Close()

	registrants := store.NewPostgresStore(db, cfg.Database.Table)
	importer := service.NewImporter(service.NewParser(comma), registrants, logger)

	logger.Info("Starting import", "file", args[0])
	stats, err := importer.Import(ctx, f)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("Import cancelled")
		}
		if stats != nil {
			importer.PrintSummary(stats)
		}
		return err
	}
	importer.PrintSummary(stats)

	if stats.Failed > 0 {
		return fmt.Errorf("%d rows failed", stats.Failed)
	}
	return nil
}
