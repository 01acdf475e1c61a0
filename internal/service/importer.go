package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jjenkins/sorteio/internal/store"
)

// batchSize is the number of registrants sent to the store per transaction.
const batchSize = 500

// ImportStats tracks import statistics
type ImportStats struct {
	Total    int
	Imported int
	Skipped  int
	Failed   int
}

// Importer loads registrant CSV files into a store
type Importer struct {
	parser *Parser
	store  store.Store
	logger *slog.Logger
}

// NewImporter creates a new Importer
func NewImporter(parser *Parser, s store.Store, logger *slog.Logger) *Importer {
	return &Importer{
		parser: parser,
		store:  s,
		logger: logger,
	}
}

// Import parses r and inserts registrants not already active in the store.
// Invalid rows are counted as failed and reported, not fatal.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportStats, error) {
	parsed, err := i.parser.Parse(r)
	if err != nil {
		return nil, err
	}

	stats := &ImportStats{
		Total:  len(parsed.Registrants) + len(parsed.Invalid),
		Failed: len(parsed.Invalid),
	}
	for _, rowErr := range parsed.Invalid {
		i.logger.Warn("Skipping invalid row", "line", rowErr.Line, "reason", rowErr.Reason)
	}

	for start := 0; start < len(parsed.Registrants); start += batchSize {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		end := min(start+batchSize, len(parsed.Registrants))
		batch := parsed.Registrants[start:end]

		inserted, err := i.store.Import(ctx, batch)
		if err != nil {
			return stats, fmt.Errorf("failed to import rows %d-%d: %w", start+1, end, err)
		}
		stats.Imported += inserted
		stats.Skipped += len(batch) - inserted

		i.logger.Info("Imported batch", "progress", fmt.Sprintf("[%d/%d]", end, len(parsed.Registrants)), "inserted", inserted)
	}

	return stats, nil
}

// PrintSummary logs the outcome of an import
func (i *Importer) PrintSummary(stats *ImportStats) {
	i.logger.Info("=== Import Summary ===")
	i.logger.Info(fmt.Sprintf("Total rows:      %d", stats.Total))
	i.logger.Info(fmt.Sprintf("Imported:        %d", stats.Imported))
	i.logger.Info(fmt.Sprintf("Skipped:         %d (already registered)", stats.Skipped))
	i.logger.Info(fmt.Sprintf("Failed:          %d", stats.Failed))
}
