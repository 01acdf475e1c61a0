package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jjenkins/sorteio/internal/config"
	"github.com/jjenkins/sorteio/internal/logging"
	"github.com/spf13/cobra"
)

var envFile string

var (
	cfg       config.Config
	appLogger *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "sorteio",
	Short: "Validate registrants and draw one at random",
	Long: `sorteio serves the registrant API: validate people by CPF, draw one
validated registrant at random and reset the draw state.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}

		appLogger, logCloser, err = logging.New(os.Stdout, logging.Options{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			Dir:        cfg.Log.Dir,
			RotationMB: cfg.Log.RotationMB,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run executes the command tree and releases the log file even when the
// command fails.
func run() error {
	defer closeLogger()
	return rootCmd.Execute()
}

func closeLogger() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the environment")
}
