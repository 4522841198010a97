// Command edensgates runs the Eden's Gates voting portal: the local HTTP API,
// one-shot votes from the terminal, and maintenance tasks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Oshkosh1922/edens-gates/internal/app"
	"github.com/Oshkosh1922/edens-gates/internal/config"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

type globalFlags struct {
	envFile   string
	logLevel  string
	logFormat string
	jsonOut   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:          "edensgates",
		Short:        "Founder voting portal with optional on-chain vote fees",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format: text or json (overrides LOG_FORMAT)")
	root.PersistentFlags().BoolVar(&flags.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newServeCommand(flags),
		newVoteCommand(flags),
		newFoundersCommand(flags),
		newWinnersCommand(flags),
		newWalletCommand(flags),
		newReconcileCommand(flags),
		newMigrateCommand(flags),
	)
	return root
}

// load reads configuration and builds the root logger for a command.
func (f *globalFlags) load() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return nil, nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, log, nil
}

func newApplication(cmd *cobra.Command, cfg *config.Config, log *logger.Logger) (*app.Application, error) {
	return app.New(cmd.Context(), cfg, log)
}

// application loads configuration and builds the full application.
func (f *globalFlags) application(cmd *cobra.Command) (*app.Application, error) {
	cfg, log, err := f.load()
	if err != nil {
		return nil, err
	}
	return newApplication(cmd, cfg, log)
}

func (f *globalFlags) print(w io.Writer, v any, text func(io.Writer)) error {
	if f.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
