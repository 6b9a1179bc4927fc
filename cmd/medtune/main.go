package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/medtune/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "medtune",
		Usage:  "Dataset, encoding and evaluation tooling for medical QA fine-tuning",
		Flags:  loggingFlags(),
		Before: setupLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			prepareCmd(),
			subsetsCmd(),
			encodeCmd(),
			promptsCmd(),
			evaluateCmd(),
			summarizeCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}

// setupLogging installs the logger selected by the global flags and the
// user config into the command context.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg := LoadConfig()
	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	log, err := logger.FromOptions(os.Stderr, logger.Options{
		Level:  logLevel,
		Format: logFormat,
		Debug:  debug,
		Color:  isTerminal(os.Stderr) && os.Getenv("NO_COLOR") == "",
	})
	if err != nil {
		return ctx, cli.Exit(err.Error(), 1)
	}
	return logger.WithContext(ctx, log), nil
}
