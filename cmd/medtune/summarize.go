package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/medtune/internal/logger"
	"github.com/samcharles93/medtune/internal/report"
)

func summarizeCmd() *cli.Command {
	var (
		manifestPath string
		outDir       string
		noPlot       bool
	)

	return &cli.Command{
		Name:  "summarize",
		Usage: "Collect eval_results.json across experiments into a CSV, a table and a chart",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "manifest",
				Usage:       "experiments yaml (default: Baseline, LoRA and QLoRA at 1k/5k/10k under ./outputs)",
				Destination: &manifestPath,
			},
			&cli.StringFlag{
				Name:        "out-dir",
				Aliases:     []string{"o"},
				Value:       filepath.Join("outputs", "summary"),
				Destination: &outDir,
			},
			&cli.BoolFlag{
				Name:        "no-plot",
				Usage:       "skip the data-scale chart",
				Destination: &noPlot,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)

			m := report.DefaultManifest()
			if manifestPath != "" {
				loaded, err := report.LoadManifest(manifestPath)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				m = loaded
			}
			rows, missing, err := report.Collect(ctx, m)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if len(rows) == 0 {
				return cli.Exit(fmt.Sprintf("no results found (%d experiments missing)", len(missing)), 1)
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			csvPath := filepath.Join(outDir, "results_summary.csv")
			if err := writeCSVFile(csvPath, rows); err != nil {
				return cli.Exit(fmt.Sprintf("write %s: %v", csvPath, err), 1)
			}
			log.Info("summary written", "path", csvPath, "experiments", len(rows), "missing", len(missing))

			if err := report.WriteTable(os.Stdout, rows); err != nil {
				return err
			}

			if noPlot {
				return nil
			}
			chart := filepath.Join(outDir, "data_scale_comparison.png")
			switch err := report.PlotScale(chart, m, rows); {
			case errors.Is(err, report.ErrNothingToPlot):
				log.Warn("chart skipped", "reason", err)
			case err != nil:
				log.Warn("chart failed", "error", err)
			default:
				log.Info("chart written", "path", chart)
			}
			return nil
		},
	}
}

func writeCSVFile(path string, rows []report.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteCSV(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
