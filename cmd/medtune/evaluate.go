package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/medtune/internal/dataset"
	"github.com/samcharles93/medtune/internal/eval"
	"github.com/samcharles93/medtune/internal/logger"
)

func evaluateCmd() *cli.Command {
	var (
		input       string
		predictions string
		output      string
		maxSamples  int64
		samples     int64
		showSamples int64
		workers     int64
		segmenter   string
	)

	return &cli.Command{
		Name:  "evaluate",
		Usage: "Score generated answers with ROUGE, BLEU and length statistics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "reference examples; default <data>/processed/test.json",
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "predictions",
				Aliases:     []string{"p"},
				Usage:       `engine output {"<id>": {"input", "output"}}`,
				Required:    true,
				Destination: &predictions,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "results file (eval_results.json); not written when empty",
				Destination: &output,
			},
			&cli.Int64Flag{
				Name:        "max-samples",
				Usage:       "only the first N examples (0 = all)",
				Destination: &maxSamples,
			},
			&cli.Int64Flag{
				Name:        "samples",
				Usage:       "pairs copied into the results file",
				Value:       eval.DefaultSamples,
				Destination: &samples,
			},
			&cli.Int64Flag{
				Name:        "show-samples",
				Usage:       "pairs printed after the scores",
				Value:       3,
				Destination: &showSamples,
			},
			&cli.Int64Flag{
				Name:        "workers",
				Usage:       "parallel scoring workers (0 = GOMAXPROCS)",
				Destination: &workers,
			},
			&cli.StringFlag{
				Name:        "segmenter",
				Usage:       "metric tokenisation: words (dictionary) or chars (one token per Han character)",
				Value:       eval.SegmenterWords,
				Destination: &segmenter,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			input = resolveDataPath(input, cfg, filepath.Join("processed", "test.json"))

			examples, err := dataset.LoadExamples(input)
			if err != nil {
				return cli.Exit(fmt.Sprintf("load examples: %v", err), 1)
			}
			if maxSamples > 0 && len(examples) > int(maxSamples) {
				examples = examples[:maxSamples]
			}
			preds, err := eval.LoadPredictions(predictions)
			if err != nil {
				return cli.Exit(fmt.Sprintf("load predictions: %v", err), 1)
			}
			pairs, err := eval.Align(examples, preds)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log.Info("pairs aligned", "examples", len(examples), "predictions", len(preds))

			segment, err := eval.ParseSegmenter(segmenter)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			ev := eval.NewEvaluator()
			ev.Segment = segment
			ev.Samples = int(samples)
			ev.Workers = int(workers)
			res, err := ev.Evaluate(ctx, pairs)
			if err != nil {
				return err
			}
			if err := eval.WriteSummary(os.Stdout, res); err != nil {
				return err
			}
			printSamples(pairs, int(showSamples))

			if output != "" {
				if err := eval.WriteResults(output, res); err != nil {
					return cli.Exit(fmt.Sprintf("write results: %v", err), 1)
				}
				log.Info("results written", "path", output)
			}
			return nil
		},
	}
}

func printSamples(pairs []eval.Pair, n int) {
	for i := range min(n, len(pairs)) {
		p := pairs[i]
		fmt.Printf("\n[%s]\nreference:  %s\nprediction: %s\n", p.ID, clip(p.Reference, 100), clip(p.Prediction, 100))
	}
}

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
