package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/medtune/internal/dataset"
	"github.com/samcharles93/medtune/internal/logger"
)

func prepareCmd() *cli.Command {
	var (
		input       string
		outDir      string
		instruction string
		seed        int64
		minLength   int64
		maxLength   int64
		maxSamples  int64
		trainRatio  float64
		devRatio    float64
	)

	return &cli.Command{
		Name:  "prepare",
		Usage: "Normalise raw QA records, clean them and write train/dev/test splits",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "raw records (JSON array or JSON Lines); default <data>/raw/medical_qa.json",
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "out-dir",
				Aliases:     []string{"o"},
				Usage:       "output directory; default <data>/processed",
				Destination: &outDir,
			},
			&cli.StringFlag{
				Name:        "instruction",
				Usage:       "instruction for records that carry none",
				Value:       dataset.DefaultInstruction,
				Destination: &instruction,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Value:       42,
				Destination: &seed,
			},
			&cli.Int64Flag{
				Name:        "min-length",
				Usage:       "minimum input/output length in characters",
				Value:       10,
				Destination: &minLength,
			},
			&cli.Int64Flag{
				Name:        "max-length",
				Usage:       "maximum input/output length in characters",
				Value:       512,
				Destination: &maxLength,
			},
			&cli.Int64Flag{
				Name:        "max-samples",
				Usage:       "cap the cleaned pool before splitting (0 = no cap)",
				Destination: &maxSamples,
			},
			&cli.Float64Flag{
				Name:        "train-ratio",
				Value:       0.8,
				Destination: &trainRatio,
			},
			&cli.Float64Flag{
				Name:        "dev-ratio",
				Value:       0.1,
				Destination: &devRatio,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applySeedConfig(c, cfg, &seed)

			if trainRatio <= 0 || devRatio < 0 || trainRatio+devRatio > 1 {
				return cli.Exit(fmt.Sprintf("invalid split ratios: train %.2f dev %.2f", trainRatio, devRatio), 1)
			}
			input = resolveDataPath(input, cfg, filepath.Join("raw", "medical_qa.json"))
			outDir = resolveDataPath(outDir, cfg, "processed")

			records, err := dataset.LoadRecords(input)
			if err != nil {
				return cli.Exit(fmt.Sprintf("load records: %v", err), 1)
			}
			examples, kinds := dataset.Normalize(records, instruction)
			log.Info("records normalised",
				"records", len(records),
				"examples", len(examples),
				"instruction", kinds[dataset.KindInstruction],
				"question_answer", kinds[dataset.KindQuestionAnswer],
				"query_response", kinds[dataset.KindQueryResponse],
				"unknown", kinds[dataset.KindUnknown],
			)

			cleaned, stats := dataset.Clean(examples, dataset.CleanOptions{
				MinLength: int(minLength),
				MaxLength: int(maxLength),
			})
			log.Info("examples cleaned",
				"kept", stats.Kept,
				"malformed", stats.Malformed,
				"too_short", stats.TooShort,
				"too_long", stats.TooLong,
			)
			if len(cleaned) == 0 {
				return cli.Exit("no examples left after cleaning", 1)
			}
			if maxSamples > 0 && len(cleaned) > int(maxSamples) {
				cleaned = dataset.Sample(cleaned, uint64(seed), int(maxSamples))
				log.Info("examples capped", "max_samples", maxSamples)
			}

			splits := dataset.Split(cleaned, uint64(seed), trainRatio, devRatio)
			for _, part := range []struct {
				name     string
				examples []dataset.Example
			}{
				{"train.json", splits.Train},
				{"dev.json", splits.Dev},
				{"test.json", splits.Test},
			} {
				path := filepath.Join(outDir, part.name)
				if err := dataset.SaveExamples(path, part.examples); err != nil {
					return cli.Exit(fmt.Sprintf("write %s: %v", path, err), 1)
				}
				log.Info("split written", "path", path, "examples", len(part.examples))
			}
			return nil
		},
	}
}
