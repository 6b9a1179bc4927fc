package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/medtune/internal/dataset"
	"github.com/samcharles93/medtune/internal/logger"
)

func subsetsCmd() *cli.Command {
	var (
		input  string
		outDir string
		sizes  []string
		seed   int64
	)

	return &cli.Command{
		Name:  "subsets",
		Usage: "Write nested training subsets (train_<name>.json) for data-scale experiments",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "training examples; default <data>/processed/train.json",
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "out-dir",
				Aliases:     []string{"o"},
				Usage:       "output directory; default <data>/processed",
				Destination: &outDir,
			},
			&cli.StringSliceFlag{
				Name:        "size",
				Usage:       "subset as name=count (repeatable)",
				Value:       []string{"1k=1000", "5k=5000", "10k=10000"},
				Destination: &sizes,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Value:       42,
				Destination: &seed,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applySeedConfig(c, cfg, &seed)

			parsed, err := parseSizes(sizes)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			input = resolveDataPath(input, cfg, filepath.Join("processed", "train.json"))
			outDir = resolveDataPath(outDir, cfg, "processed")

			examples, err := dataset.LoadExamples(input)
			if err != nil {
				return cli.Exit(fmt.Sprintf("load examples: %v", err), 1)
			}
			log.Info("training pool loaded", "path", input, "examples", len(examples))

			subsets, missing := dataset.Subsets(examples, uint64(seed), parsed)
			for _, m := range missing {
				log.Warn("not enough examples for subset", "name", m.Name, "need", m.Size, "have", len(examples))
			}
			for _, s := range subsets {
				path := filepath.Join(outDir, "train_"+s.Name+".json")
				if err := dataset.SaveExamples(path, s.Examples); err != nil {
					return cli.Exit(fmt.Sprintf("write %s: %v", path, err), 1)
				}
				log.Info("subset written", "name", s.Name, "examples", s.Size, "path", path)
			}
			return nil
		},
	}
}

// parseSizes turns name=count pairs into a map. A bare count names itself.
func parseSizes(values []string) (map[string]int, error) {
	out := make(map[string]int, len(values))
	for _, v := range values {
		name, count, ok := strings.Cut(v, "=")
		if !ok {
			count = name
		}
		name = strings.TrimSpace(name)
		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil || n <= 0 || name == "" {
			return nil, fmt.Errorf("invalid subset size %q (want name=count)", v)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("duplicate subset name %q", name)
		}
		out[name] = n
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one --size is required")
	}
	return out, nil
}
