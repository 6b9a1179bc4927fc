package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/medtune/internal/dataset"
	"github.com/samcharles93/medtune/internal/logger"
	"github.com/samcharles93/medtune/internal/prompt"
)

func promptsCmd() *cli.Command {
	var (
		input      string
		output     string
		maxSamples int64
	)

	return &cli.Command{
		Name:  "prompts",
		Usage: "Write generation requests ({id, prompt} per line) for an external engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "examples; default <data>/processed/test.json",
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "JSON Lines output; default <data>/prompts/<input name>.jsonl",
				Destination: &output,
			},
			&cli.Int64Flag{
				Name:        "max-samples",
				Usage:       "only the first N examples (0 = all)",
				Destination: &maxSamples,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			input = resolveDataPath(input, cfg, filepath.Join("processed", "test.json"))
			if output == "" {
				base := filepath.Base(input)
				output = resolveDataPath("", cfg, filepath.Join("prompts", base[:len(base)-len(filepath.Ext(base))]+".jsonl"))
			}

			examples, err := dataset.LoadExamples(input)
			if err != nil {
				return cli.Exit(fmt.Sprintf("load examples: %v", err), 1)
			}
			if maxSamples > 0 && len(examples) > int(maxSamples) {
				examples = examples[:maxSamples]
			}
			requests := prompt.BuildRequests(examples)
			if err := writeRequests(output, requests); err != nil {
				return cli.Exit(fmt.Sprintf("write %s: %v", output, err), 1)
			}
			log.Info("prompts written", "path", output, "requests", len(requests))
			return nil
		},
	}
}

func writeRequests(path string, requests []prompt.Request) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range requests {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
