package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/medtune/internal/config"
	"github.com/samcharles93/medtune/internal/dataset"
	"github.com/samcharles93/medtune/internal/logger"
	"github.com/samcharles93/medtune/internal/sft"
	"github.com/samcharles93/medtune/internal/version"
)

const defaultMaxLength = 512

// encodeManifest is written next to every encoded split.
type encodeManifest struct {
	RunID     string         `json:"run_id"`
	CreatedAt time.Time      `json:"created_at"`
	Version   string         `json:"version"`
	Split     string         `json:"split"`
	Input     string         `json:"input"`
	Output    string         `json:"output"`
	Format    string         `json:"format"`
	Tokenizer string         `json:"tokenizer"`
	MaxLength int            `json:"max_length"`
	PadID     int            `json:"pad_token_id"`
	EndMarker string         `json:"end_marker"`
	Policy    string         `json:"policy"`
	Report    sft.Report     `json:"report"`
	Training  *config.Config `json:"training_config,omitempty"`
}

type encodeJob struct {
	split string
	input string
}

func encodeCmd() *cli.Command {
	var (
		tok        tokenizerOptions
		settings   encodeSettings
		input      string
		outDir     string
		format     string
		configPath string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "examples to encode; default: train and validation files of --config",
			Destination: &input,
		},
		&cli.StringFlag{
			Name:        "out-dir",
			Aliases:     []string{"o"},
			Usage:       "output directory; default <data>/encoded",
			Destination: &outDir,
		},
		&cli.StringFlag{
			Name:        "format",
			Usage:       "output format (safetensors, jsonl)",
			Value:       "safetensors",
			Destination: &format,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "training config yaml (data_config supplies files and max_length)",
			Destination: &configPath,
		},
	}
	flags = append(flags, tokenizerFlags(&tok)...)
	flags = append(flags, encodeFlags(&settings)...)

	return &cli.Command{
		Name:  "encode",
		Usage: "Tokenise examples into fixed-length input_ids/labels/attention_mask rows",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyTokenizerConfig(c, cfg, &tok)
			applyEncodeConfig(c, cfg, &settings)

			format = strings.ToLower(strings.TrimSpace(format))
			if format != "safetensors" && format != "jsonl" {
				return cli.Exit(fmt.Sprintf("unknown format %q (want safetensors or jsonl)", format), 1)
			}

			var training *config.Config
			if configPath != "" {
				tc, err := config.Load(configPath)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				training = tc
				if !c.IsSet("max-length") {
					settings.maxLength = int64(tc.Data.MaxLength)
				}
			}
			if settings.maxLength <= 0 {
				settings.maxLength = defaultMaxLength
			}

			var jobs []encodeJob
			switch {
			case input != "":
				jobs = append(jobs, encodeJob{split: strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)), input: input})
			case training != nil:
				jobs = append(jobs,
					encodeJob{split: "train", input: training.Data.TrainFile},
					encodeJob{split: "validation", input: training.Data.ValidationFile},
				)
			default:
				return cli.Exit("--input or --config is required", 1)
			}

			policy, err := sft.ParsePolicy(settings.policy)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if settings.strict {
				policy = sft.PolicyAbort
			}

			hf, err := loadTokenizer(log, tok)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			opts := sft.OptionsFor(hf, int(settings.maxLength))
			if tok.padID >= 0 {
				opts.PadID = int(tok.padID)
			}
			enc, err := sft.New(hf, opts)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			outDir = resolveDataPath(outDir, cfg, "encoded")
			tokPath, _, _ := resolveTokenizerPaths(tok)
			runID := uuid.NewString()
			for _, job := range jobs {
				m := encodeManifest{
					RunID:     runID,
					CreatedAt: time.Now().UTC(),
					Version:   version.String(),
					Split:     job.split,
					Input:     job.input,
					Format:    format,
					Tokenizer: tokPath,
					MaxLength: opts.MaxLength,
					PadID:     opts.PadID,
					EndMarker: opts.EndMarker,
					Policy:    policy.String(),
					Training:  training,
				}
				if err := runEncodeJob(ctx, enc, job, outDir, sft.BatchOptions{Policy: policy, Workers: int(settings.workers)}, &m); err != nil {
					var exErr *sft.ExampleError
					if errors.As(err, &exErr) {
						return cli.Exit(fmt.Sprintf("%s: %v", job.input, err), 1)
					}
					return err
				}
			}
			return nil
		},
	}
}

func runEncodeJob(ctx context.Context, enc *sft.Encoder, job encodeJob, outDir string, opts sft.BatchOptions, m *encodeManifest) error {
	log := logger.FromContext(ctx).With("split", job.split)

	examples, err := dataset.LoadExamples(job.input)
	if err != nil {
		return fmt.Errorf("load examples: %w", err)
	}
	start := time.Now()
	batch, report, err := enc.EncodeBatch(logger.WithContext(ctx, log), examples, opts)
	if err != nil {
		return err
	}
	m.Report = report

	ext := ".safetensors"
	if m.Format == "jsonl" {
		ext = ".jsonl"
	}
	m.Output = filepath.Join(outDir, job.split+ext)
	if m.Format == "jsonl" {
		err = writeJSONL(m.Output, batch)
	} else {
		err = batch.WriteSafetensors(m.Output, enc.Options(), map[string]string{
			"run_id": m.RunID,
			"split":  job.split,
		})
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", m.Output, err)
	}
	if err := writeManifest(filepath.Join(outDir, job.split+".manifest.json"), m); err != nil {
		return err
	}

	log.Info("split encoded",
		"rows", batch.Len(),
		"total", report.Total,
		"malformed", report.Malformed,
		"truncation_loss", report.TruncationLoss,
		"partially_truncated", report.PartiallyTruncated,
		"trainable_tokens", report.TrainableTokens,
		"output", m.Output,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

type jsonlRow struct {
	SourceIndex   int    `json:"source_index"`
	InputIDs      []int  `json:"input_ids"`
	Labels        []int  `json:"labels"`
	AttentionMask []bool `json:"attention_mask"`
}

func writeJSONL(path string, batch *sft.Batch) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range batch.Len() {
		row := batch.Row(i)
		if err := enc.Encode(jsonlRow{
			SourceIndex:   batch.SourceIndex[i],
			InputIDs:      row.InputIDs,
			Labels:        row.Labels,
			AttentionMask: row.AttentionMask,
		}); err != nil {
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

func writeManifest(path string, m *encodeManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
