package main

import "github.com/urfave/cli/v3"

var (
	logLevel  string
	logFormat string
	debug     bool
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// tokenizerOptions locates tokenizer.json and tokenizer_config.json either
// inside a model directory or as explicit overrides.
type tokenizerOptions struct {
	modelDir   string
	jsonPath   string
	configPath string
	padID      int64
}

func tokenizerFlags(o *tokenizerOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model-dir",
			Usage:       "directory holding tokenizer.json and tokenizer_config.json",
			Destination: &o.modelDir,
		},
		&cli.StringFlag{
			Name:        "tokenizer-json",
			Usage:       "override path to tokenizer.json",
			Destination: &o.jsonPath,
		},
		&cli.StringFlag{
			Name:        "tokenizer-config",
			Usage:       "override path to tokenizer_config.json",
			Destination: &o.configPath,
		},
		&cli.Int64Flag{
			Name:        "pad-id",
			Usage:       "override the pad token id (default: tokenizer pad, else eos)",
			Value:       -1,
			Destination: &o.padID,
		},
	}
}

// encodeSettings are shared by encode and serve.
type encodeSettings struct {
	maxLength int64
	policy    string
	strict    bool
	workers   int64
}

func encodeFlags(s *encodeSettings) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "max-length",
			Usage:       "encoded row length (default: training config max_length, else 512)",
			Destination: &s.maxLength,
		},
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "malformed and truncation-loss handling (skip, abort)",
			Value:       "skip",
			Destination: &s.policy,
		},
		&cli.BoolFlag{
			Name:        "strict",
			Usage:       "shorthand for --policy=abort",
			Destination: &s.strict,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "parallel encode workers (0 = GOMAXPROCS)",
			Destination: &s.workers,
		},
	}
}
