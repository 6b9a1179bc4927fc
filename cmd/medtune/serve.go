package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/medtune/internal/api"
	"github.com/samcharles93/medtune/internal/logger"
	"github.com/samcharles93/medtune/internal/sft"
	"github.com/samcharles93/medtune/internal/version"
)

func serveCmd() *cli.Command {
	var (
		tok            tokenizerOptions
		settings       encodeSettings
		addr           string
		readTimeout    time.Duration
		maxLengthLimit int64
		storeSize      int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.Int64Flag{
			Name:        "max-length-limit",
			Usage:       "largest max_length a request may ask for",
			Value:       4096,
			Destination: &maxLengthLimit,
		},
		&cli.Int64Flag{
			Name:        "store-size",
			Usage:       "encode results kept for GET /v1/encode/:id",
			Value:       64,
			Destination: &storeSize,
		},
	}
	flags = append(flags, tokenizerFlags(&tok)...)
	flags = append(flags, encodeFlags(&settings)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the example encoder over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyTokenizerConfig(c, cfg, &tok)
			applyEncodeConfig(c, cfg, &settings)
			applyServeConfig(c, cfg, &addr)
			if settings.maxLength <= 0 {
				settings.maxLength = defaultMaxLength
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

			server, err := api.NewServer(api.Config{
				Tokenizer:      hf,
				Options:        opts,
				MaxLengthLimit: int(maxLengthLimit),
				Policy:         policy,
				Workers:        int(settings.workers),
				Version:        version.String(),
				Store:          api.NewEncodeStore(int(storeSize)),
				Logger:         log,
			})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "max_length", opts.MaxLength, "policy", policy.String())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
