// Package api serves the example encoder over HTTP.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/medtune/internal/logger"
	"github.com/samcharles93/medtune/internal/prompt"
	"github.com/samcharles93/medtune/internal/sft"
	"github.com/samcharles93/medtune/internal/tokenizer"
)

type Config struct {
	Tokenizer tokenizer.Tokenizer
	// Options are the default encoder settings. Requests may lower or raise
	// MaxLength up to MaxLengthLimit.
	Options        sft.Options
	MaxLengthLimit int
	Policy         sft.Policy
	Workers        int
	Version        string
	Store          *EncodeStore
	Logger         logger.Logger
}

type Server struct {
	cfg   Config
	enc   *sft.Encoder
	store *EncodeStore
	log   logger.Logger
	clock func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	enc, err := sft.New(cfg.Tokenizer, cfg.Options)
	if err != nil {
		return nil, err
	}
	if cfg.MaxLengthLimit < cfg.Options.MaxLength {
		cfg.MaxLengthLimit = cfg.Options.MaxLength
	}
	store := cfg.Store
	if store == nil {
		store = NewEncodeStore(0)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		cfg:   cfg,
		enc:   enc,
		store: store,
		log:   log,
		clock: time.Now,
	}, nil
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/encode", s.handleEncode)
	e.GET("/v1/encode/:id", s.handleGetEncode)
	e.DELETE("/v1/encode/:id", s.handleDeleteEncode)
	e.POST("/v1/prompts", s.handlePrompts)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   s.cfg.Version,
		MaxLength: s.cfg.Options.MaxLength,
		PadID:     s.cfg.Options.PadID,
	})
}

func (s *Server) handleEncode(c *echo.Context) error {
	req, err := decodeJSON[EncodeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	enc, policy, err := s.resolve(req)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), paramOf(err), "")
	}

	ctx := logger.WithContext(c.Request().Context(), s.log)
	batch, report, err := enc.EncodeBatch(ctx, req.Examples, sft.BatchOptions{Policy: policy, Workers: s.cfg.Workers})
	if err != nil {
		return s.writeEncodeError(c, err)
	}

	resp := EncodeResponse{
		ID:        newEncodeID(),
		Object:    "encode",
		CreatedAt: s.clock().Unix(),
		MaxLength: batch.MaxLength,
		Policy:    policy.String(),
		Rows:      make([]EncodedRow, batch.Len()),
		Report:    report,
	}
	for i := range resp.Rows {
		row := batch.Row(i)
		resp.Rows[i] = EncodedRow{
			SourceIndex:   batch.SourceIndex[i],
			InputIDs:      row.InputIDs,
			Labels:        row.Labels,
			AttentionMask: row.AttentionMask,
		}
	}
	s.store.Put(resp)
	s.log.Info("encoded batch", "id", resp.ID, "total", report.Total, "encoded", report.Encoded, "skipped", report.Skipped())
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) resolve(req EncodeRequest) (*sft.Encoder, sft.Policy, error) {
	if len(req.Examples) == 0 {
		return nil, 0, invalidField("examples", "is required and must not be empty")
	}
	policy := s.cfg.Policy
	if req.Policy != "" {
		p, err := sft.ParsePolicy(req.Policy)
		if err != nil {
			return nil, 0, invalidField("policy", "%v", err)
		}
		policy = p
	}
	if req.MaxLength == nil || *req.MaxLength == s.cfg.Options.MaxLength {
		return s.enc, policy, nil
	}
	n := *req.MaxLength
	if n <= 0 || n > s.cfg.MaxLengthLimit {
		return nil, 0, invalidField("max_length", "must be in [1, %d], got %d", s.cfg.MaxLengthLimit, n)
	}
	opts := s.cfg.Options
	opts.MaxLength = n
	enc, err := sft.New(s.cfg.Tokenizer, opts)
	if err != nil {
		return nil, 0, invalidField("max_length", "%v", err)
	}
	return enc, policy, nil
}

func (s *Server) writeEncodeError(c *echo.Context, err error) error {
	var exErr *sft.ExampleError
	switch {
	case errors.As(err, &exErr) && (errors.Is(err, sft.ErrMalformedExample) || errors.Is(err, sft.ErrTruncationLoss)):
		return writeError(c, http.StatusUnprocessableEntity, "example_error", err.Error(), fmt.Sprintf("examples[%d]", exErr.Index), errorCode(err))
	case c.Request().Context().Err() != nil:
		return writeError(c, http.StatusServiceUnavailable, "server_error", "request cancelled", "", "")
	default:
		s.log.Error("encode failed", "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
}

func errorCode(err error) string {
	if errors.Is(err, sft.ErrTruncationLoss) {
		return "truncation_loss"
	}
	return "malformed_example"
}

func (s *Server) handleGetEncode(c *echo.Context) error {
	resp, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "encode result not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteEncode(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "encode result not found")
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "object": "encode.deleted", "deleted": true})
}

func (s *Server) handlePrompts(c *echo.Context) error {
	req, err := decodeJSON[PromptsRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(req.Examples) == 0 {
		return writeBadRequest(c, "examples is required and must not be empty")
	}
	for i, ex := range req.Examples {
		if ex.Instruction == "" || ex.Input == "" {
			return writeError(c, http.StatusUnprocessableEntity, "example_error",
				"instruction and input are required", fmt.Sprintf("examples[%d]", i), "malformed_example")
		}
	}
	return c.JSON(http.StatusOK, PromptsResponse{
		ID:     newPromptsID(),
		Object: "list",
		Data:   prompt.BuildRequests(req.Examples),
	})
}
