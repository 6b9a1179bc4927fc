package sft

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/medtune/internal/dataset"
	"github.com/samcharles93/medtune/internal/logger"
)

// Policy decides what happens to malformed and truncation-loss examples.
// Tokenizer failures abort under every policy.
type Policy int

const (
	// PolicySkip drops the example, counts it, and logs a warning.
	PolicySkip Policy = iota
	// PolicyAbort fails the whole pass on the first such example.
	PolicyAbort
)

func (p Policy) String() string {
	if p == PolicyAbort {
		return "abort"
	}
	return "skip"
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return PolicySkip, nil
	case "abort":
		return PolicyAbort, nil
	default:
		return PolicySkip, fmt.Errorf("unknown policy %q (want skip or abort)", s)
	}
}

// BatchOptions controls EncodeBatch. Workers <= 0 uses GOMAXPROCS.
type BatchOptions struct {
	Policy  Policy
	Workers int
}

// Batch is a stack of encoded rows of shape (Len(), MaxLength). SourceIndex[i]
// is the position in the input slice that produced row i.
type Batch struct {
	InputIDs      [][]int  `json:"input_ids"`
	Labels        [][]int  `json:"labels"`
	AttentionMask [][]bool `json:"attention_mask"`
	SourceIndex   []int    `json:"source_index"`
	MaxLength     int      `json:"max_length"`
}

func (b *Batch) Len() int { return len(b.InputIDs) }

// Row returns row i as an Encoded value sharing the batch's slices.
func (b *Batch) Row(i int) Encoded {
	return Encoded{InputIDs: b.InputIDs[i], Labels: b.Labels[i], AttentionMask: b.AttentionMask[i]}
}

// Report summarises an encode pass.
type Report struct {
	Total              int `json:"total"`
	Encoded            int `json:"encoded"`
	Malformed          int `json:"malformed"`
	TruncationLoss     int `json:"truncation_loss"`
	PartiallyTruncated int `json:"partially_truncated"`
	TrainableTokens    int `json:"trainable_tokens"`
}

// Skipped is the number of examples dropped under PolicySkip.
func (r Report) Skipped() int { return r.Malformed + r.TruncationLoss }

type slot struct {
	enc Encoded
	err error
}

// EncodeBatch encodes examples in parallel and stacks the rows in input
// order. Under PolicyAbort, or on any tokenizer failure, it returns an
// *ExampleError for the lowest-index failing example. Every example before
// that one is encoded; later ones may be skipped.
func (e *Encoder) EncodeBatch(ctx context.Context, examples []dataset.Example, opts BatchOptions) (*Batch, Report, error) {
	log := logger.FromContext(ctx)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	fatal := func(err error) bool {
		return err != nil && (opts.Policy == PolicyAbort || !skippable(err))
	}

	slots := make([]slot, len(examples))
	var stopAt atomic.Int64
	stopAt.Store(int64(len(examples)))
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range examples {
		if ctx.Err() != nil || int64(i) > stopAt.Load() {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if int64(i) > stopAt.Load() {
				return nil
			}
			enc, err := e.Encode(examples[i])
			slots[i] = slot{enc: enc, err: err}
			if fatal(err) {
				lowerTo(&stopAt, int64(i))
			}
			return nil
		})
	}
	waitErr := g.Wait()

	report := Report{Total: len(examples)}
	for i, s := range slots {
		if fatal(s.err) {
			return nil, report, &ExampleError{Index: i, Err: s.err}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, report, err
	}
	if waitErr != nil {
		return nil, report, waitErr
	}

	batch := &Batch{MaxLength: e.opts.MaxLength}
	for i, s := range slots {
		switch {
		case errors.Is(s.err, ErrMalformedExample):
			report.Malformed++
			log.Warn("skipping malformed example", "index", i, "error", s.err)
			continue
		case errors.Is(s.err, ErrTruncationLoss):
			report.TruncationLoss++
			log.Warn("skipping example with no trainable tokens", "index", i, "error", s.err)
			continue
		}
		if s.enc.Truncated {
			report.PartiallyTruncated++
			log.Debug("response truncated", "index", i,
				"response_tokens", s.enc.ResponseTokens, "kept", s.enc.TrainableTokens)
		}
		report.TrainableTokens += s.enc.TrainableTokens
		batch.InputIDs = append(batch.InputIDs, s.enc.InputIDs)
		batch.Labels = append(batch.Labels, s.enc.Labels)
		batch.AttentionMask = append(batch.AttentionMask, s.enc.AttentionMask)
		batch.SourceIndex = append(batch.SourceIndex, i)
	}
	report.Encoded = batch.Len()
	return batch, report, nil
}

func lowerTo(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n >= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}
