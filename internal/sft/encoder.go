// Package sft turns instruction/input/output examples into fixed-length,
// loss-masked training rows for a causal language model.
package sft

import (
	"fmt"

	"github.com/samcharles93/medtune/internal/dataset"
	"github.com/samcharles93/medtune/internal/prompt"
	"github.com/samcharles93/medtune/internal/tokenizer"
)

// IgnoreIndex is the label value the loss function skips.
const IgnoreIndex = -100

// Options configures an Encoder.
type Options struct {
	// MaxLength is the length of every encoded row.
	MaxLength int
	// PadID right-pads input_ids. It must be a valid (non-negative) token id.
	PadID int
	// EndMarker is appended to the output before tokenization so the model
	// learns to stop.
	EndMarker string
}

// OptionsFor derives PadID and EndMarker from a tokenizer that exposes its
// special tokens. The end marker is a newline followed by the end-of-turn
// token, or just a newline when the tokenizer has none.
func OptionsFor(tok tokenizer.Special, maxLength int) Options {
	marker := "\n"
	if eot := tok.EndOfTurn(); eot != "" {
		marker += eot
	}
	return Options{MaxLength: maxLength, PadID: tok.PadID(), EndMarker: marker}
}

// Encoder is safe for concurrent use when its tokenizer is.
type Encoder struct {
	tok  tokenizer.Tokenizer
	seg  tokenizer.SegmentEncoder
	opts Options
}

// New validates opts and returns an Encoder.
func New(tok tokenizer.Tokenizer, opts Options) (*Encoder, error) {
	switch {
	case tok == nil:
		return nil, fmt.Errorf("%w: tokenizer is required", ErrInvalidConfig)
	case opts.MaxLength <= 0:
		return nil, fmt.Errorf("%w: max_length must be positive, got %d", ErrInvalidConfig, opts.MaxLength)
	case opts.PadID < 0:
		return nil, fmt.Errorf("%w: pad token id must be non-negative, got %d", ErrInvalidConfig, opts.PadID)
	}
	seg, _ := tok.(tokenizer.SegmentEncoder)
	return &Encoder{tok: tok, seg: seg, opts: opts}, nil
}

func (e *Encoder) Options() Options { return e.opts }

// Encoded is one training row. All three slices have length MaxLength.
type Encoded struct {
	InputIDs      []int  `json:"input_ids"`
	Labels        []int  `json:"labels"`
	AttentionMask []bool `json:"attention_mask"`

	PromptTokens    int  `json:"-"`
	ResponseTokens  int  `json:"-"`
	TrainableTokens int  `json:"-"`
	Truncated       bool `json:"-"`
}

// Encode builds one row. The prompt and the response are tokenized
// separately and concatenated, so the ignored label span ends exactly where
// the response tokens begin. A tokenizer that adds BOS/EOS around whole
// sequences contributes at most a leading BOS on the prompt.
//
// Errors: ErrMalformedExample for empty fields, *TruncationError when the
// prompt alone fills MaxLength, and tokenizer errors unchanged.
func (e *Encoder) Encode(ex dataset.Example) (Encoded, error) {
	if err := ex.Validate(); err != nil {
		return Encoded{}, err
	}
	promptIDs, err := e.encodePrompt(prompt.FormatExample(ex))
	if err != nil {
		return Encoded{}, err
	}
	maxLen := e.opts.MaxLength
	if len(promptIDs) >= maxLen {
		return Encoded{}, &TruncationError{PromptTokens: len(promptIDs), MaxLength: maxLen}
	}
	responseIDs, err := e.encodeResponse(ex.Output + e.opts.EndMarker)
	if err != nil {
		return Encoded{}, err
	}

	out := Encoded{
		InputIDs:       make([]int, maxLen),
		Labels:         make([]int, maxLen),
		AttentionMask:  make([]bool, maxLen),
		PromptTokens:   len(promptIDs),
		ResponseTokens: len(responseIDs),
	}
	n := copy(out.InputIDs, promptIDs)
	for i := 0; i < n; i++ {
		out.Labels[i] = IgnoreIndex
	}
	kept := copy(out.InputIDs[n:], responseIDs)
	copy(out.Labels[n:], responseIDs[:kept])
	for i := n + kept; i < maxLen; i++ {
		out.InputIDs[i] = e.opts.PadID
		out.Labels[i] = IgnoreIndex
	}
	for i, id := range out.InputIDs {
		out.AttentionMask[i] = id != e.opts.PadID
	}
	out.TrainableTokens = kept
	out.Truncated = kept < len(responseIDs)
	return out, nil
}

func (e *Encoder) encodePrompt(text string) ([]int, error) {
	if e.seg == nil {
		return e.tok.Encode(text)
	}
	body, err := e.seg.EncodeSegment(text)
	if err != nil {
		return nil, err
	}
	bos := e.seg.LeadingBOS()
	if bos < 0 {
		return body, nil
	}
	return append([]int{bos}, body...), nil
}

func (e *Encoder) encodeResponse(text string) ([]int, error) {
	if e.seg == nil {
		return e.tok.Encode(text)
	}
	return e.seg.EncodeSegment(text)
}
