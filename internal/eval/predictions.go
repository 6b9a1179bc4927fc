package eval

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/medtune/internal/dataset"
	"github.com/samcharles93/medtune/internal/prompt"
)

var (
	ErrMissingPrediction = errors.New("missing prediction")
	ErrInputMismatch     = errors.New("prediction input does not match example")
)

// Prediction is one entry of the generation engine's output file.
type Prediction struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Pair is an aligned prediction and reference.
type Pair struct {
	ID         string `json:"id"`
	Input      string `json:"input"`
	Reference  string `json:"reference"`
	Prediction string `json:"prediction"`
}

// LoadPredictions reads {"<id>": {"input": ..., "output": ...}}.
func LoadPredictions(path string) (map[string]Prediction, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string]Prediction
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// Align pairs each example with the prediction whose id is the example's
// index. Outputs are sanitised before scoring. Predictions for ids outside
// the example range are ignored.
func Align(examples []dataset.Example, preds map[string]Prediction) ([]Pair, error) {
	pairs := make([]Pair, 0, len(examples))
	var missing []string
	for i, ex := range examples {
		id := strconv.Itoa(i)
		p, ok := preds[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if p.Input != "" && strings.TrimSpace(p.Input) != strings.TrimSpace(ex.Input) {
			return nil, fmt.Errorf("%w: id %s", ErrInputMismatch, id)
		}
		pairs = append(pairs, Pair{
			ID:         id,
			Input:      ex.Input,
			Reference:  ex.Output,
			Prediction: prompt.Sanitize(p.Output),
		})
	}
	if len(missing) > 0 {
		shown := missing
		if len(shown) > 5 {
			shown = slices.Clone(shown[:5])
			shown = append(shown, "...")
		}
		return nil, fmt.Errorf("%w: %d of %d examples (ids %s)", ErrMissingPrediction, len(missing), len(examples), strings.Join(shown, ", "))
	}
	return pairs, nil
}
