// Package eval scores generated answers against reference answers.
package eval

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/medtune/internal/logger"
)

// DefaultSamples is the number of pairs copied into Results.Samples.
const DefaultSamples = 10

type LengthStats struct {
	AvgPredLength float64 `json:"avg_pred_length"`
	AvgRefLength  float64 `json:"avg_ref_length"`
	LengthRatio   float64 `json:"length_ratio"`
}

// Results is the eval_results.json document. BERTScore needs an external
// encoder model and is always null here.
type Results struct {
	RougeScores map[string]Score `json:"rouge_scores"`
	BLEUScore   *float64         `json:"bleu_score"`
	BERTScore   *Score           `json:"bert_score"`
	OtherScores map[string]Score `json:"other_scores,omitempty"`
	LengthStats LengthStats      `json:"length_stats"`
	NumSamples  int              `json:"num_samples"`
	Samples     []Pair           `json:"samples"`
}

// RougeL returns the ROUGE-L F score, or 0 when absent.
func (r *Results) RougeL() float64 {
	return r.RougeScores["rouge-l"].F
}

type Evaluator struct {
	Metrics []Metric
	Segment func(string) []string
	Samples int
	Workers int
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		Metrics: DefaultMetrics(),
		Segment: Segment,
		Samples: DefaultSamples,
	}
}

// Evaluate scores every pair with every metric and averages per metric.
func (e *Evaluator) Evaluate(ctx context.Context, pairs []Pair) (*Results, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no pairs to evaluate")
	}
	log := logger.FromContext(ctx)
	segment := e.Segment
	if segment == nil {
		segment = Segment
	}
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	perPair := make([][]Score, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range pairs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pred := segment(pairs[i].Prediction)
			ref := segment(pairs[i].Reference)
			scores := make([]Score, len(e.Metrics))
			for j, m := range e.Metrics {
				scores[j] = m.Compute(pred, ref)
			}
			perPair[i] = scores
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Results{
		RougeScores: make(map[string]Score),
		LengthStats: lengthStats(pairs),
		NumSamples:  len(pairs),
	}
	k := 1 / float64(len(pairs))
	for j, m := range e.Metrics {
		var sum Score
		for i := range perPair {
			sum = sum.add(perPair[i][j])
		}
		avg := sum.scale(k)
		name := m.Name()
		switch {
		case strings.HasPrefix(name, "rouge"):
			res.RougeScores[name] = avg
		case name == "bleu":
			v := avg.F
			res.BLEUScore = &v
		default:
			if res.OtherScores == nil {
				res.OtherScores = make(map[string]Score)
			}
			res.OtherScores[name] = avg
		}
		log.Debug("metric computed", "metric", name, "f", avg.F)
	}

	n := min(max(e.Samples, 0), len(pairs))
	res.Samples = append([]Pair{}, pairs[:n]...)
	return res, nil
}

func lengthStats(pairs []Pair) LengthStats {
	var predTotal, refTotal int
	for _, p := range pairs {
		predTotal += utf8.RuneCountInString(p.Prediction)
		refTotal += utf8.RuneCountInString(p.Reference)
	}
	n := float64(len(pairs))
	return LengthStats{
		AvgPredLength: float64(predTotal) / n,
		AvgRefLength:  float64(refTotal) / n,
		LengthRatio:   ratio(predTotal, refTotal),
	}
}

// WriteResults writes results as indented JSON, creating parent directories.
func WriteResults(path string, res *Results) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadResults loads an eval_results.json document.
func ReadResults(path string) (*Results, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var res Results
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &res, nil
}

// WriteSummary prints the headline numbers.
func WriteSummary(w io.Writer, res *Results) error {
	var b strings.Builder
	fmt.Fprintf(&b, "samples: %d\n", res.NumSamples)
	for _, name := range []string{"rouge-1", "rouge-2", "rouge-l"} {
		if s, ok := res.RougeScores[name]; ok {
			fmt.Fprintf(&b, "%-8s %.4f\n", strings.ToUpper(name)+":", s.F)
		}
	}
	if res.BLEUScore != nil {
		fmt.Fprintf(&b, "%-8s %.4f\n", "BLEU:", *res.BLEUScore)
	}
	if res.BERTScore != nil {
		fmt.Fprintf(&b, "%-8s %.4f\n", "BERT-F1:", res.BERTScore.F)
	}
	ls := res.LengthStats
	fmt.Fprintf(&b, "length:  pred %.1f ref %.1f ratio %.2f\n", ls.AvgPredLength, ls.AvgRefLength, ls.LengthRatio)
	_, err := io.WriteString(w, b.String())
	return err
}
