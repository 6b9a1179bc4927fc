package eval

// Score is a precision/recall/F triple. Metrics without a natural recall
// document how they fill it; F is always the headline value.
type Score struct {
	Precision float64 `json:"p"`
	Recall    float64 `json:"r"`
	F         float64 `json:"f"`
}

func (s Score) add(o Score) Score {
	return Score{Precision: s.Precision + o.Precision, Recall: s.Recall + o.Recall, F: s.F + o.F}
}

func (s Score) scale(k float64) Score {
	return Score{Precision: s.Precision * k, Recall: s.Recall * k, F: s.F * k}
}

// Metric scores one segmented prediction against its reference.
type Metric interface {
	Name() string
	Compute(pred, ref []string) Score
}

// DefaultMetrics returns the metrics written to eval_results.json.
func DefaultMetrics() []Metric {
	return []Metric{NewRougeN(1), NewRougeN(2), NewRougeL(), NewBLEU()}
}

func f1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
