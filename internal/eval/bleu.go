package eval

import "math"

// BLEU is sentence-level BLEU with uniform weights up to MaxN and epsilon
// smoothing for n-gram orders with no matches. The returned Score carries the
// geometric precision in Precision, the brevity penalty in Recall and BLEU in F.
type BLEU struct {
	MaxN    int
	Epsilon float64
}

func NewBLEU() *BLEU {
	return &BLEU{MaxN: 4, Epsilon: 0.1}
}

func (m *BLEU) Name() string {
	return "bleu"
}

func (m *BLEU) Compute(pred, ref []string) Score {
	if len(pred) == 0 || len(ref) == 0 {
		return Score{}
	}
	logSum := 0.0
	for n := 1; n <= m.MaxN; n++ {
		predGrams := ngrams(pred, n)
		refGrams := ngrams(ref, n)
		matches := 0
		for g, c := range predGrams {
			matches += min(c, refGrams[g])
		}
		if n == 1 && matches == 0 {
			return Score{}
		}
		den := max(1, total(predGrams))
		p := float64(matches) / float64(den)
		if matches == 0 {
			p = m.Epsilon / float64(den)
		}
		logSum += math.Log(p) / float64(m.MaxN)
	}
	precision := math.Exp(logSum)
	bp := brevityPenalty(len(pred), len(ref))
	return Score{Precision: precision, Recall: bp, F: bp * precision}
}

func brevityPenalty(c, r int) float64 {
	if c > r {
		return 1
	}
	if c == 0 {
		return 0
	}
	return math.Exp(1 - float64(r)/float64(c))
}
