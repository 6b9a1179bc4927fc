package eval

import (
	"fmt"
	"strings"
)

// RougeN counts clipped n-gram overlap.
type RougeN struct {
	N int
}

func NewRougeN(n int) *RougeN {
	return &RougeN{N: n}
}

func (m *RougeN) Name() string {
	return fmt.Sprintf("rouge-%d", m.N)
}

func (m *RougeN) Compute(pred, ref []string) Score {
	predGrams := ngrams(pred, m.N)
	refGrams := ngrams(ref, m.N)
	overlap := 0
	for g, c := range predGrams {
		overlap += min(c, refGrams[g])
	}
	p := ratio(overlap, total(predGrams))
	r := ratio(overlap, total(refGrams))
	return Score{Precision: p, Recall: r, F: f1(p, r)}
}

// RougeL scores the longest common subsequence.
type RougeL struct{}

func NewRougeL() *RougeL {
	return &RougeL{}
}

func (m *RougeL) Name() string {
	return "rouge-l"
}

func (m *RougeL) Compute(pred, ref []string) Score {
	lcs := lcsLength(pred, ref)
	p := ratio(lcs, len(pred))
	r := ratio(lcs, len(ref))
	return Score{Precision: p, Recall: r, F: f1(p, r)}
}

func ngrams(tokens []string, n int) map[string]int {
	out := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+n], "\x00")]++
	}
	return out
}

func total(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

// lcsLength keeps two rows of the DP table.
func lcsLength(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
