package dataset

import (
	"math/rand/v2"
	"slices"
	"unicode/utf8"
)

// CleanOptions bounds the rune length of input and output.
type CleanOptions struct {
	MinLength int
	MaxLength int
}

func DefaultCleanOptions() CleanOptions {
	return CleanOptions{MinLength: 10, MaxLength: 512}
}

// CleanStats counts why examples were dropped.
type CleanStats struct {
	Kept      int
	Malformed int
	TooShort  int
	TooLong   int
}

// Clean trims every field and drops examples that are malformed or whose
// input/output length falls outside opts.
func Clean(examples []Example, opts CleanOptions) ([]Example, CleanStats) {
	var stats CleanStats
	out := make([]Example, 0, len(examples))
	for _, ex := range examples {
		ex = trimExample(ex)
		if ex.Validate() != nil {
			stats.Malformed++
			continue
		}
		in, outLen := utf8.RuneCountInString(ex.Input), utf8.RuneCountInString(ex.Output)
		if opts.MinLength > 0 && (in < opts.MinLength || outLen < opts.MinLength) {
			stats.TooShort++
			continue
		}
		if opts.MaxLength > 0 && (in > opts.MaxLength || outLen > opts.MaxLength) {
			stats.TooLong++
			continue
		}
		out = append(out, ex)
	}
	stats.Kept = len(out)
	return out, stats
}

// Shuffle returns a copy of examples permuted by a seeded generator.
func Shuffle(examples []Example, seed uint64) []Example {
	out := slices.Clone(examples)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Splits holds the train/dev/test partition.
type Splits struct {
	Train []Example
	Dev   []Example
	Test  []Example
}

// Split shuffles with seed and partitions by ratio; the test split takes the
// remainder.
func Split(examples []Example, seed uint64, trainRatio, devRatio float64) Splits {
	shuffled := Shuffle(examples, seed)
	total := len(shuffled)
	trainN := int(float64(total) * trainRatio)
	devN := int(float64(total) * devRatio)
	trainN = min(max(trainN, 0), total)
	devN = min(max(devN, 0), total-trainN)
	return Splits{
		Train: shuffled[:trainN],
		Dev:   shuffled[trainN : trainN+devN],
		Test:  shuffled[trainN+devN:],
	}
}

// Sample draws n examples without replacement. Pools of n or fewer are
// returned unchanged.
func Sample(examples []Example, seed uint64, n int) []Example {
	if n <= 0 || len(examples) <= n {
		return examples
	}
	return Shuffle(examples, seed)[:n]
}

// Subset is a named prefix of a seeded shuffle.
type Subset struct {
	Name     string
	Size     int
	Examples []Example
}

// Subsets builds one subset per entry of sizes from a single seeded shuffle,
// so smaller subsets are prefixes of larger ones. Sizes larger than the pool
// are returned in missing.
func Subsets(examples []Example, seed uint64, sizes map[string]int) (subsets []Subset, missing []Subset) {
	shuffled := Shuffle(examples, seed)
	names := make([]string, 0, len(sizes))
	for name := range sizes {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int { return sizes[a] - sizes[b] })
	for _, name := range names {
		size := sizes[name]
		if size > len(shuffled) {
			missing = append(missing, Subset{Name: name, Size: size})
			continue
		}
		subsets = append(subsets, Subset{Name: name, Size: size, Examples: shuffled[:size]})
	}
	return subsets, missing
}
