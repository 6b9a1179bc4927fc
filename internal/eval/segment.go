package eval

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"
)

// Segmenter names accepted by ParseSegmenter.
const (
	SegmenterWords = "words"
	SegmenterChars = "chars"
)

// WordSegmenter cuts Chinese text into dictionary words with gse's embedded
// dictionary and HMM for words it does not know.
type WordSegmenter struct {
	seg gse.Segmenter
}

func NewWordSegmenter() (*WordSegmenter, error) {
	w := &WordSegmenter{}
	w.seg.SkipLog = true
	if err := w.seg.LoadDictEmbed(); err != nil {
		return nil, fmt.Errorf("load segmentation dictionary: %w", err)
	}
	return w, nil
}

// Segment returns lower-cased words with whitespace dropped.
func (w *WordSegmenter) Segment(text string) []string {
	var out []string
	for _, tok := range w.seg.Cut(text, true) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		out = append(out, strings.ToLower(tok))
	}
	return out
}

var sharedWords = sync.OnceValues(NewWordSegmenter)

// Segment splits text into metric tokens using the shared word segmenter.
// It falls back to SegmentChars if the dictionary cannot be loaded.
func Segment(text string) []string {
	w, err := sharedWords()
	if err != nil {
		return SegmentChars(text)
	}
	return w.Segment(text)
}

// ParseSegmenter returns the segmentation function for name. An empty name
// selects words.
func ParseSegmenter(name string) (func(string) []string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SegmenterWords:
		w, err := sharedWords()
		if err != nil {
			return nil, err
		}
		return w.Segment, nil
	case SegmenterChars:
		return SegmentChars, nil
	default:
		return nil, fmt.Errorf("unknown segmenter %q (want %s or %s)", name, SegmenterWords, SegmenterChars)
	}
}

// SegmentChars splits text without a dictionary. Every Han, kana or hangul
// rune is its own token, runs of letters and digits form one lower-cased
// token, and each punctuation or symbol rune stands alone. Whitespace
// separates tokens and is dropped.
func SegmentChars(text string) []string {
	var (
		out []string
		run strings.Builder
	)
	flush := func() {
		if run.Len() > 0 {
			out = append(out, strings.ToLower(run.String()))
			run.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case isCJK(r):
			flush()
			out = append(out, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			run.WriteRune(r)
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			out = append(out, string(r))
		default:
			flush()
		}
	}
	flush()
	return out
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
