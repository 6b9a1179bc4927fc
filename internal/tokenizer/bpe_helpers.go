package tokenizer

import "strings"

// Pair is an adjacent pair of BPE symbols.
type Pair struct {
	A string
	B string
}

type textPart struct {
	text      string
	isSpecial bool
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// mergeWord applies the lowest-ranked merge until no ranked pair remains.
func mergeWord(word []string, ranks map[Pair]int) []string {
	for len(word) > 1 {
		best := -1
		var bestPair Pair
		for i := 0; i+1 < len(word); i++ {
			p := Pair{A: word[i], B: word[i+1]}
			if r, ok := ranks[p]; ok && (best < 0 || r < best) {
				best = r
				bestPair = p
			}
		}
		if best < 0 {
			break
		}
		merged := make([]string, 0, len(word))
		for i := 0; i < len(word); i++ {
			if i+1 < len(word) && word[i] == bestPair.A && word[i+1] == bestPair.B {
				merged = append(merged, word[i]+word[i+1])
				i++
				continue
			}
			merged = append(merged, word[i])
		}
		word = merged
	}
	return word
}

func isSpecialToken(s string) bool {
	return len(s) >= 4 && strings.HasPrefix(s, "<|") && strings.HasSuffix(s, "|>")
}

// splitSpecials cuts text around occurrences of specials, which must be
// ordered longest first.
func splitSpecials(text string, specials []string) []textPart {
	if len(specials) == 0 {
		return []textPart{{text: text}}
	}
	var parts []textPart
	start := 0
	for i := 0; i < len(text); {
		match := ""
		for _, sp := range specials {
			if strings.HasPrefix(text[i:], sp) {
				match = sp
				break
			}
		}
		if match == "" {
			i++
			continue
		}
		if i > start {
			parts = append(parts, textPart{text: text[start:i]})
		}
		parts = append(parts, textPart{text: match, isSpecial: true})
		i += len(match)
		start = i
	}
	if start < len(text) {
		parts = append(parts, textPart{text: text[start:]})
	}
	return parts
}

// bytesToUnicode is the GPT-2 reversible byte to printable rune table.
func bytesToUnicode() (map[byte]string, map[string]byte) {
	printable := make([]bool, 256)
	for b := '!'; b <= '~'; b++ {
		printable[b] = true
	}
	for b := '¡'; b <= '¬'; b++ {
		printable[b] = true
	}
	for b := '®'; b <= 'ÿ'; b++ {
		printable[b] = true
	}

	enc := make(map[byte]string, 256)
	dec := make(map[string]byte, 256)
	shifted := 0
	for b := 0; b < 256; b++ {
		r := rune(b)
		if !printable[b] {
			r = rune(256 + shifted)
			shifted++
		}
		enc[byte(b)] = string(r)
		dec[string(r)] = byte(b)
	}
	return enc, dec
}
