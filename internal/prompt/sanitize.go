package prompt

import "strings"

var sentinelTokens = []string{
	"<|im_end|>",
	"<|endoftext|>",
	"<|end_of_text|>",
	"<|eot_id|>",
	"</s>",
}

// Sanitize strips reasoning blocks and end-of-turn sentinels from a
// generation, extracts the answer, and substitutes NoAnswer when nothing is
// left.
func Sanitize(text string) string {
	s := stripThinkBlocks(text)
	for _, token := range sentinelTokens {
		s = strings.ReplaceAll(s, token, "")
	}
	s = ExtractAnswer(s)
	if s == "" {
		return NoAnswer
	}
	return s
}

func stripThinkBlocks(text string) string {
	const (
		openTag  = "<think>"
		closeTag = "</think>"
	)
	lower := strings.ToLower(text)

	var b strings.Builder
	cursor := 0
	for cursor < len(text) {
		start := strings.Index(lower[cursor:], openTag)
		if start < 0 {
			b.WriteString(text[cursor:])
			break
		}
		start += cursor
		b.WriteString(text[cursor:start])

		end := strings.Index(lower[start+len(openTag):], closeTag)
		if end < 0 {
			break // unclosed block: drop the tail
		}
		cursor = start + len(openTag) + end + len(closeTag)
	}
	return b.String()
}
