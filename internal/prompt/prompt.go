// Package prompt formats the fixed question-answer template and cleans
// generated answers.
package prompt

import (
	"strconv"
	"strings"

	"github.com/samcharles93/medtune/internal/dataset"
)

const (
	questionTag = "\n问题："
	answerTag   = "回答："

	// NoAnswer replaces generations that are empty after cleaning.
	NoAnswer = "无法生成回答"
)

// Format renders instruction and input into the prompt the model is trained on.
func Format(instruction, input string) string {
	return instruction + questionTag + input + "\n" + answerTag
}

// FormatExample is Format over an example's instruction and input.
func FormatExample(ex dataset.Example) string {
	return Format(ex.Instruction, ex.Input)
}

// ExtractAnswer returns the text following the last answer tag. Text without
// a tag is returned trimmed.
func ExtractAnswer(text string) string {
	if i := strings.LastIndex(text, answerTag); i >= 0 {
		text = text[i+len(answerTag):]
	}
	return strings.TrimSpace(text)
}

// Request is one generation request for the external engine.
type Request struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
}

// BuildRequests formats examples in order. Ids are the decimal source index.
func BuildRequests(examples []dataset.Example) []Request {
	out := make([]Request, len(examples))
	for i, ex := range examples {
		out[i] = Request{ID: strconv.Itoa(i), Prompt: FormatExample(ex)}
	}
	return out
}
