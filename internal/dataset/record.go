package dataset

import "strings"

// Kind identifies which field-name convention a raw record uses.
type Kind int

const (
	KindUnknown Kind = iota
	KindInstruction
	KindQuestionAnswer
	KindQueryResponse
)

func (k Kind) String() string {
	switch k {
	case KindInstruction:
		return "instruction"
	case KindQuestionAnswer:
		return "question_answer"
	case KindQueryResponse:
		return "query_response"
	default:
		return "unknown"
	}
}

// Record is a raw dataset row classified once at ingestion.
type Record struct {
	Kind   Kind
	fields map[string]string
}

// NewRecord classifies a decoded JSON object. Non-string values are ignored.
func NewRecord(raw map[string]any) Record {
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}
	return Record{Kind: classify(fields), fields: fields}
}

func classify(f map[string]string) Kind {
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := f[k]; !ok {
				return false
			}
		}
		return true
	}
	switch {
	case has("instruction", "input", "output"):
		return KindInstruction
	case has("question", "answer"):
		return KindQuestionAnswer
	case has("query", "response"):
		return KindQueryResponse
	default:
		return KindUnknown
	}
}

// Example converts the record to the canonical shape. ok is false for
// KindUnknown records.
func (r Record) Example(defaultInstruction string) (Example, bool) {
	if defaultInstruction == "" {
		defaultInstruction = DefaultInstruction
	}
	switch r.Kind {
	case KindInstruction:
		return Example{
			Instruction: r.fields["instruction"],
			Input:       r.fields["input"],
			Output:      r.fields["output"],
		}, true
	case KindQuestionAnswer:
		return Example{Instruction: defaultInstruction, Input: r.fields["question"], Output: r.fields["answer"]}, true
	case KindQueryResponse:
		return Example{Instruction: defaultInstruction, Input: r.fields["query"], Output: r.fields["response"]}, true
	default:
		return Example{}, false
	}
}

// Normalize converts records to examples, dropping unknown shapes.
// The returned map counts records per kind.
func Normalize(records []Record, defaultInstruction string) ([]Example, map[Kind]int) {
	out := make([]Example, 0, len(records))
	counts := make(map[Kind]int)
	for _, r := range records {
		counts[r.Kind]++
		if ex, ok := r.Example(defaultInstruction); ok {
			out = append(out, ex)
		}
	}
	return out, counts
}

func trimExample(e Example) Example {
	return Example{
		Instruction: strings.TrimSpace(e.Instruction),
		Input:       strings.TrimSpace(e.Input),
		Output:      strings.TrimSpace(e.Output),
	}
}
