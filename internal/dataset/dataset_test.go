package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRecordClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  map[string]any
		kind Kind
		want Example
		ok   bool
	}{
		{
			name: "canonical",
			raw:  map[string]any{"instruction": "指令", "input": "问", "output": "答"},
			kind: KindInstruction,
			want: Example{Instruction: "指令", Input: "问", Output: "答"},
			ok:   true,
		},
		{
			name: "question answer",
			raw:  map[string]any{"question": "头疼怎么办", "answer": "休息"},
			kind: KindQuestionAnswer,
			want: Example{Instruction: DefaultInstruction, Input: "头疼怎么办", Output: "休息"},
			ok:   true,
		},
		{
			name: "query response",
			raw:  map[string]any{"query": "发烧", "response": "多喝水"},
			kind: KindQueryResponse,
			want: Example{Instruction: DefaultInstruction, Input: "发烧", Output: "多喝水"},
			ok:   true,
		},
		{
			name: "canonical wins over other conventions",
			raw:  map[string]any{"instruction": "i", "input": "q", "output": "a", "question": "x", "answer": "y"},
			kind: KindInstruction,
			want: Example{Instruction: "i", Input: "q", Output: "a"},
			ok:   true,
		},
		{
			name: "non string values ignored",
			raw:  map[string]any{"question": 12, "answer": "y"},
			kind: KindUnknown,
		},
		{
			name: "unknown",
			raw:  map[string]any{"text": "hello"},
			kind: KindUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := NewRecord(tc.raw)
			if rec.Kind != tc.kind {
				t.Fatalf("kind: got %v want %v", rec.Kind, tc.kind)
			}
			got, ok := rec.Example("")
			if ok != tc.ok {
				t.Fatalf("ok: got %v want %v", ok, tc.ok)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("example mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeCountsKinds(t *testing.T) {
	t.Parallel()

	records := []Record{
		NewRecord(map[string]any{"question": "q", "answer": "a"}),
		NewRecord(map[string]any{"query": "q", "response": "r"}),
		NewRecord(map[string]any{"foo": "bar"}),
	}
	examples, counts := Normalize(records, "自定义指令")
	if len(examples) != 2 {
		t.Fatalf("expected 2 examples, got %d", len(examples))
	}
	if examples[0].Instruction != "自定义指令" {
		t.Fatalf("default instruction not applied: %q", examples[0].Instruction)
	}
	if counts[KindUnknown] != 1 || counts[KindQuestionAnswer] != 1 || counts[KindQueryResponse] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	err := Example{Instruction: "i", Input: "  ", Output: "o"}.Validate()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != "input" {
		t.Fatalf("expected input field error, got %v", err)
	}
	if err := (Example{Instruction: "i", Input: "q", Output: "o"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClean(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("长", 600)
	examples := []Example{
		{Instruction: "i", Input: "  感冒了应该吃什么药呢？  ", Output: "多喝水，注意休息，必要时就医。"},
		{Instruction: "i", Input: "短", Output: "多喝水，注意休息，必要时就医。"},
		{Instruction: "i", Input: long, Output: "多喝水，注意休息，必要时就医。"},
		{Instruction: "i", Input: "", Output: "多喝水，注意休息，必要时就医。"},
	}
	kept, stats := Clean(examples, DefaultCleanOptions())
	if len(kept) != 1 {
		t.Fatalf("expected 1 kept, got %d", len(kept))
	}
	if kept[0].Input != "感冒了应该吃什么药呢？" {
		t.Fatalf("input not trimmed: %q", kept[0].Input)
	}
	want := CleanStats{Kept: 1, Malformed: 1, TooShort: 1, TooLong: 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func makeExamples(n int) []Example {
	out := make([]Example, n)
	for i := range out {
		out[i] = Example{Instruction: "i", Input: strings.Repeat("问", i+1), Output: "答"}
	}
	return out
}

func TestSplitDeterministic(t *testing.T) {
	t.Parallel()

	examples := makeExamples(100)
	a := Split(examples, 42, 0.8, 0.1)
	b := Split(examples, 42, 0.8, 0.1)
	if len(a.Train) != 80 || len(a.Dev) != 10 || len(a.Test) != 10 {
		t.Fatalf("sizes: train=%d dev=%d test=%d", len(a.Train), len(a.Dev), len(a.Test))
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different splits:\n%s", diff)
	}
	c := Split(examples, 7, 0.8, 0.1)
	if cmp.Equal(a.Train, c.Train) {
		t.Fatalf("different seeds produced identical train splits")
	}
	if examples[0].Input != "问" {
		t.Fatalf("input slice was mutated")
	}
}

func TestSubsetsArePrefixes(t *testing.T) {
	t.Parallel()

	examples := makeExamples(50)
	subsets, missing := Subsets(examples, 42, map[string]int{"20": 20, "10": 10, "100": 100})
	if len(subsets) != 2 || len(missing) != 1 {
		t.Fatalf("subsets=%d missing=%d", len(subsets), len(missing))
	}
	if subsets[0].Name != "10" || subsets[1].Name != "20" {
		t.Fatalf("subsets not ordered by size: %s, %s", subsets[0].Name, subsets[1].Name)
	}
	if diff := cmp.Diff(subsets[1].Examples[:10], subsets[0].Examples); diff != "" {
		t.Fatalf("smaller subset is not a prefix:\n%s", diff)
	}
	if missing[0].Name != "100" {
		t.Fatalf("unexpected missing subset %q", missing[0].Name)
	}
}

func TestSample(t *testing.T) {
	t.Parallel()

	examples := makeExamples(10)
	if got := Sample(examples, 1, 0); len(got) != 10 {
		t.Fatalf("n=0 should keep all, got %d", len(got))
	}
	if got := Sample(examples, 1, 3); len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}
}

func TestLoadRecordsFormats(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	arrayPath := filepath.Join(dir, "raw.json")
	linesPath := filepath.Join(dir, "raw.jsonl")
	if err := os.WriteFile(arrayPath, []byte(`[{"question":"q1","answer":"a1"},{"instruction":"i","input":"q2","output":"a2"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(linesPath, []byte("{\"query\":\"q1\",\"response\":\"r1\"}\n\n{\"question\":\"q2\",\"answer\":\"a2\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	arr, err := LoadRecords(arrayPath)
	if err != nil {
		t.Fatalf("load array: %v", err)
	}
	if len(arr) != 2 || arr[0].Kind != KindQuestionAnswer || arr[1].Kind != KindInstruction {
		t.Fatalf("unexpected array records: %+v", arr)
	}

	lines, err := LoadRecords(linesPath)
	if err != nil {
		t.Fatalf("load lines: %v", err)
	}
	if len(lines) != 2 || lines[0].Kind != KindQueryResponse {
		t.Fatalf("unexpected jsonl records: %+v", lines)
	}
}

func TestSaveAndLoadExamples(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "train.json")
	want := []Example{{Instruction: "回答医疗健康问题", Input: "感冒了应该吃什么药？", Output: "多喝水，注意休息。"}}
	if err := SaveExamples(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "感冒了应该吃什么药？") {
		t.Fatalf("non-ASCII text was escaped: %s", raw)
	}
	got, err := LoadExamples(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
