package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/medtune/internal/eval"
	"github.com/samcharles93/medtune/internal/logger"
)

func testContext() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

func writeResults(t *testing.T, path string, rougeL float64) {
	t.Helper()
	bleu := rougeL / 2
	res := &eval.Results{
		RougeScores: map[string]eval.Score{
			"rouge-1": {F: rougeL + 0.1},
			"rouge-2": {F: rougeL - 0.1},
			"rouge-l": {F: rougeL},
		},
		BLEUScore:  &bleu,
		NumSamples: 10,
	}
	if err := eval.WriteResults(path, res); err != nil {
		t.Fatal(err)
	}
}

func writeManifest(t *testing.T, dir string) string {
	t.Helper()
	manifest := `experiments:
  - name: Baseline
    results: outputs/baseline/eval_results.json
  - name: LoRA-1k
    results: outputs/lora_1k/eval_results.json
    data_size: 1k
  - name: LoRA-5k
    results: outputs/lora_5k/eval_results.json
    data_size: 5k
  - name: QLoRA-1k
    results: outputs/qlora_1k/eval_results.json
    data_size: 1k
  - name: QLoRA-5k
    results: outputs/qlora_5k/eval_results.json
    data_size: 5k
`
	path := filepath.Join(dir, "experiments.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	writeResults(t, filepath.Join(dir, "outputs/baseline/eval_results.json"), 0.2)
	writeResults(t, filepath.Join(dir, "outputs/lora_1k/eval_results.json"), 0.3)
	writeResults(t, filepath.Join(dir, "outputs/lora_5k/eval_results.json"), 0.35)
	writeResults(t, filepath.Join(dir, "outputs/qlora_1k/eval_results.json"), 0.28)
	return path
}

func TestDefaultManifest(t *testing.T) {
	t.Parallel()

	m := DefaultManifest()
	var names []string
	for _, e := range m.Experiments {
		names = append(names, e.Name)
	}
	want := []string{"Baseline", "LoRA-1k", "LoRA-5k", "LoRA-10k", "QLoRA-1k", "QLoRA-5k", "QLoRA-10k"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	if m.Experiments[4].Method != MethodQLoRA || m.Experiments[4].Results != "outputs/qlora_1k/eval_results.json" {
		t.Fatalf("unexpected QLoRA-1k entry: %+v", m.Experiments[4])
	}
	if m.Experiments[0].Method != MethodBaseline || m.Experiments[1].Method != MethodLoRA {
		t.Fatal("methods not inferred")
	}
}

func TestCollectReportsMissing(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, t.TempDir())
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	rows, missing, err := Collect(testContext(), m)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(rows) != 4 || len(missing) != 1 || missing[0].Name != "QLoRA-5k" {
		t.Fatalf("rows=%d missing=%+v", len(rows), missing)
	}
	if rows[1].Name != "LoRA-1k" || rows[1].RougeL != 0.3 || rows[1].DataSize != "1k" {
		t.Fatalf("row = %+v", rows[1])
	}
	if rows[0].DataSize != "-" {
		t.Fatalf("baseline data size = %q", rows[0].DataSize)
	}
}

func TestCollectRejectsCorruptResults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeManifest(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "outputs/lora_1k/eval_results.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := Collect(testContext(), m); err == nil || !strings.Contains(err.Error(), "LoRA-1k") {
		t.Fatalf("expected error naming LoRA-1k, got %v", err)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := map[string]string{
		"empty.yaml":    "experiments: []\n",
		"noresult.yaml": "experiments:\n  - name: x\n",
		"bad.yaml":      "experiments: [\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadManifest(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func sampleRows() []Row {
	bleu := 0.1234
	return []Row{
		{Name: "Baseline", DataSize: "-", Method: MethodBaseline, Rouge1: 0.3, Rouge2: 0.1, RougeL: 0.2},
		{Name: "LoRA-1k", DataSize: "1k", Method: MethodLoRA, Rouge1: 0.4, Rouge2: 0.2, RougeL: 0.3, BLEU: &bleu},
	}
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRows()); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatal("missing UTF-8 BOM")
	}
	records, err := csv.NewReader(bytes.NewReader(buf.Bytes()[3:])).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"实验", "数据量", "ROUGE-1", "ROUGE-2", "ROUGE-L", "BLEU"},
		{"Baseline", "-", "0.3000", "0.1000", "0.2000", "-"},
		{"LoRA-1k", "1k", "0.4000", "0.2000", "0.3000", "0.1234"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("csv (-want +got):\n%s", diff)
	}
}

func TestWriteTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteTable(&buf, sampleRows()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[2], "LoRA-1k") || !strings.Contains(lines[2], "0.3000") {
		t.Fatalf("unexpected row %q", lines[2])
	}
}

func TestScaleSeriesAndPlot(t *testing.T) {
	t.Parallel()

	rows := []Row{
		{Name: "Baseline", DataSize: "-", Method: MethodBaseline, RougeL: 0.2},
		{Name: "LoRA-1k", DataSize: "1k", Method: MethodLoRA, RougeL: 0.3},
		{Name: "LoRA-5k", DataSize: "5k", Method: MethodLoRA, RougeL: 0.35},
		{Name: "QLoRA-5k", DataSize: "5k", Method: MethodQLoRA, RougeL: 0.33},
	}
	m := &Manifest{}
	sizes, series := ScaleSeries(m, rows)
	if diff := cmp.Diff([]string{"1k", "5k"}, sizes); diff != "" {
		t.Fatalf("sizes (-want +got):\n%s", diff)
	}
	if len(series[MethodLoRA]) != 2 || len(series[MethodQLoRA]) != 1 || series[MethodQLoRA][0].X != 1 {
		t.Fatalf("series = %+v", series)
	}

	path := filepath.Join(t.TempDir(), "summary", "data_scale_comparison.png")
	if err := PlotScale(path, m, rows); err != nil {
		t.Fatalf("PlotScale: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("chart not written: %v", err)
	}

	if err := PlotScale(path, m, rows[:3]); !errors.Is(err, ErrNothingToPlot) {
		t.Fatalf("expected ErrNothingToPlot, got %v", err)
	}
}
