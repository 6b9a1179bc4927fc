package main

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/medtune/internal/prompt"
	"github.com/samcharles93/medtune/internal/sft"
	"github.com/samcharles93/medtune/internal/version"
)

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "data_dir: /srv/medqa\nmax_length: 384\npolicy: abort\nseed: 7\nlog_format: json\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := loadConfigFile(path)
	if cfg.DataDir != "/srv/medqa" || cfg.Policy != "abort" || cfg.LogFormat != "json" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.MaxLength == nil || *cfg.MaxLength != 384 || cfg.Seed == nil || *cfg.Seed != 7 {
		t.Fatalf("pointer fields not set: %+v", cfg)
	}
	if got := loadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != (Config{}) {
		t.Fatalf("missing file gave %+v", got)
	}
}

func TestApplyEncodeConfigRespectsFlags(t *testing.T) {
	t.Parallel()

	maxLength, workers := int64(256), int64(4)
	cfg := Config{MaxLength: &maxLength, Workers: &workers, Policy: "abort"}

	run := func(args ...string) encodeSettings {
		var s encodeSettings
		cmd := &cli.Command{
			Name:  "encode",
			Flags: encodeFlags(&s),
			Action: func(ctx context.Context, c *cli.Command) error {
				applyEncodeConfig(c, cfg, &s)
				return nil
			},
		}
		if err := cmd.Run(context.Background(), append([]string{"encode"}, args...)); err != nil {
			t.Fatalf("run: %v", err)
		}
		return s
	}

	s := run()
	if s.maxLength != 256 || s.workers != 4 || s.policy != "abort" {
		t.Fatalf("config defaults not applied: %+v", s)
	}
	s = run("--max-length", "128", "--policy", "skip")
	if s.maxLength != 128 || s.policy != "skip" || s.workers != 4 {
		t.Fatalf("flags should win: %+v", s)
	}
}

func TestResolveDataPath(t *testing.T) {
	t.Setenv(envMedtuneDataDir, "/env/data")

	if got := resolveDataPath("", Config{}, "processed/train.json"); got != filepath.Join("/env/data", "processed/train.json") {
		t.Fatalf("env root: %s", got)
	}
	if got := resolveDataPath("", Config{DataDir: "/cfg"}, "raw"); got != filepath.Join("/cfg", "raw") {
		t.Fatalf("config root: %s", got)
	}
	if got := resolveDataPath("./x/../y.json", Config{DataDir: "/cfg"}, "raw"); got != "y.json" {
		t.Fatalf("flag value: %s", got)
	}
}

func TestResolveTokenizerPaths(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		opts     tokenizerOptions
		wantJSON string
		wantCfg  string
		wantErr  bool
	}{
		{"model dir", tokenizerOptions{modelDir: "/m"}, "/m/tokenizer.json", "/m/tokenizer_config.json", false},
		{"json only", tokenizerOptions{jsonPath: "/t/tok.json"}, "/t/tok.json", "/t/tokenizer_config.json", false},
		{"override config", tokenizerOptions{modelDir: "/m", configPath: "/c.json"}, "/m/tokenizer.json", "/c.json", false},
		{"nothing", tokenizerOptions{}, "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j, c, err := resolveTokenizerPaths(tc.opts)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v", err)
			}
			if j != tc.wantJSON || c != tc.wantCfg {
				t.Fatalf("got %s, %s", j, c)
			}
		})
	}
}

func TestParseSizes(t *testing.T) {
	t.Parallel()

	got, err := parseSizes([]string{"1k=1000", " 20k = 20000 ", "300"})
	if err != nil {
		t.Fatalf("parseSizes: %v", err)
	}
	want := map[string]int{"1k": 1000, "20k": 20000, "300": 300}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	for _, bad := range [][]string{{"1k=abc"}, {"=10"}, {"1k=0"}, {"a=1", "a=2"}, nil} {
		if _, err := parseSizes(bad); err == nil {
			t.Fatalf("parseSizes(%q) should fail", bad)
		}
	}
}

func TestWriteJSONL(t *testing.T) {
	t.Parallel()

	batch := &sft.Batch{
		InputIDs:      [][]int{{5, 6, 0}, {7, 0, 0}},
		Labels:        [][]int{{-100, 6, -100}, {7, -100, -100}},
		AttentionMask: [][]bool{{true, true, false}, {true, false, false}},
		SourceIndex:   []int{0, 2},
		MaxLength:     3,
	}
	path := filepath.Join(t.TempDir(), "out", "train.jsonl")
	if err := writeJSONL(path, batch); err != nil {
		t.Fatalf("writeJSONL: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	var rows []jsonlRow
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r jsonlRow
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		rows = append(rows, r)
	}
	if len(rows) != 2 || rows[1].SourceIndex != 2 || rows[1].Labels[0] != 7 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestWriteRequests(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prompts", "test.jsonl")
	reqs := []prompt.Request{{ID: "0", Prompt: "回答医疗健康问题\n问题：感冒\n回答："}}
	if err := writeRequests(path, reqs); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"id":"0"`) || strings.Count(string(raw), "\n") != 1 {
		t.Fatalf("unexpected file %q", raw)
	}
}

func TestAppHasSubcommands(t *testing.T) {
	t.Parallel()

	var names []string
	for _, c := range newApp().Commands {
		names = append(names, c.Name)
	}
	want := []string{"prepare", "subsets", "encode", "prompts", "evaluate", "summarize", "serve", "version"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestPrintVersion(t *testing.T) {
	t.Parallel()

	info := version.Info{Version: "v1.2.0", Commit: "0123456789abcdef", BuildTime: "2026-10-01T12:00:00Z", Modified: true}

	var text strings.Builder
	if err := printVersion(&text, info, false); err != nil {
		t.Fatalf("printVersion: %v", err)
	}
	if want := "medtune v1.2.0 (0123456789ab-dirty)\nbuilt 2026-10-01T12:00:00Z\n"; text.String() != want {
		t.Fatalf("text output = %q, want %q", text.String(), want)
	}

	var raw strings.Builder
	if err := printVersion(&raw, info, true); err != nil {
		t.Fatalf("printVersion json: %v", err)
	}
	var back version.Info
	if err := json.Unmarshal([]byte(raw.String()), &back); err != nil {
		t.Fatalf("decode json output: %v (%s)", err, raw.String())
	}
	if diff := cmp.Diff(info, back); diff != "" {
		t.Fatalf("json output mismatch (-want +got):\n%s", diff)
	}
}
