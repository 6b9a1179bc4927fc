package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const loraYAML = `
model_name_or_path: ./models/Qwen2.5-1.5B-Instruct
lora_config:
  r: 8
  lora_alpha: 32
  lora_dropout: 0.1
  target_modules: [q_proj, v_proj]
data_config:
  train_file: data/train.json
  validation_file: data/dev.json
  max_source_length: 256
  max_target_length: 256
training_args:
  output_dir: outputs/lora_1k
  num_train_epochs: 3
  per_device_train_batch_size: 4
  learning_rate: 2.0e-4
  warmup_ratio: 0.03
`

func TestParseAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(loraYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.LoRA.Bias != "none" {
		t.Fatalf("bias = %q", cfg.LoRA.Bias)
	}
	if cfg.Data.MaxLength != 512 {
		t.Fatalf("max_length = %d, want 512", cfg.Data.MaxLength)
	}
	tr := cfg.Training
	checks := []struct {
		name string
		got  int
		want int
	}{
		{"eval batch", *tr.PerDeviceEvalBatchSize, 4},
		{"grad accum", *tr.GradientAccumulationSteps, 1},
		{"logging", *tr.LoggingSteps, 10},
		{"save", *tr.SaveSteps, 500},
		{"eval", *tr.EvalSteps, 500},
		{"save limit", *tr.SaveTotalLimit, 3},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if !*tr.FP16 || tr.EvaluationStrategy != "steps" || tr.MetricForBestModel != "loss" {
		t.Fatalf("unexpected trainer defaults: %+v", tr)
	}
	if cfg.QLoRA() {
		t.Fatal("plain LoRA config reported as QLoRA")
	}
}

func TestParseQuantization(t *testing.T) {
	t.Parallel()

	src := loraYAML + "quantization_config:\n  load_in_4bit: true\n"
	cfg, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.QLoRA() {
		t.Fatal("expected QLoRA")
	}
	q := cfg.QuantizationConfig
	if q.Bnb4BitQuantType != "nf4" || !*q.Bnb4BitUseDoubleQuant {
		t.Fatalf("quantization defaults = %+v", q)
	}
}

func TestParseKeepsExplicitMaxLength(t *testing.T) {
	t.Parallel()

	src := strings.Replace(loraYAML, "max_target_length: 256", "max_target_length: 256\n  max_length: 384", 1)
	cfg, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Data.MaxLength != 384 {
		t.Fatalf("max_length = %d, want 384", cfg.Data.MaxLength)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		from string
		to   string
		msg  string
	}{
		{"zero rank", "r: 8", "r: 0", "lora_config.r"},
		{"missing model", "model_name_or_path: ./models/Qwen2.5-1.5B-Instruct", "", "model_name_or_path"},
		{"both warmups", "warmup_ratio: 0.03", "warmup_ratio: 0.03\n  warmup_steps: 100", "warmup_steps or warmup_ratio"},
		{"bad bias", "lora_dropout: 0.1", "lora_dropout: 0.1\n  bias: some", "bias"},
		{"no train file", "train_file: data/train.json", "train_file: \"\"", "train_file"},
		{"bad dropout", "lora_dropout: 0.1", "lora_dropout: 1.5", "lora_dropout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(strings.Replace(loraYAML, tc.from, tc.to, 1)))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("error %q does not mention %q", err, tc.msg)
			}
		})
	}
}

func TestLoadWrapsPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("lora_config:\n  r: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("expected error naming %s, got %v", path, err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
