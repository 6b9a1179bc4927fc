// Package config loads the training run configuration shared between medtune
// and the external trainer.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid training config")

// Config mirrors the training yaml. Optional scalars are pointers so "not
// set" survives until ApplyDefaults.
type Config struct {
	ModelNameOrPath    string              `yaml:"model_name_or_path" json:"model_name_or_path"`
	QuantizationConfig *QuantizationConfig `yaml:"quantization_config,omitempty" json:"quantization_config,omitempty"`
	LoRA               LoRAConfig          `yaml:"lora_config" json:"lora_config"`
	Data               DataConfig          `yaml:"data_config" json:"data_config"`
	Training           TrainingArgs        `yaml:"training_args" json:"training_args"`
}

// QuantizationConfig is present only for QLoRA runs.
type QuantizationConfig struct {
	LoadIn4Bit            bool   `yaml:"load_in_4bit" json:"load_in_4bit"`
	Bnb4BitUseDoubleQuant *bool  `yaml:"bnb_4bit_use_double_quant,omitempty" json:"bnb_4bit_use_double_quant,omitempty"`
	Bnb4BitQuantType      string `yaml:"bnb_4bit_quant_type,omitempty" json:"bnb_4bit_quant_type,omitempty"`
}

type LoRAConfig struct {
	R             int      `yaml:"r" json:"r"`
	Alpha         int      `yaml:"lora_alpha" json:"lora_alpha"`
	Dropout       float64  `yaml:"lora_dropout" json:"lora_dropout"`
	TargetModules []string `yaml:"target_modules" json:"target_modules"`
	Bias          string   `yaml:"bias,omitempty" json:"bias,omitempty"`
}

type DataConfig struct {
	TrainFile       string `yaml:"train_file" json:"train_file"`
	ValidationFile  string `yaml:"validation_file" json:"validation_file"`
	TestFile        string `yaml:"test_file,omitempty" json:"test_file,omitempty"`
	MaxSourceLength int    `yaml:"max_source_length" json:"max_source_length"`
	MaxTargetLength int    `yaml:"max_target_length" json:"max_target_length"`
	MaxLength       int    `yaml:"max_length,omitempty" json:"max_length,omitempty"`
}

type TrainingArgs struct {
	OutputDir                 string   `yaml:"output_dir" json:"output_dir"`
	NumTrainEpochs            float64  `yaml:"num_train_epochs" json:"num_train_epochs"`
	PerDeviceTrainBatchSize   int      `yaml:"per_device_train_batch_size" json:"per_device_train_batch_size"`
	PerDeviceEvalBatchSize    *int     `yaml:"per_device_eval_batch_size,omitempty" json:"per_device_eval_batch_size,omitempty"`
	GradientAccumulationSteps *int     `yaml:"gradient_accumulation_steps,omitempty" json:"gradient_accumulation_steps,omitempty"`
	LearningRate              float64  `yaml:"learning_rate" json:"learning_rate"`
	WarmupSteps               *int     `yaml:"warmup_steps,omitempty" json:"warmup_steps,omitempty"`
	WarmupRatio               *float64 `yaml:"warmup_ratio,omitempty" json:"warmup_ratio,omitempty"`
	LoggingSteps              *int     `yaml:"logging_steps,omitempty" json:"logging_steps,omitempty"`
	SaveSteps                 *int     `yaml:"save_steps,omitempty" json:"save_steps,omitempty"`
	EvalSteps                 *int     `yaml:"eval_steps,omitempty" json:"eval_steps,omitempty"`
	SaveTotalLimit            *int     `yaml:"save_total_limit,omitempty" json:"save_total_limit,omitempty"`
	FP16                      *bool    `yaml:"fp16,omitempty" json:"fp16,omitempty"`
	EvaluationStrategy        string   `yaml:"evaluation_strategy,omitempty" json:"evaluation_strategy,omitempty"`
	LoadBestModelAtEnd        *bool    `yaml:"load_best_model_at_end,omitempty" json:"load_best_model_at_end,omitempty"`
	MetricForBestModel        string   `yaml:"metric_for_best_model,omitempty" json:"metric_for_best_model,omitempty"`
	GreaterIsBetter           *bool    `yaml:"greater_is_better,omitempty" json:"greater_is_better,omitempty"`
}

// Load reads, defaults and validates a training config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// QLoRA reports whether the run loads the base model quantised.
func (c *Config) QLoRA() bool {
	return c.QuantizationConfig != nil && c.QuantizationConfig.LoadIn4Bit
}

func (c *Config) ApplyDefaults() {
	if c.LoRA.Bias == "" {
		c.LoRA.Bias = "none"
	}
	if q := c.QuantizationConfig; q != nil {
		if q.Bnb4BitUseDoubleQuant == nil {
			q.Bnb4BitUseDoubleQuant = ptr(true)
		}
		if q.Bnb4BitQuantType == "" {
			q.Bnb4BitQuantType = "nf4"
		}
	}
	if c.Data.MaxLength == 0 {
		c.Data.MaxLength = c.Data.MaxSourceLength + c.Data.MaxTargetLength
	}

	t := &c.Training
	if t.PerDeviceEvalBatchSize == nil {
		t.PerDeviceEvalBatchSize = ptr(t.PerDeviceTrainBatchSize)
	}
	setDefault(&t.GradientAccumulationSteps, 1)
	setDefault(&t.LoggingSteps, 10)
	setDefault(&t.SaveSteps, 500)
	setDefault(&t.EvalSteps, 500)
	setDefault(&t.SaveTotalLimit, 3)
	setDefault(&t.FP16, true)
	setDefault(&t.LoadBestModelAtEnd, true)
	setDefault(&t.GreaterIsBetter, false)
	if t.EvaluationStrategy == "" {
		t.EvaluationStrategy = "steps"
	}
	if t.MetricForBestModel == "" {
		t.MetricForBestModel = "loss"
	}
}

func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.ModelNameOrPath) == "" {
		add("model_name_or_path is required")
	}
	if c.LoRA.R <= 0 {
		add("lora_config.r must be > 0, got %d", c.LoRA.R)
	}
	if c.LoRA.Alpha <= 0 {
		add("lora_config.lora_alpha must be > 0, got %d", c.LoRA.Alpha)
	}
	if c.LoRA.Dropout < 0 || c.LoRA.Dropout >= 1 {
		add("lora_config.lora_dropout must be in [0, 1), got %g", c.LoRA.Dropout)
	}
	if len(c.LoRA.TargetModules) == 0 {
		add("lora_config.target_modules is required")
	}
	switch c.LoRA.Bias {
	case "none", "all", "lora_only":
	default:
		add("lora_config.bias %q is not one of none, all, lora_only", c.LoRA.Bias)
	}

	if c.Data.TrainFile == "" {
		add("data_config.train_file is required")
	}
	if c.Data.ValidationFile == "" {
		add("data_config.validation_file is required")
	}
	if c.Data.MaxSourceLength <= 0 || c.Data.MaxTargetLength <= 0 {
		add("data_config max_source_length and max_target_length must be > 0")
	}
	if c.Data.MaxLength <= 0 {
		add("data_config.max_length must be > 0, got %d", c.Data.MaxLength)
	}

	t := c.Training
	if t.OutputDir == "" {
		add("training_args.output_dir is required")
	}
	if t.NumTrainEpochs <= 0 {
		add("training_args.num_train_epochs must be > 0")
	}
	if t.PerDeviceTrainBatchSize <= 0 {
		add("training_args.per_device_train_batch_size must be > 0")
	}
	if t.LearningRate <= 0 {
		add("training_args.learning_rate must be > 0")
	}
	if t.WarmupSteps != nil && t.WarmupRatio != nil {
		add("training_args: set warmup_steps or warmup_ratio, not both")
	}
	if t.WarmupRatio != nil && (*t.WarmupRatio < 0 || *t.WarmupRatio > 1) {
		add("training_args.warmup_ratio must be in [0, 1]")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

func setDefault[T any](p **T, v T) {
	if *p == nil {
		*p = ptr(v)
	}
}
