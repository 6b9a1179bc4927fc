package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the user defaults file (~/.config/medtune/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	ModelDir string `yaml:"model_dir"`

	MaxLength *int64 `yaml:"max_length"`
	Policy    string `yaml:"policy"`
	Workers   *int64 `yaml:"workers"`
	Seed      *int64 `yaml:"seed"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "medtune", "config.yaml")
}

func applyTokenizerConfig(c *cli.Command, cfg Config, o *tokenizerOptions) {
	if cfg.ModelDir != "" && !c.IsSet("model-dir") {
		o.modelDir = cfg.ModelDir
	}
}

func applyEncodeConfig(c *cli.Command, cfg Config, s *encodeSettings) {
	if cfg.MaxLength != nil && !c.IsSet("max-length") {
		s.maxLength = *cfg.MaxLength
	}
	if cfg.Policy != "" && !c.IsSet("policy") {
		s.policy = cfg.Policy
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		s.workers = *cfg.Workers
	}
}

func applySeedConfig(c *cli.Command, cfg Config, seed *int64) {
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	return loadConfigFile(path)
}

func loadConfigFile(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
