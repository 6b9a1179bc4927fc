package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/medtune/internal/logger"
	"github.com/samcharles93/medtune/internal/tokenizer"
)

const envMedtuneDataDir = "MEDTUNE_DATA_DIR"

// dataDir returns the configured data root: the config file value, then
// MEDTUNE_DATA_DIR, then ./data.
func dataDir(cfg Config) string {
	if d := strings.TrimSpace(cfg.DataDir); d != "" {
		return d
	}
	if d := strings.TrimSpace(os.Getenv(envMedtuneDataDir)); d != "" {
		return d
	}
	return "data"
}

// resolveDataPath returns flagValue when set, otherwise rel under the data root.
func resolveDataPath(flagValue string, cfg Config, rel string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return filepath.Clean(v)
	}
	return filepath.Join(dataDir(cfg), rel)
}

func resolveTokenizerPaths(o tokenizerOptions) (string, string, error) {
	jsonPath := strings.TrimSpace(o.jsonPath)
	configPath := strings.TrimSpace(o.configPath)
	dir := strings.TrimSpace(o.modelDir)
	if jsonPath == "" {
		if dir == "" {
			return "", "", fmt.Errorf("--model-dir or --tokenizer-json is required")
		}
		jsonPath = filepath.Join(dir, "tokenizer.json")
	}
	if configPath == "" {
		if dir == "" {
			dir = filepath.Dir(jsonPath)
		}
		configPath = filepath.Join(dir, "tokenizer_config.json")
	}
	return jsonPath, configPath, nil
}

func loadTokenizer(log logger.Logger, o tokenizerOptions) (*tokenizer.HFTokenizer, error) {
	jsonPath, configPath, err := resolveTokenizerPaths(o)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.LoadHFTokenizer(jsonPath, configPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	cfg := tok.Config()
	log.Info("tokenizer loaded",
		"path", jsonPath,
		"vocab", tok.VocabSize(),
		"pad_id", cfg.PADTokenID,
		"eos_id", cfg.EOSTokenID,
		"end_of_turn", tok.EndOfTurn(),
	)
	return tok, nil
}
