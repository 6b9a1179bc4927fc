package tokenizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// Config summarises the special-token setup of a Hugging Face tokenizer.
type Config struct {
	Model        string
	AddBOS       bool
	AddEOS       bool
	BOSTokenID   int
	EOSTokenID   int
	PADTokenID   int
	UNKTokenID   int
	BOSToken     string
	EOSToken     string
	PADToken     string
	ChatTemplate string
}

type hfTokenizerConfig struct {
	AddBOS       *bool      `json:"add_bos_token"`
	AddEOS       *bool      `json:"add_eos_token"`
	BOS          tokenField `json:"bos_token"`
	EOS          tokenField `json:"eos_token"`
	PAD          tokenField `json:"pad_token"`
	UNK          tokenField `json:"unk_token"`
	ChatTemplate any        `json:"chat_template"`
}

// tokenField accepts both "<|im_end|>" and {"content":"<|im_end|>", ...}.
type tokenField string

func (f *tokenField) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = tokenField(s)
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("special token: %w", err)
	}
	*f = tokenField(obj.Content)
	return nil
}

// ParseHFTokenizerConfigBytes resolves the special-token configuration from
// tokenizer.json and an optional tokenizer_config.json.
func ParseHFTokenizerConfigBytes(tokJSON, tokConfig []byte) (Config, error) {
	var tj hfTokenizerJSON
	if err := json.Unmarshal(tokJSON, &tj); err != nil {
		return Config{}, fmt.Errorf("parse tokenizer.json: %w", err)
	}
	if strings.ToUpper(tj.Model.Type) != "BPE" {
		return Config{}, fmt.Errorf("unsupported tokenizer model: %s", tj.Model.Type)
	}
	var hc hfTokenizerConfig
	if len(tokConfig) > 0 {
		if err := json.Unmarshal(tokConfig, &hc); err != nil {
			return Config{}, fmt.Errorf("parse tokenizer_config.json: %w", err)
		}
	}

	lookup := func(tok string) int {
		if tok == "" {
			return -1
		}
		for _, at := range tj.AddedTokens {
			if at.Content == tok {
				return at.ID
			}
		}
		if id, ok := tj.Model.Vocab[tok]; ok {
			return id
		}
		return -1
	}

	cfg := Config{
		Model:      strings.ToUpper(tj.Model.Type),
		AddBOS:     hc.AddBOS != nil && *hc.AddBOS,
		AddEOS:     hc.AddEOS != nil && *hc.AddEOS,
		BOSToken:   string(hc.BOS),
		EOSToken:   string(hc.EOS),
		PADToken:   string(hc.PAD),
		BOSTokenID: lookup(string(hc.BOS)),
		EOSTokenID: lookup(string(hc.EOS)),
		PADTokenID: lookup(string(hc.PAD)),
		UNKTokenID: -1,
	}
	unk := string(hc.UNK)
	if unk == "" {
		unk = tj.Model.UnkToken
	}
	cfg.UNKTokenID = lookup(unk)

	// TemplateProcessing post-processors carry the BOS id the model was trained with.
	processors := append([]hfPostProcessor{tj.PostProcessor.hfPostProcessor}, tj.PostProcessor.Processors...)
	for _, proc := range processors {
		if proc.Type != "TemplateProcessing" {
			continue
		}
		if id, ok := templateBOS(proc, cfg.BOSToken); ok {
			cfg.BOSTokenID = id
			if hc.AddBOS == nil {
				cfg.AddBOS = true
			}
			break
		}
	}

	if cfg.PADTokenID < 0 && cfg.EOSTokenID >= 0 {
		cfg.PADTokenID = cfg.EOSTokenID
		cfg.PADToken = cfg.EOSToken
	}
	if tpl, ok := hc.ChatTemplate.(string); ok {
		cfg.ChatTemplate = tpl
	}
	return cfg, nil
}

// templateBOS picks the special token a TemplateProcessing step prepends to a
// single sequence. Without a single template it falls back to the entry named
// bosToken, then to the first key in sorted order.
func templateBOS(proc hfPostProcessor, bosToken string) (int, bool) {
	first := func(key string) (int, bool) {
		spec, ok := proc.SpecialTokens[key]
		if !ok || len(spec.IDs) == 0 {
			return 0, false
		}
		return spec.IDs[0], true
	}
	if len(proc.Single) > 0 {
		lead := proc.Single[0].SpecialToken
		if lead == nil {
			return 0, false
		}
		return first(lead.ID)
	}
	if id, ok := first(bosToken); ok {
		return id, true
	}
	keys := make([]string, 0, len(proc.SpecialTokens))
	for k := range proc.SpecialTokens {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if id, ok := first(k); ok {
			return id, true
		}
	}
	return 0, false
}
