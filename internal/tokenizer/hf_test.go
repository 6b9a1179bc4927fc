package tokenizer

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testTokenizerJSON = `{
	"model":{
		"type":"BPE",
		"vocab":{"h":0,"i":1,"hi":2,"t":4,"e":5,"s":6,"te":7,"st":8},
		"merges":["h i",["t","e"]]
	},
	"added_tokens":[
		{"id":3,"content":"<|im_end|>","special":true},
		{"id":9,"content":"<|endoftext|>","special":true}
	]
}`

func loadTestTokenizer(t *testing.T, cfg string) *HFTokenizer {
	t.Helper()
	var raw []byte
	if cfg != "" {
		raw = []byte(cfg)
	}
	tok, err := LoadHFTokenizerBytes([]byte(testTokenizerJSON), raw)
	if err != nil {
		t.Fatalf("load tokenizer: %v", err)
	}
	return tok
}

func TestParseHFTokenizerConfigBytes(t *testing.T) {
	t.Parallel()

	tokJSON := []byte(`{
		"model":{
			"type":"BPE",
			"vocab":{"<s>":1,"</s>":2,"<unk>":3},
			"merges":[],
			"unk_token":"<unk>"
		},
		"post_processor":{
			"processors":[
				{"type":"TemplateProcessing","special_tokens":{"bos":{"ids":[7]}}}
			]
		}
	}`)
	tokConfig := []byte(`{
		"add_bos_token":false,
		"add_eos_token":true,
		"bos_token":"<s>",
		"eos_token":{"content":"</s>","lstrip":false},
		"unk_token":"<unk>",
		"chat_template":"{{ messages }}"
	}`)

	cfg, err := ParseHFTokenizerConfigBytes(tokJSON, tokConfig)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.AddBOS {
		t.Fatalf("explicit add_bos_token=false must survive the template processor")
	}
	if !cfg.AddEOS {
		t.Fatalf("expected AddEOS=true")
	}
	if cfg.BOSTokenID != 7 {
		t.Fatalf("unexpected BOS id: got %d want 7", cfg.BOSTokenID)
	}
	if cfg.EOSTokenID != 2 {
		t.Fatalf("unexpected EOS id: got %d want 2", cfg.EOSTokenID)
	}
	if cfg.PADTokenID != 2 {
		t.Fatalf("expected pad to fall back to eos: got %d want 2", cfg.PADTokenID)
	}
	if cfg.UNKTokenID != 3 {
		t.Fatalf("unexpected UNK id: got %d want 3", cfg.UNKTokenID)
	}
	if cfg.ChatTemplate != "{{ messages }}" {
		t.Fatalf("unexpected chat template: %q", cfg.ChatTemplate)
	}
}

func TestParseHFTokenizerConfigBytesTemplateBOS(t *testing.T) {
	t.Parallel()

	const vocab = `"model":{"type":"BPE","vocab":{"<s>":1,"</s>":2},"merges":[]}`
	cases := []struct {
		name      string
		tokJSON   string
		tokConfig string
		wantID    int
		wantAdd   bool
	}{
		{
			name: "single template leads with bos",
			tokJSON: `{` + vocab + `,"post_processor":{"type":"TemplateProcessing",
				"single":[{"SpecialToken":{"id":"<s>","type_id":0}},{"Sequence":{"id":"A","type_id":0}},{"SpecialToken":{"id":"</s>","type_id":0}}],
				"special_tokens":{"<s>":{"id":"<s>","ids":[1]},"</s>":{"id":"</s>","ids":[2]}}}}`,
			wantID:  1,
			wantAdd: true,
		},
		{
			name: "nested in a sequence processor",
			tokJSON: `{` + vocab + `,"post_processor":{"type":"Sequence","processors":[
				{"type":"ByteLevel"},
				{"type":"TemplateProcessing",
				 "single":[{"SpecialToken":{"id":"<s>","type_id":0}},{"Sequence":{"id":"A","type_id":0}}],
				 "special_tokens":{"</s>":{"id":"</s>","ids":[2]},"<s>":{"id":"<s>","ids":[1]}}}]}}`,
			wantID:  1,
			wantAdd: true,
		},
		{
			name: "no single template prefers the configured bos token",
			tokJSON: `{` + vocab + `,"post_processor":{"type":"TemplateProcessing",
				"special_tokens":{"</s>":{"id":"</s>","ids":[2]},"<s>":{"id":"<s>","ids":[1]}}}}`,
			tokConfig: `{"bos_token":"<s>"}`,
			wantID:    1,
			wantAdd:   true,
		},
		{
			name: "template without a leading special token leaves bos alone",
			tokJSON: `{` + vocab + `,"post_processor":{"type":"TemplateProcessing",
				"single":[{"Sequence":{"id":"A","type_id":0}},{"SpecialToken":{"id":"</s>","type_id":0}}],
				"special_tokens":{"</s>":{"id":"</s>","ids":[2]}}}}`,
			tokConfig: `{"bos_token":"<s>"}`,
			wantID:    1,
			wantAdd:   false,
		},
		{
			name: "explicit add_bos_token false wins",
			tokJSON: `{` + vocab + `,"post_processor":{"type":"TemplateProcessing",
				"single":[{"SpecialToken":{"id":"<s>","type_id":0}},{"Sequence":{"id":"A","type_id":0}}],
				"special_tokens":{"<s>":{"id":"<s>","ids":[1]}}}}`,
			tokConfig: `{"add_bos_token":false}`,
			wantID:    1,
			wantAdd:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var cfgBytes []byte
			if tc.tokConfig != "" {
				cfgBytes = []byte(tc.tokConfig)
			}
			// Special tokens live in a map; resolution must not depend on its order.
			for range 50 {
				cfg, err := ParseHFTokenizerConfigBytes([]byte(tc.tokJSON), cfgBytes)
				if err != nil {
					t.Fatalf("parse config: %v", err)
				}
				if cfg.BOSTokenID != tc.wantID || cfg.AddBOS != tc.wantAdd {
					t.Fatalf("bos = (%d, add=%v), want (%d, add=%v)", cfg.BOSTokenID, cfg.AddBOS, tc.wantID, tc.wantAdd)
				}
			}
		})
	}
}

func TestEncodeSegmentSkipsBOSAndEOS(t *testing.T) {
	t.Parallel()

	tok := loadTestTokenizer(t, `{"add_bos_token":true,"add_eos_token":true,"bos_token":"<|endoftext|>","eos_token":"<|im_end|>"}`)

	full, err := tok.Encode("hi")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if diff := cmp.Diff([]int{9, 2, 3}, full); diff != "" {
		t.Fatalf("full ids mismatch (-want +got):\n%s", diff)
	}
	seg, err := tok.EncodeSegment("hi")
	if err != nil {
		t.Fatalf("encode segment: %v", err)
	}
	if diff := cmp.Diff([]int{2}, seg); diff != "" {
		t.Fatalf("segment ids mismatch (-want +got):\n%s", diff)
	}
	if got := tok.LeadingBOS(); got != 9 {
		t.Fatalf("leading bos: got %d want 9", got)
	}
	if got := loadTestTokenizer(t, "").LeadingBOS(); got != -1 {
		t.Fatalf("leading bos without config: got %d want -1", got)
	}
}

func TestParseHFTokenizerConfigBytesRejectsUnsupportedModel(t *testing.T) {
	t.Parallel()

	tokJSON := []byte(`{"model":{"type":"WordPiece","vocab":{},"merges":[]}}`)
	_, err := ParseHFTokenizerConfigBytes(tokJSON, nil)
	if err == nil {
		t.Fatalf("expected unsupported tokenizer model error")
	}
}

func TestEncodeMergesAndSpecials(t *testing.T) {
	t.Parallel()

	tok := loadTestTokenizer(t, `{"eos_token":"<|im_end|>","pad_token":"<|endoftext|>"}`)

	ids, err := tok.Encode("hi<|im_end|>test")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if diff := cmp.Diff([]int{2, 3, 7, 6, 4}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	text, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if text != "hi<|im_end|>test" {
		t.Fatalf("round trip: got %q", text)
	}

	if tok.PadID() != 9 {
		t.Fatalf("pad id: got %d want 9", tok.PadID())
	}
	if tok.EOSID() != 3 {
		t.Fatalf("eos id: got %d want 3", tok.EOSID())
	}
	if tok.EndOfTurn() != "<|im_end|>" {
		t.Fatalf("end of turn: got %q", tok.EndOfTurn())
	}
}

func TestEncodeUnknownSymbol(t *testing.T) {
	t.Parallel()

	tok := loadTestTokenizer(t, "")
	if _, err := tok.Encode("xyz"); err == nil {
		t.Fatalf("expected unknown token error")
	}
	if tok.PadID() != -1 || tok.EndOfTurn() != "" {
		t.Fatalf("expected no pad/eos without config: pad=%d eot=%q", tok.PadID(), tok.EndOfTurn())
	}
}

func TestDecodeOutOfRange(t *testing.T) {
	t.Parallel()

	tok := loadTestTokenizer(t, "")
	if _, err := tok.Decode([]int{42}); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestEncodeConcurrent(t *testing.T) {
	t.Parallel()

	tok := loadTestTokenizer(t, "")
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := tok.Encode("hitest")
			if err != nil {
				errs <- err
				return
			}
			if len(ids) == 0 {
				errs <- errors.New("empty encoding")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent encode: %v", err)
	}
}

func TestBytesToUnicodeIsBijective(t *testing.T) {
	t.Parallel()

	enc, dec := bytesToUnicode()
	if len(enc) != 256 || len(dec) != 256 {
		t.Fatalf("table sizes: enc=%d dec=%d", len(enc), len(dec))
	}
	for b := 0; b < 256; b++ {
		if dec[enc[byte(b)]] != byte(b) {
			t.Fatalf("byte %d does not round trip", b)
		}
	}
	if enc[' '] != "Ġ" {
		t.Fatalf("space maps to %q, want Ġ", enc[' '])
	}
}
