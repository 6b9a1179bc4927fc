package tokenizer

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// HFTokenizer is a byte-level BPE tokenizer loaded from a Hugging Face
// tokenizer.json. It is safe for concurrent use.
type HFTokenizer struct {
	encoder      map[string]int
	decoder      []string
	ranks        map[Pair]int
	byteEncoder  map[byte]string
	byteDecoder  map[string]byte
	pattern      *regexp.Regexp
	ignoreMerges bool
	specials     []string
	specialIDs   map[int]bool
	cfg          Config

	mu    sync.RWMutex
	cache map[string][]string
}

type hfTokenizerJSON struct {
	Model struct {
		Type         string         `json:"type"`
		Vocab        map[string]int `json:"vocab"`
		Merges       []any          `json:"merges"`
		IgnoreMerges bool           `json:"ignore_merges"`
		UnkToken     string         `json:"unk_token"`
	} `json:"model"`
	PreTokenizer  hfPreTokenizer `json:"pre_tokenizer"`
	PostProcessor struct {
		hfPostProcessor
		Processors []hfPostProcessor `json:"processors"`
	} `json:"post_processor"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

type hfPostProcessor struct {
	Type   string `json:"type"`
	Single []struct {
		SpecialToken *struct {
			ID string `json:"id"`
		} `json:"SpecialToken"`
		Sequence *struct {
			ID string `json:"id"`
		} `json:"Sequence"`
	} `json:"single"`
	SpecialTokens map[string]struct {
		IDs []int `json:"ids"`
	} `json:"special_tokens"`
}

type hfPreTokenizer struct {
	Type          string    `json:"type"`
	Pattern       hfPattern `json:"pattern"`
	Pretokenizers []struct {
		Type    string    `json:"type"`
		Pattern hfPattern `json:"pattern"`
	} `json:"pretokenizers"`
}

type hfPattern struct {
	Regex string `json:"Regex"`
}

// LoadHFTokenizer reads tokenizer.json and, when tokConfig is non-empty,
// tokenizer_config.json from disk.
func LoadHFTokenizer(tokJSON, tokConfig string) (*HFTokenizer, error) {
	data, err := os.ReadFile(tokJSON)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer.json: %w", err)
	}
	var cfg []byte
	if tokConfig != "" {
		cfg, err = os.ReadFile(tokConfig)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer_config.json: %w", err)
		}
	}
	return LoadHFTokenizerBytes(data, cfg)
}

func LoadHFTokenizerBytes(tokJSON []byte, tokConfig []byte) (*HFTokenizer, error) {
	cfg, err := ParseHFTokenizerConfigBytes(tokJSON, tokConfig)
	if err != nil {
		return nil, err
	}
	var tj hfTokenizerJSON
	if err := json.Unmarshal(tokJSON, &tj); err != nil {
		return nil, err
	}

	encoder := make(map[string]int, len(tj.Model.Vocab)+len(tj.AddedTokens))
	maxID := -1
	for tok, id := range tj.Model.Vocab {
		encoder[tok] = id
		maxID = max(maxID, id)
	}
	for _, at := range tj.AddedTokens {
		encoder[at.Content] = at.ID
		maxID = max(maxID, at.ID)
	}
	decoder := make([]string, maxID+1)
	for tok, id := range encoder {
		decoder[id] = tok
	}

	specials := make([]string, 0, len(tj.AddedTokens))
	specialIDs := make(map[int]bool, len(tj.AddedTokens))
	for _, at := range tj.AddedTokens {
		specials = append(specials, at.Content)
		specialIDs[at.ID] = true
	}
	for _, tok := range decoder {
		if isSpecialToken(tok) {
			specials = append(specials, tok)
			specialIDs[encoder[tok]] = true
		}
	}
	specials = longestFirst(specials)

	byteEncoder, byteDecoder := bytesToUnicode()
	return &HFTokenizer{
		encoder:      encoder,
		decoder:      decoder,
		ranks:        parseMerges(tj.Model.Merges),
		byteEncoder:  byteEncoder,
		byteDecoder:  byteDecoder,
		pattern:      buildHFPattern(tj.PreTokenizer),
		ignoreMerges: tj.Model.IgnoreMerges,
		specials:     specials,
		specialIDs:   specialIDs,
		cfg:          cfg,
		cache:        make(map[string][]string),
	}, nil
}

// Encode tokenizes text as a full sequence, adding BOS and EOS when the
// tokenizer config asks for them.
func (t *HFTokenizer) Encode(text string) ([]int, error) {
	body, err := t.EncodeSegment(text)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(body)+2)
	if bos := t.LeadingBOS(); bos >= 0 {
		ids = append(ids, bos)
	}
	ids = append(ids, body...)
	if t.cfg.AddEOS && t.cfg.EOSTokenID >= 0 {
		ids = append(ids, t.cfg.EOSTokenID)
	}
	return ids, nil
}

// EncodeSegment tokenizes text without adding BOS or EOS. Special tokens
// written in the text are still matched.
func (t *HFTokenizer) EncodeSegment(text string) ([]int, error) {
	var ids []int
	for _, part := range splitSpecials(text, t.specials) {
		if part.isSpecial {
			ids = append(ids, t.encoder[part.text])
			continue
		}
		for _, piece := range t.pattern.FindAllString(part.text, -1) {
			for _, sym := range t.bpe(t.byteEncode(piece)) {
				id, ok := t.encoder[sym]
				if !ok {
					if t.cfg.UNKTokenID >= 0 {
						ids = append(ids, t.cfg.UNKTokenID)
						continue
					}
					return nil, fmt.Errorf("unknown token: %q", sym)
				}
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// LeadingBOS returns the id Encode prepends, or -1 when it prepends nothing.
func (t *HFTokenizer) LeadingBOS() int {
	if t.cfg.AddBOS && t.cfg.BOSTokenID >= 0 {
		return t.cfg.BOSTokenID
	}
	return -1
}

func (t *HFTokenizer) Decode(ids []int) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
		token := t.decoder[id]
		if t.specialIDs[id] {
			b = append(b, token...)
			continue
		}
		for _, r := range token {
			if by, ok := t.byteDecoder[string(r)]; ok {
				b = append(b, by)
			} else {
				b = append(b, string(r)...)
			}
		}
	}
	return string(b), nil
}

func (t *HFTokenizer) Config() Config { return t.cfg }
func (t *HFTokenizer) PadID() int     { return t.cfg.PADTokenID }
func (t *HFTokenizer) EOSID() int     { return t.cfg.EOSTokenID }

// EndOfTurn returns the text of the end-of-sequence token, or "" when the
// tokenizer config does not name one.
func (t *HFTokenizer) EndOfTurn() string {
	if t.cfg.EOSTokenID < 0 {
		return ""
	}
	return t.TokenString(t.cfg.EOSTokenID)
}

func (t *HFTokenizer) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

func (t *HFTokenizer) VocabSize() int { return len(t.decoder) }

func (t *HFTokenizer) byteEncode(s string) string {
	var b strings.Builder
	for _, by := range []byte(s) {
		b.WriteString(t.byteEncoder[by])
	}
	return b.String()
}

func (t *HFTokenizer) bpe(token string) []string {
	t.mu.RLock()
	cached, ok := t.cache[token]
	t.mu.RUnlock()
	if ok {
		return cached
	}

	var word []string
	if _, known := t.encoder[token]; known && t.ignoreMerges {
		word = []string{token}
	} else {
		word = mergeWord(splitRunes(token), t.ranks)
	}

	t.mu.Lock()
	t.cache[token] = word
	t.mu.Unlock()
	return word
}

func parseMerges(raw []any) map[Pair]int {
	ranks := make(map[Pair]int, len(raw))
	rank := 0
	for _, entry := range raw {
		var a, b string
		switch v := entry.(type) {
		case string:
			line := strings.TrimSpace(v)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.Split(line, " ")
			if len(parts) != 2 {
				continue
			}
			a, b = parts[0], parts[1]
		case []any:
			if len(v) != 2 {
				continue
			}
			var aok, bok bool
			a, aok = v[0].(string)
			b, bok = v[1].(string)
			if !aok || !bok {
				continue
			}
		default:
			continue
		}
		p := Pair{A: a, B: b}
		if _, dup := ranks[p]; !dup {
			ranks[p] = rank
			rank++
		}
	}
	return ranks
}

func buildHFPattern(pre hfPreTokenizer) *regexp.Regexp {
	pat := `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`
	switch {
	case pre.Type == "Split" && pre.Pattern.Regex != "":
		pat = pre.Pattern.Regex
	case pre.Type == "Sequence":
		for _, p := range pre.Pretokenizers {
			if p.Type == "Split" && p.Pattern.Regex != "" {
				pat = p.Pattern.Regex
				break
			}
		}
	}
	// Qwen/Llama3 patterns use lookahead, which Go regexp lacks.
	if strings.Contains(pat, `(?!\S)`) || strings.Contains(pat, "(?i:") {
		pat = `(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return regexp.MustCompile(`'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`)
	}
	return re
}

func longestFirst(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, tok := range tokens {
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}
