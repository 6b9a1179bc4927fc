package tokenizer

// Tokenizer defines the minimal interface used by the encoder and the CLI.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}

// Special exposes the reserved ids a tokenizer resolved from its config.
// Ids are -1 when the tokenizer does not define them.
type Special interface {
	PadID() int
	EOSID() int
	EndOfTurn() string
}

// SegmentEncoder is implemented by tokenizers that wrap Encode output in
// BOS/EOS tokens. EncodeSegment skips that wrapping and LeadingBOS reports
// the id Encode would prepend, or -1.
type SegmentEncoder interface {
	EncodeSegment(text string) ([]int, error)
	LeadingBOS() int
}
