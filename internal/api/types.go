package api

import (
	"github.com/samcharles93/medtune/internal/dataset"
	"github.com/samcharles93/medtune/internal/prompt"
	"github.com/samcharles93/medtune/internal/sft"
)

type EncodeRequest struct {
	Examples  []dataset.Example `json:"examples"`
	MaxLength *int              `json:"max_length,omitempty"`
	Policy    string            `json:"policy,omitempty"`
}

type EncodedRow struct {
	SourceIndex   int    `json:"source_index"`
	InputIDs      []int  `json:"input_ids"`
	Labels        []int  `json:"labels"`
	AttentionMask []bool `json:"attention_mask"`
}

type EncodeResponse struct {
	ID        string       `json:"id"`
	Object    string       `json:"object"`
	CreatedAt int64        `json:"created_at"`
	MaxLength int          `json:"max_length"`
	Policy    string       `json:"policy"`
	Rows      []EncodedRow `json:"rows"`
	Report    sft.Report   `json:"report"`
}

type PromptsRequest struct {
	Examples []dataset.Example `json:"examples"`
}

type PromptsResponse struct {
	ID     string           `json:"id"`
	Object string           `json:"object"`
	Data   []prompt.Request `json:"data"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	MaxLength int    `json:"max_length"`
	PadID     int    `json:"pad_token_id"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
