package sft

import (
	"strconv"

	"github.com/samcharles93/medtune/internal/safetensors"
)

// Tensor names written by WriteSafetensors.
const (
	TensorInputIDs      = "input_ids"
	TensorLabels        = "labels"
	TensorAttentionMask = "attention_mask"
	TensorSourceIndex   = "source_index"
)

// Tensors packs the batch as I64/BOOL matrices. SourceIndex is stored as a
// (Len(), 1) I64 tensor.
func (b *Batch) Tensors() ([]safetensors.Tensor, error) {
	ids, err := safetensors.Int64Matrix(TensorInputIDs, b.InputIDs, b.MaxLength)
	if err != nil {
		return nil, err
	}
	labels, err := safetensors.Int64Matrix(TensorLabels, b.Labels, b.MaxLength)
	if err != nil {
		return nil, err
	}
	mask, err := safetensors.BoolMatrix(TensorAttentionMask, b.AttentionMask, b.MaxLength)
	if err != nil {
		return nil, err
	}
	src := make([][]int, len(b.SourceIndex))
	for i, idx := range b.SourceIndex {
		src[i] = []int{idx}
	}
	source, err := safetensors.Int64Matrix(TensorSourceIndex, src, 1)
	if err != nil {
		return nil, err
	}
	return []safetensors.Tensor{ids, labels, mask, source}, nil
}

// WriteSafetensors writes the batch to path with the encoder settings in the
// header metadata.
func (b *Batch) WriteSafetensors(path string, opts Options, extra map[string]string) error {
	tensors, err := b.Tensors()
	if err != nil {
		return err
	}
	meta := map[string]string{
		"format":       "medtune-sft",
		"max_length":   strconv.Itoa(b.MaxLength),
		"pad_token_id": strconv.Itoa(opts.PadID),
		"ignore_index": strconv.Itoa(IgnoreIndex),
		"rows":         strconv.Itoa(b.Len()),
	}
	for k, v := range extra {
		meta[k] = v
	}
	return safetensors.WriteFile(path, tensors, meta)
}

// ReadSafetensors loads a batch written by WriteSafetensors.
func ReadSafetensors(path string) (*Batch, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}
	b := &Batch{}
	if b.InputIDs, err = f.ReadTensorI64(TensorInputIDs); err != nil {
		return nil, err
	}
	if b.Labels, err = f.ReadTensorI64(TensorLabels); err != nil {
		return nil, err
	}
	if b.AttentionMask, err = f.ReadTensorBool(TensorAttentionMask); err != nil {
		return nil, err
	}
	src, err := f.ReadTensorI64(TensorSourceIndex)
	if err != nil {
		return nil, err
	}
	b.SourceIndex = make([]int, len(src))
	for i, row := range src {
		b.SourceIndex[i] = row[0]
	}
	if info, ok := f.Tensor(TensorInputIDs); ok && len(info.Shape) == 2 {
		b.MaxLength = info.Shape[1]
	}
	return b, nil
}
