package safetensors

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// Tensor is an in-memory tensor ready to be written.
type Tensor struct {
	Name  string
	DType string
	Shape []int
	Data  []byte
}

// Int64Matrix packs equal-width rows into a little-endian I64 tensor.
func Int64Matrix(name string, rows [][]int, cols int) (Tensor, error) {
	data := make([]byte, 0, len(rows)*cols*8)
	for i, row := range rows {
		if len(row) != cols {
			return Tensor{}, fmt.Errorf("tensor %s: row %d has %d columns, want %d", name, i, len(row), cols)
		}
		for _, v := range row {
			data = binary.LittleEndian.AppendUint64(data, uint64(int64(v)))
		}
	}
	return Tensor{Name: name, DType: DTypeI64, Shape: []int{len(rows), cols}, Data: data}, nil
}

// BoolMatrix packs equal-width rows into a BOOL tensor, one byte per element.
func BoolMatrix(name string, rows [][]bool, cols int) (Tensor, error) {
	data := make([]byte, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return Tensor{}, fmt.Errorf("tensor %s: row %d has %d columns, want %d", name, i, len(row), cols)
		}
		for _, v := range row {
			if v {
				data = append(data, 1)
			} else {
				data = append(data, 0)
			}
		}
	}
	return Tensor{Name: name, DType: DTypeBool, Shape: []int{len(rows), cols}, Data: data}, nil
}

// Write serialises tensors in order. The header is space-padded to a
// multiple of 8 bytes.
func Write(w io.Writer, tensors []Tensor, metadata map[string]string) error {
	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var offset int64
	for _, t := range tensors {
		if t.Name == "" || t.Name == metadataKey {
			return fmt.Errorf("invalid tensor name %q", t.Name)
		}
		if _, dup := header[t.Name]; dup {
			return fmt.Errorf("duplicate tensor %q", t.Name)
		}
		end := offset + int64(len(t.Data))
		header[t.Name] = tensorHeader{DType: t.DType, Shape: t.Shape, DataOffsets: []int64{offset, end}}
		offset = end
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if pad := len(headerBytes) % 8; pad != 0 {
		headerBytes = append(headerBytes, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	bw := bufio.NewWriter(w)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := bw.Write(headerBytes); err != nil {
		return err
	}
	for _, t := range tensors {
		if _, err := bw.Write(t.Data); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes tensors to path through a temporary file and rename.
func WriteFile(path string, tensors []Tensor, metadata map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".safetensors-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := Write(tmp, tensors, metadata); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
