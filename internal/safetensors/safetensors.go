// Package safetensors reads and writes the safetensors container used to hand
// encoded batches to the trainer.
package safetensors

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

const (
	DTypeI64  = "I64"
	DTypeBool = "BOOL"

	metadataKey = "__metadata__"
)

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo
	Metadata  map[string]string
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	headerLen, err := readU64(f)
	if err != nil {
		return nil, err
	}
	if headerLen > 100<<20 {
		return nil, fmt.Errorf("header too large: %d bytes", headerLen)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, err
	}

	var meta map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
		delete(raw, metadataKey)
	}

	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[1] < th.DataOffsets[0] {
			return nil, fmt.Errorf("tensor %s: invalid data_offsets", name)
		}
		tensors[name] = TensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		}
	}
	return &File{
		Path:      path,
		DataStart: int64(8 + headerLen),
		Tensors:   tensors,
		Metadata:  meta,
	}, nil
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	buf := make([]byte, t.End-t.Start)
	if len(buf) == 0 {
		return buf, t, nil
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	defer func() { _ = file.Close() }()

	if _, err := file.ReadAt(buf, f.DataStart+t.Start); err != nil {
		return nil, TensorInfo{}, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return buf, t, nil
}

// ReadTensorI64 returns a 2-D I64 tensor as rows.
func (f *File) ReadTensorI64(name string) ([][]int, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, err
	}
	rows, cols, err := matrixShape(name, info, DTypeI64, len(raw), 8)
	if err != nil {
		return nil, err
	}
	out := make([][]int, rows)
	for r := range out {
		out[r] = make([]int, cols)
		for c := range out[r] {
			out[r][c] = int(int64(binary.LittleEndian.Uint64(raw[(r*cols+c)*8:])))
		}
	}
	return out, nil
}

// ReadTensorBool returns a 2-D BOOL tensor as rows.
func (f *File) ReadTensorBool(name string) ([][]bool, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, err
	}
	rows, cols, err := matrixShape(name, info, DTypeBool, len(raw), 1)
	if err != nil {
		return nil, err
	}
	out := make([][]bool, rows)
	for r := range out {
		out[r] = make([]bool, cols)
		for c := range out[r] {
			out[r][c] = raw[r*cols+c] != 0
		}
	}
	return out, nil
}

func matrixShape(name string, info TensorInfo, dtype string, size, elem int) (int, int, error) {
	if info.DType != dtype {
		return 0, 0, fmt.Errorf("tensor %s: dtype %s, want %s", name, info.DType, dtype)
	}
	if len(info.Shape) != 2 {
		return 0, 0, fmt.Errorf("tensor %s: shape %v is not 2-D", name, info.Shape)
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return 0, 0, fmt.Errorf("tensor %s: %w", name, err)
	}
	if size != n*elem {
		return 0, 0, fmt.Errorf("tensor %s: invalid %s data size", name, dtype)
	}
	return info.Shape[0], info.Shape[1], nil
}

func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if d > 0 && n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
