// Package report collects evaluation results across experiments into tables
// and charts.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Method string

const (
	MethodBaseline Method = "baseline"
	MethodLoRA     Method = "lora"
	MethodQLoRA    Method = "qlora"
)

// Experiment is one manifest entry. Results is resolved against the
// manifest's directory when relative.
type Experiment struct {
	Name     string `yaml:"name"`
	Results  string `yaml:"results"`
	DataSize string `yaml:"data_size"`
	Method   Method `yaml:"method,omitempty"`
}

type Manifest struct {
	Experiments []Experiment `yaml:"experiments"`
	// Sizes orders the x axis of the scale chart. Defaults to the order in
	// which sizes first appear among LoRA and QLoRA experiments.
	Sizes []string `yaml:"sizes,omitempty"`

	dir string
}

// DefaultManifest is the baseline plus LoRA and QLoRA at 1k, 5k and 10k.
func DefaultManifest() *Manifest {
	m := &Manifest{Experiments: []Experiment{
		{Name: "Baseline", Results: "outputs/baseline/eval_results.json", DataSize: "-"},
	}}
	for _, method := range []string{"LoRA", "QLoRA"} {
		for _, size := range []string{"1k", "5k", "10k"} {
			m.Experiments = append(m.Experiments, Experiment{
				Name:     method + "-" + size,
				Results:  fmt.Sprintf("outputs/%s_%s/eval_results.json", strings.ToLower(method), size),
				DataSize: size,
			})
		}
	}
	m.normalize()
	return m
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(m.Experiments) == 0 {
		return nil, fmt.Errorf("%s: no experiments", path)
	}
	for i, e := range m.Experiments {
		if e.Name == "" || e.Results == "" {
			return nil, fmt.Errorf("%s: experiment %d needs name and results", path, i)
		}
	}
	m.dir = filepath.Dir(path)
	m.normalize()
	return &m, nil
}

func (m *Manifest) normalize() {
	for i := range m.Experiments {
		e := &m.Experiments[i]
		if e.Method == "" {
			e.Method = inferMethod(e.Name)
		}
		if e.DataSize == "" {
			e.DataSize = "-"
		}
	}
}

func (m *Manifest) resultsPath(e Experiment) string {
	if filepath.IsAbs(e.Results) || m.dir == "" {
		return e.Results
	}
	return filepath.Join(m.dir, e.Results)
}

func inferMethod(name string) Method {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "qlora"):
		return MethodQLoRA
	case strings.Contains(lower, "lora"):
		return MethodLoRA
	default:
		return MethodBaseline
	}
}
