package report

import (
	"errors"
	"os"
	"path/filepath"
	"slices"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var ErrNothingToPlot = errors.New("need LoRA and QLoRA results to plot")

// ScaleSeries returns the x-axis sizes and the ROUGE-L points per method.
// Sizes come from m.Sizes when set, otherwise from first appearance.
func ScaleSeries(m *Manifest, rows []Row) (sizes []string, series map[Method]plotter.XYs) {
	sizes = slices.Clone(m.Sizes)
	if len(sizes) == 0 {
		for _, r := range rows {
			if r.Method != MethodBaseline && r.DataSize != "-" && !slices.Contains(sizes, r.DataSize) {
				sizes = append(sizes, r.DataSize)
			}
		}
	}
	series = make(map[Method]plotter.XYs)
	for _, size := range sizes {
		x := float64(slices.Index(sizes, size))
		for _, r := range rows {
			if r.DataSize == size && (r.Method == MethodLoRA || r.Method == MethodQLoRA) {
				series[r.Method] = append(series[r.Method], plotter.XY{X: x, Y: r.RougeL})
			}
		}
	}
	return sizes, series
}

// PlotScale draws ROUGE-L against data size for LoRA and QLoRA. The image
// format follows the path extension.
func PlotScale(path string, m *Manifest, rows []Row) error {
	sizes, series := ScaleSeries(m, rows)
	if len(series[MethodLoRA]) == 0 || len(series[MethodQLoRA]) == 0 {
		return ErrNothingToPlot
	}

	p := plot.New()
	p.Title.Text = "Effect of training data size"
	p.X.Label.Text = "Training examples"
	p.Y.Label.Text = "ROUGE-L"
	p.Add(plotter.NewGrid())
	if err := plotutil.AddLinePoints(p,
		"LoRA", series[MethodLoRA],
		"QLoRA", series[MethodQLoRA],
	); err != nil {
		return err
	}
	p.NominalX(sizes...)
	p.Legend.Top = true

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 6*vg.Inch, path)
}
