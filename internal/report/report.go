package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"text/tabwriter"

	"github.com/samcharles93/medtune/internal/eval"
	"github.com/samcharles93/medtune/internal/logger"
)

// Row is one experiment's headline scores.
type Row struct {
	Name     string
	DataSize string
	Method   Method
	Rouge1   float64
	Rouge2   float64
	RougeL   float64
	BLEU     *float64
}

// Collect reads every experiment's results. Experiments whose results file
// does not exist are returned in missing; other read errors abort.
func Collect(ctx context.Context, m *Manifest) (rows []Row, missing []Experiment, err error) {
	log := logger.FromContext(ctx)
	for _, e := range m.Experiments {
		path := m.resultsPath(e)
		res, err := eval.ReadResults(path)
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("results missing", "experiment", e.Name, "path", path)
			missing = append(missing, e)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("experiment %s: %w", e.Name, err)
		}
		rows = append(rows, Row{
			Name:     e.Name,
			DataSize: e.DataSize,
			Method:   e.Method,
			Rouge1:   res.RougeScores["rouge-1"].F,
			Rouge2:   res.RougeScores["rouge-2"].F,
			RougeL:   res.RougeL(),
			BLEU:     res.BLEUScore,
		})
		log.Info("results loaded", "experiment", e.Name, "rouge_l", res.RougeL())
	}
	return rows, missing, nil
}

var header = []string{"实验", "数据量", "ROUGE-1", "ROUGE-2", "ROUGE-L", "BLEU"}

func (r Row) cells() []string {
	bleu := "-"
	if r.BLEU != nil {
		bleu = formatScore(*r.BLEU)
	}
	return []string{r.Name, r.DataSize, formatScore(r.Rouge1), formatScore(r.Rouge2), formatScore(r.RougeL), bleu}
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// WriteCSV writes rows as UTF-8 CSV with a byte order mark so spreadsheet
// tools detect the encoding.
func WriteCSV(w io.Writer, rows []Row) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.cells()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes rows as an aligned text table.
func WriteTable(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeLine := func(cells []string) {
		for i, c := range cells {
			if i > 0 {
				_, _ = io.WriteString(tw, "\t")
			}
			_, _ = io.WriteString(tw, c)
		}
		_, _ = io.WriteString(tw, "\n")
	}
	writeLine(header)
	for _, r := range rows {
		writeLine(r.cells())
	}
	return tw.Flush()
}
