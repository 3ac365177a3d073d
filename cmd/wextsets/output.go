package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aybabtme/uniplot/histogram"
	"github.com/carbocation/pfx"
	"github.com/carbocation/wext"
	"github.com/carbocation/wext/exclusivity"
	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v3"
)

// resultRow is one line of the output table.
type resultRow struct {
	Genes      string `csv:"genes"`
	T          int    `csv:"T"`
	Z          int    `csv:"Z"`
	Table      string `csv:"table"`
	PValue     string `csv:"pvalue"`
	QValue     string `csv:"qvalue"`
	Runtime    string `csv:"runtime"`
	UpperBound string `csv:"pvalue_upper_bound"`
}

func newResultRow(r exclusivity.SetResult) resultRow {
	cells := make([]string, len(r.Observation.Table))
	for i, c := range r.Observation.Table {
		cells[i] = strconv.Itoa(c)
	}

	return resultRow{
		Genes:      r.Set.Key(),
		T:          r.Observation.T,
		Z:          r.Observation.Z,
		Table:      strings.Join(cells, ","),
		PValue:     FloatFormatter(r.PValue),
		QValue:     FloatFormatter(r.QValue),
		Runtime:    FloatFormatter(r.Runtime.Seconds()),
		UpperBound: NullFloatFormatter(r.UpperBound),
	}
}

func FloatFormatter(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func NullFloatFormatter(n null.Float) string {
	if !n.Valid {
		return ""
	}

	return FloatFormatter(n.Float64)
}

// writeResults writes the accepted sets as a tab-delimited table.
func writeResults(w io.Writer, report *exclusivity.Report) error {
	rows := make([]resultRow, 0, len(report.Results))
	for _, r := range report.Results {
		rows = append(rows, newResultRow(r))
	}

	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	safe := gocsv.NewSafeCSVWriter(cw)
	if err := gocsv.MarshalCSV(&rows, safe); err != nil {
		return pfx.Err(err)
	}
	safe.Flush()
	if err := safe.Error(); err != nil {
		return pfx.Err(err)
	}

	return nil
}

func writeReport(ctx context.Context, client *storage.Client, p string, report *exclusivity.Report) error {
	w, err := wext.MaybeCreateInGoogleStorage(ctx, p, client)
	if err != nil {
		return err
	}

	if err := writeResults(w, report); err != nil {
		w.Close()
		return err
	}

	if err := w.Close(); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// printHistogram draws the distribution of accepted p-values.
func printHistogram(w io.Writer, report *exclusivity.Report) error {
	pvals := make([]float64, 0, len(report.Results))
	for _, r := range report.Results {
		pvals = append(pvals, r.PValue)
	}
	if len(pvals) == 0 {
		return nil
	}

	fmt.Fprintf(w, "P-values of %d %v tests:\n", len(pvals), report.Mode)
	hist := histogram.Hist(20, pvals)

	return histogram.Fprint(w, hist, histogram.Linear(40))
}

func logRuntimes(logger *zerolog.Logger, report *exclusivity.Report) {
	seconds := make([]float64, 0, len(report.Results))
	for _, r := range report.Results {
		seconds = append(seconds, r.Runtime.Seconds())
	}

	data := stats.LoadRawData(seconds)
	if data.Len() < 1 {
		return
	}

	mean, _ := data.Mean()
	median, _ := data.Median()
	longest, _ := data.Max()
	total, _ := data.Sum()

	logger.Info().
		Int("accepted", len(report.Results)).
		Int("invalid", len(report.Invalid)).
		Int("untestable", report.Untestable).
		Float64("mean_seconds", mean).
		Float64("median_seconds", median).
		Float64("max_seconds", longest).
		Float64("total_seconds", total).
		Msg("Test runtimes")
}

func errWeightShape(p string, got, want int) error {
	return fmt.Errorf("%s: weight matrix has %d patient columns but the mutation file has %d patients", p, got, want)
}

func errNoPermutations(dirs []string) error {
	return fmt.Errorf("No permuted datasets were found in every one of %v", dirs)
}
