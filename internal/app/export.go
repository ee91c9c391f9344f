package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"posturewatch/internal/storage"
)

// Export renders the classification log as CSV and/or a PNG chart of the
// static ratio and model confidence.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListClassificationsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no classifications found for export window")
		return nil
	}

	downsampled := downsample(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting classifications")

	if opts.CSVPath != "" {
		if err := writeClassificationsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeClassificationsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}
	return nil
}

func downsample(records []storage.ClassificationRecord, max int) []storage.ClassificationRecord {
	if max <= 1 || len(records) <= max {
		return records
	}

	result := make([]storage.ClassificationRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeClassificationsCSV(path string, records []storage.ClassificationRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"observed_at", "session_id", "label", "confidence", "static_ratio", "missing_features"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.At.UTC().Format(time.RFC3339Nano),
			rec.SessionID,
			rec.Label,
			rec.Confidence.StringFixed(5),
			rec.StaticRatio.StringFixed(5),
			strconv.Itoa(rec.MissingFeatures),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeClassificationsPNG(path string, records []storage.ClassificationRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	ratio := make([]float64, len(records))
	confidence := make([]float64, len(records))
	for i, rec := range records {
		x[i] = rec.At
		ratio[i] = rec.StaticRatio.InexactFloat64()
		confidence[i] = rec.Confidence.InexactFloat64()
	}

	unitFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Ratio / confidence",
			ValueFormatter: unitFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Static ratio",
				XValues: x,
				YValues: ratio,
			},
			chart.TimeSeries{
				Name:    "Confidence",
				XValues: x,
				YValues: confidence,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
