package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CSVSource replays a capture of t_ms,kind,x,y,z rows. For ppg rows x holds
// the optical value and y, z may be empty.
type CSVSource struct {
	r      io.Reader
	speed  float64
	logger zerolog.Logger
}

// NewCSVSource replays r. speed scales the recorded inter-sample gaps; 0
// replays as fast as possible.
func NewCSVSource(r io.Reader, speed float64, logger zerolog.Logger) *CSVSource {
	return &CSVSource{r: r, speed: speed, logger: logger.With().Str("component", "csv_source").Logger()}
}

// Run reads every row and returns nil at end of input.
func (s *CSVSource) Run(ctx context.Context, handle Handler) error {
	reader := csv.NewReader(s.r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var (
		line int
		last time.Time
		rows int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}
		line++
		if line == 1 && isHeader(record) {
			continue
		}

		r, err := parseRecord(record)
		if err != nil {
			return fmt.Errorf("csv line %d: %w", line, err)
		}

		if s.speed > 0 && !last.IsZero() {
			if gap := r.T.Sub(last); gap > 0 {
				if err := sleep(ctx, time.Duration(float64(gap)/s.speed)); err != nil {
					return err
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		last = r.T
		handle(r)
		rows++
	}
	s.logger.Info().Int("rows", rows).Msg("replay finished")
	return nil
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	return err != nil
}

func parseRecord(record []string) (Reading, error) {
	if len(record) < 3 {
		return Reading{}, fmt.Errorf("want at least 3 fields, got %d", len(record))
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("parse t_ms: %w", err)
	}
	r := Reading{T: time.UnixMilli(ms).UTC(), Kind: Kind(strings.TrimSpace(record[1]))}

	values := make([]float64, 0, 3)
	for _, field := range record[2:] {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Reading{}, fmt.Errorf("parse value %q: %w", field, err)
		}
		values = append(values, v)
	}

	switch r.Kind {
	case KindAccel, KindGyro:
		if len(values) != 3 {
			return Reading{}, fmt.Errorf("%s row needs x,y,z", r.Kind)
		}
		r.X, r.Y, r.Z = values[0], values[1], values[2]
	case KindPPG:
		if len(values) < 1 {
			return Reading{}, errors.New("ppg row needs a value")
		}
		r.V = values[0]
	default:
		return Reading{}, fmt.Errorf("unknown reading kind %q", r.Kind)
	}
	return r, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ SampleSource = (*CSVSource)(nil)
