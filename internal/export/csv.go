// Package export reads curtailment events from CSV and writes series,
// predictions and run reports as CSV, XLSX and PDF.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redispatch/curtailcast/internal/models"
	"github.com/redispatch/curtailcast/internal/pipeline"
)

// DefaultLevelPct is used when an event row carries no curtailment level.
const DefaultLevelPct = 30

const timestampLayout = "2006-01-02 15:04:05"

// Header names of the merged curtailment export, with English alternatives.
var eventColumns = map[string][]string{
	"id":            {"ID", "id"},
	"facility_id":   {"Anlagenschlüssel", "facility_id"},
	"start":         {"Start", "start"},
	"end":           {"Ende", "end"},
	"level_pct":     {"Stufe", "Stufe (%)", "level_pct"},
	"nominal_power": {"nominal_power"},
}

// ReadEventsCSV parses events from a CSV file with a header row. Extra
// columns are ignored. Rows are validated as they are read.
func ReadEventsCSV(r io.Reader) ([]models.CurtailmentEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty event file", models.ErrDataIntegrity)
		}
		return nil, err
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var events []models.CurtailmentEvent
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		e, err := parseEvent(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func columnIndex(header []string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	idx := make(map[string]int, len(eventColumns))
	for field, names := range eventColumns {
		for _, n := range names {
			if i, ok := pos[n]; ok {
				idx[field] = i
				break
			}
		}
		if _, ok := idx[field]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", models.ErrDataIntegrity, names[0])
		}
	}
	return idx, nil
}

func parseEvent(rec []string, idx map[string]int) (models.CurtailmentEvent, error) {
	field := func(name string) string {
		i := idx[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var e models.CurtailmentEvent
	var err error
	e.ID = field("id")
	e.FacilityID = field("facility_id")
	if e.Start, err = parseTime(field("start")); err != nil {
		return e, err
	}
	if e.End, err = parseTime(field("end")); err != nil {
		return e, err
	}
	if e.NominalPower, err = strconv.ParseFloat(field("nominal_power"), 64); err != nil {
		return e, fmt.Errorf("%w: nominal_power: %v", models.ErrDataIntegrity, err)
	}

	e.LevelPct = DefaultLevelPct
	if s := field("level_pct"); s != "" {
		// pandas writes integral floats as "30.0"
		level, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return e, fmt.Errorf("%w: level: %v", models.ErrDataIntegrity, err)
		}
		if level != math.Trunc(level) || level < 0 || level > 100 {
			return e, fmt.Errorf("%w: level %q is not a whole percentage", models.ErrDataIntegrity, s)
		}
		e.LevelPct = int(level)
	}
	return e, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timestampLayout, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", models.ErrDataIntegrity, s)
}

// WriteSeriesCSV writes one row per slot.
func WriteSeriesCSV(w io.Writer, series models.ReconstructedSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "power", "energy", "cumulative_energy"}); err != nil {
		return err
	}
	for _, p := range series.Points {
		if err := cw.Write([]string{
			p.Time.Format(time.RFC3339),
			formatFloat(p.Power),
			formatFloat(p.Energy),
			formatFloat(p.CumulativeEnergy),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePredictionsCSV writes the predictions of every successful run in long
// format next to the actual value of the slot.
func WritePredictionsCSV(w io.Writer, series models.ReconstructedSeries, results []pipeline.RunResult) error {
	actual := make(map[int64]float64, len(series.Points))
	for _, p := range series.Points {
		actual[p.Time.UnixNano()] = p.Power
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "strategy", "predicted_value", "actual"}); err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, p := range r.Predictions.Points {
			a := ""
			if v, ok := actual[p.Time.UnixNano()]; ok {
				a = formatFloat(v)
			}
			if err := cw.Write([]string{p.Time.Format(time.RFC3339), string(r.Strategy), formatFloat(p.Value), a}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
