package export

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/redispatch/curtailcast/internal/evaluation"
	"github.com/redispatch/curtailcast/internal/forecast"
	"github.com/redispatch/curtailcast/internal/models"
	"github.com/redispatch/curtailcast/internal/pipeline"
)

const mergedCSV = `ID,Anlagenschlüssel,Start,Ende,Dauer,Stufe,Ort_Engpass,nominal_power,curtailment_power
1001,E1,2021-01-01 00:00:00,2021-01-01 02:00:00,120,30,Nord,100.0,70.0
1002,E1,2021-01-01 03:00:00,2021-01-01 03:30:00,30,0.0,Nord,50.0,50.0
1003,E2,2021-01-01 05:00:00,2021-01-01 06:00:00,60,,Süd,10.0,7.0
`

func TestReadEventsCSV(t *testing.T) {
	events, err := ReadEventsCSV(strings.NewReader(mergedCSV))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, models.CurtailmentEvent{
		ID:           "1001",
		FacilityID:   "E1",
		Start:        time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2021, 1, 1, 2, 0, 0, 0, time.UTC),
		NominalPower: 100,
		LevelPct:     30,
	}, events[0])
	assert.Equal(t, 0, events[1].LevelPct)
	assert.Equal(t, 50.0, events[1].CurtailmentPower())
	assert.Equal(t, DefaultLevelPct, events[2].LevelPct)
}

func TestReadEventsCSVEnglishHeader(t *testing.T) {
	in := "id,facility_id,start,end,level_pct,nominal_power\n" +
		"a,F1,2021-03-01T10:00:00Z,2021-03-01T11:00:00Z,60,200\n"
	events, err := ReadEventsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 80.0, events[0].CurtailmentPower())
}

func TestReadEventsCSVErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "empty file",
			input:   "",
			wantErr: "empty event file",
		},
		{
			name:    "missing column",
			input:   "ID,Anlagenschlüssel,Start,Ende,Stufe\n",
			wantErr: `missing column "nominal_power"`,
		},
		{
			name:    "bad timestamp",
			input:   "ID,Anlagenschlüssel,Start,Ende,Stufe,nominal_power\n1,E1,yesterday,2021-01-01 00:00:00,30,1\n",
			wantErr: "line 2",
		},
		{
			name:    "inverted event",
			input:   "ID,Anlagenschlüssel,Start,Ende,Stufe,nominal_power\n1,E1,2021-01-01 02:00:00,2021-01-01 01:00:00,30,1\n",
			wantErr: "ends before it starts",
		},
		{
			name:    "fractional level",
			input:   "ID,Anlagenschlüssel,Start,Ende,Stufe,nominal_power\n1,E1,2021-01-01 00:00:00,2021-01-01 01:00:00,30.7,1\n",
			wantErr: `level "30.7" is not a whole percentage`,
		},
		{
			name:    "level above 100",
			input:   "ID,Anlagenschlüssel,Start,Ende,Stufe,nominal_power\n1,E1,2021-01-01 00:00:00,2021-01-01 01:00:00,130,1\n",
			wantErr: "not a whole percentage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadEventsCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrDataIntegrity)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func sampleRun() (models.ReconstructedSeries, []pipeline.RunResult) {
	t0 := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	series := models.ReconstructedSeries{
		FacilityID: "E1",
		Frequency:  "hour",
		Points: []models.SeriesPoint{
			{Time: t0, Power: 70, Energy: 70, CumulativeEnergy: 70},
			{Time: t0.Add(time.Hour), Power: 0, Energy: 0, CumulativeEnergy: 70},
			{Time: t0.Add(2 * time.Hour), Power: 25.5, Energy: 25.5, CumulativeEnergy: 95.5},
		},
	}
	results := []pipeline.RunResult{
		{
			Strategy: forecast.Naive,
			Predictions: models.PredictionSeries{
				FacilityID: "E1",
				Strategy:   "naive",
				Points: []models.Prediction{
					{Time: t0.Add(time.Hour), Value: 70},
					{Time: t0.Add(2 * time.Hour), Value: 0},
				},
			},
			Metrics: evaluation.Metrics{MAE: 47.75, RMSE: 52.4, Count: 2},
		},
		{Strategy: forecast.MarkovQuantile, Err: errors.New("insufficient data")},
	}
	return series, results
}

func TestWriteSeriesCSV(t *testing.T) {
	series, _ := sampleRun()
	var buf bytes.Buffer
	require.NoError(t, WriteSeriesCSV(&buf, series))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "timestamp,power,energy,cumulative_energy", lines[0])
	assert.Equal(t, "2021-01-01T02:00:00Z,25.5,25.5,95.5", lines[3])
}

func TestWritePredictionsCSVSkipsFailedRuns(t *testing.T) {
	series, results := sampleRun()
	var buf bytes.Buffer
	require.NoError(t, WritePredictionsCSV(&buf, series, results))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"timestamp,strategy,predicted_value,actual",
		"2021-01-01T01:00:00Z,naive,70,0",
		"2021-01-01T02:00:00Z,naive,0,25.5",
	}, lines)
}

func TestBuildReportXLSX(t *testing.T) {
	series, results := sampleRun()
	data, err := BuildReportXLSX(series, results)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"summary", "series", "predictions"}, f.GetSheetList())

	facility, err := f.GetCellValue("summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "E1", facility)

	strategy, err := f.GetCellValue("summary", "A10")
	require.NoError(t, err)
	assert.Equal(t, "wss", strategy)
	failure, err := f.GetCellValue("summary", "E10")
	require.NoError(t, err)
	assert.Equal(t, "insufficient data", failure)

	rows, err := f.GetRows("predictions")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestBuildReportPDF(t *testing.T) {
	series, results := sampleRun()
	data, err := BuildReportPDF(series, results, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestWriteAll(t *testing.T) {
	series, results := sampleRun()
	dir := filepath.Join(t.TempDir(), "out")

	paths, err := WriteAll(dir, series, results, time.Now())
	require.NoError(t, err)
	require.Len(t, paths, 4)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	assert.Equal(t, filepath.Join(dir, "E1_report.xlsx"), paths[2])
}

func TestWriteAllKeepsFilesInsideDir(t *testing.T) {
	tests := []struct {
		facility string
		prefix   string
	}{
		{"../evil", "_evil"},
		{"..", "series"},
		{"", "series"},
		{"a/b\\c", "a_b_c"},
		{"/etc/passwd", "_etc_passwd"},
		{"SEE 901.2", "SEE_901.2"},
	}

	for _, tt := range tests {
		t.Run(tt.facility, func(t *testing.T) {
			series, results := sampleRun()
			series.FacilityID = tt.facility
			dir := t.TempDir()

			paths, err := WriteAll(dir, series, results, time.Now())
			require.NoError(t, err)
			require.Len(t, paths, 4)
			for _, p := range paths {
				assert.Equal(t, dir, filepath.Dir(p))
				assert.True(t, strings.HasPrefix(filepath.Base(p), tt.prefix+"_"), p)
			}
		})
	}
}
