package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/redispatch/curtailcast/internal/models"
	"github.com/redispatch/curtailcast/internal/pipeline"
)

// BuildReportXLSX renders the series and the per-strategy scores as a workbook.
func BuildReportXLSX(series models.ReconstructedSeries, results []pipeline.RunResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	seriesSheet := "series"
	predictionsSheet := "predictions"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	for _, name := range []string{seriesSheet, predictionsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	_ = f.SetCellValue(summarySheet, "A1", "Curtailment Forecast")
	_ = f.SetCellValue(summarySheet, "A3", "Facility")
	_ = f.SetCellValue(summarySheet, "B3", series.FacilityID)
	_ = f.SetCellValue(summarySheet, "A4", "Frequency")
	_ = f.SetCellValue(summarySheet, "B4", series.Frequency)
	_ = f.SetCellValue(summarySheet, "A5", "Slots")
	_ = f.SetCellValue(summarySheet, "B5", series.Len())
	_ = f.SetCellValue(summarySheet, "A6", "Total Energy")
	_ = f.SetCellValue(summarySheet, "B6", totalEnergy(series))

	_ = f.SetCellValue(summarySheet, "A8", "Strategy")
	_ = f.SetCellValue(summarySheet, "B8", "MAE")
	_ = f.SetCellValue(summarySheet, "C8", "RMSE")
	_ = f.SetCellValue(summarySheet, "D8", "Count")
	_ = f.SetCellValue(summarySheet, "E8", "Error")
	for i, r := range results {
		row := i + 9
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), string(r.Strategy))
		if r.Err != nil {
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("E%d", row), r.Err.Error())
			continue
		}
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), r.Metrics.MAE)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), r.Metrics.RMSE)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("D%d", row), r.Metrics.Count)
	}

	_ = f.SetCellValue(seriesSheet, "A1", "Timestamp")
	_ = f.SetCellValue(seriesSheet, "B1", "Power")
	_ = f.SetCellValue(seriesSheet, "C1", "Energy")
	_ = f.SetCellValue(seriesSheet, "D1", "Cumulative Energy")
	for i, p := range series.Points {
		row := i + 2
		_ = f.SetCellValue(seriesSheet, fmt.Sprintf("A%d", row), p.Time.Format(time.RFC3339))
		_ = f.SetCellValue(seriesSheet, fmt.Sprintf("B%d", row), p.Power)
		_ = f.SetCellValue(seriesSheet, fmt.Sprintf("C%d", row), p.Energy)
		_ = f.SetCellValue(seriesSheet, fmt.Sprintf("D%d", row), p.CumulativeEnergy)
	}

	_ = f.SetCellValue(predictionsSheet, "A1", "Timestamp")
	_ = f.SetCellValue(predictionsSheet, "B1", "Strategy")
	_ = f.SetCellValue(predictionsSheet, "C1", "Predicted")
	row := 2
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, p := range r.Predictions.Points {
			_ = f.SetCellValue(predictionsSheet, fmt.Sprintf("A%d", row), p.Time.Format(time.RFC3339))
			_ = f.SetCellValue(predictionsSheet, fmt.Sprintf("B%d", row), string(r.Strategy))
			_ = f.SetCellValue(predictionsSheet, fmt.Sprintf("C%d", row), p.Value)
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportPDF renders a one-page score summary.
func BuildReportPDF(series models.ReconstructedSeries, results []pipeline.RunResult, generated time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Curtailment Forecast")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Facility: %s", series.FacilityID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Frequency: %s", series.Frequency))
	pdf.Ln(5)
	if series.Len() > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Horizon: %s - %s",
			series.Points[0].Time.Format(time.RFC3339),
			series.Points[series.Len()-1].Time.Format(time.RFC3339)))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generated.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Energy: %.3f", totalEnergy(series)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Strategy", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "MAE", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "RMSE", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, r := range results {
		pdf.CellFormat(40, 6, string(r.Strategy), "1", 0, "C", false, 0, "")
		if r.Err != nil {
			pdf.CellFormat(95, 6, "failed", "1", 0, "C", false, 0, "")
		} else {
			pdf.CellFormat(35, 6, fmt.Sprintf("%.3f", r.Metrics.MAE), "1", 0, "R", false, 0, "")
			pdf.CellFormat(35, 6, fmt.Sprintf("%.3f", r.Metrics.RMSE), "1", 0, "R", false, 0, "")
			pdf.CellFormat(25, 6, fmt.Sprintf("%d", r.Metrics.Count), "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteAll writes series, predictions, workbook and PDF for one facility into
// dir and returns the written paths.
func WriteAll(dir string, series models.ReconstructedSeries, results []pipeline.RunResult, generated time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	base := fileBase(series.FacilityID)

	var seriesCSV, predictionsCSV bytes.Buffer
	if err := WriteSeriesCSV(&seriesCSV, series); err != nil {
		return nil, err
	}
	if err := WritePredictionsCSV(&predictionsCSV, series, results); err != nil {
		return nil, err
	}
	xlsx, err := BuildReportXLSX(series, results)
	if err != nil {
		return nil, fmt.Errorf("failed to build workbook: %w", err)
	}
	pdf, err := BuildReportPDF(series, results, generated)
	if err != nil {
		return nil, fmt.Errorf("failed to build pdf: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{base + "_series.csv", seriesCSV.Bytes()},
		{base + "_predictions.csv", predictionsCSV.Bytes()},
		{base + "_report.xlsx", xlsx},
		{base + "_report.pdf", pdf},
	}
	paths := make([]string, 0, len(files))
	for _, file := range files {
		path := filepath.Join(dir, file.name)
		if err := os.WriteFile(path, file.data, 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func totalEnergy(series models.ReconstructedSeries) float64 {
	if series.Len() == 0 {
		return 0
	}
	return series.Points[series.Len()-1].CumulativeEnergy
}

// fileBase turns a facility id into a file name prefix that cannot leave the
// output directory. Anything outside [A-Za-z0-9._-] becomes an underscore.
func fileBase(facilityID string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, facilityID)
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "series"
	}
	return base
}
