package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/collateral-classifier/internal/classifier"
)

const (
	SheetPredictions = "Predictions"
	SheetSummary     = "Summary"
)

// Service turns classification results into XLSX workbooks.
type Service struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, now: time.Now}
}

// PredictionsXLSX returns a workbook with one row per page plus a summary sheet.
func (s *Service) PredictionsXLSX(res *classifier.DocumentResult) ([]byte, error) {
	if res == nil {
		return nil, fmt.Errorf("nil result")
	}
	start := time.Now()

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close workbook", "error", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", SheetPredictions); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(SheetPredictions)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Page",
		"Predicted Label",
		"Confidence",
		"Text Length",
		"Model Label",
		"Text Source",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetPredictions, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(SheetPredictions, "A1", "F1", style)
	}
	pct, _ := f.NewStyle(&excelize.Style{NumFmt: 10}) // 0.00%

	for i, p := range res.Predictions {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetPredictions, cell, v)
		}
		write(1, p.Page)
		write(2, p.Label)
		write(3, p.Confidence)
		write(4, p.TextLength)
		write(5, p.ModelLabel)
		write(6, string(p.TextSource))
		if pct != 0 {
			cell, _ := excelize.CoordinatesToCellName(3, row)
			_ = f.SetCellStyle(SheetPredictions, cell, cell, pct)
		}
	}

	_ = f.SetColWidth(SheetPredictions, "A", "A", 8)
	_ = f.SetColWidth(SheetPredictions, "B", "B", 18)
	_ = f.SetColWidth(SheetPredictions, "C", "D", 12)
	_ = f.SetColWidth(SheetPredictions, "E", "E", 18)
	_ = f.SetColWidth(SheetPredictions, "F", "F", 12)

	summary := [][2]any{
		{"Filename", res.Filename},
		{"Page Count", res.PageCount},
		{"Confidence Threshold", res.Threshold},
		{"Model Type", res.ModelType},
		{"Unlabeled Pages", unlabeled(res.Predictions)},
		{"Content SHA-256", res.ContentSHA256},
		{"Job ID", res.JobID},
		{"Generated At", s.now().UTC().Format(time.RFC3339)},
	}
	for i, kv := range summary {
		_ = f.SetCellValue(SheetSummary, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(SheetSummary, fmt.Sprintf("B%d", i+1), kv[1])
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 22)
	_ = f.SetColWidth(SheetSummary, "B", "B", 66)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("xlsx export built",
		"filename", res.Filename,
		"rows", len(res.Predictions),
		"bytes", buf.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func unlabeled(preds []classifier.Prediction) int {
	n := 0
	for _, p := range preds {
		if p.Unlabeled() {
			n++
		}
	}
	return n
}
