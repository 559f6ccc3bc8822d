package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/collateral-classifier/internal/classifier"
	"github.com/joseph-ayodele/collateral-classifier/internal/common"
)

// XLSXExporter renders a result as a workbook.
type XLSXExporter interface {
	PredictionsXLSX(res *classifier.DocumentResult) ([]byte, error)
}

// Writer stores each outcome in Dir as <name>.predictions.json, plus
// <name>_predictions.xlsx when an exporter is set. Failures are written
// as {"success":false,"error","details"}.
type Writer struct {
	Dir      string
	Exporter XLSXExporter
}

type failureBody struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
	Details  string `json:"details"`
}

// Write returns the paths it created.
func (w Writer) Write(o Outcome) ([]string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(filepath.Base(o.Job.Path), filepath.Ext(o.Job.Path))

	var body any = o.Result
	if o.Err != nil || o.Result == nil {
		err := o.Err
		if err == nil {
			err = common.ErrInternal
		}
		body = failureBody{
			Filename: filepath.Base(o.Job.Path),
			Error:    common.ErrorMessage(err),
			Details:  err.Error(),
		}
	}
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return nil, err
	}
	jsonPath := filepath.Join(w.Dir, base+".predictions.json")
	if err := os.WriteFile(jsonPath, append(data, '\n'), 0o644); err != nil {
		return nil, err
	}
	written := []string{jsonPath}

	if w.Exporter != nil && o.Err == nil && o.Result != nil {
		xlsx, err := w.Exporter.PredictionsXLSX(o.Result)
		if err != nil {
			return written, fmt.Errorf("export %s: %w", o.Job.Path, err)
		}
		xlsxPath := filepath.Join(w.Dir, base+"_predictions.xlsx")
		if err := os.WriteFile(xlsxPath, xlsx, 0o644); err != nil {
			return written, err
		}
		written = append(written, xlsxPath)
	}
	return written, nil
}
