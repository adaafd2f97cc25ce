package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/risk-guard/internal/breaker"
)

// ExcelReporter writes breaker history workbooks
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

type excelStyles struct {
	Header   int
	Warning  int
	Critical int
	Percent  int
}

// WriteHistoryXLSX writes the breaker event log and mitigation history to an
// Excel workbook
func (r *ExcelReporter) WriteHistoryXLSX(events []breaker.Event, actions []breaker.ActionRecord, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const eventsSheet = "Breaker Events"
	const actionsSheet = "Actions"

	fx.SetSheetName(fx.GetSheetName(0), eventsSheet)
	fx.NewSheet(actionsSheet)

	styles, err := r.createStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeEventsSheet(fx, eventsSheet, events, styles); err != nil {
		return err
	}
	if err := r.writeActionsSheet(fx, actionsSheet, actions, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.Header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.Warning, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "B8860B"},
	})
	if err != nil {
		return styles, err
	}

	styles.Critical, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "FF0000", Bold: true},
	})
	if err != nil {
		return styles, err
	}

	styles.Percent, err = fx.NewStyle(&excelize.Style{
		NumFmt: 10,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	return styles, err
}

func (r *ExcelReporter) writeEventsSheet(fx *excelize.File, sheet string, events []breaker.Event, styles excelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 20) // Timestamp
	fx.SetColWidth(sheet, "B", "B", 12) // Type
	fx.SetColWidth(sheet, "C", "C", 18) // Level
	fx.SetColWidth(sheet, "D", "D", 60) // Reason
	fx.SetColWidth(sheet, "E", "E", 12) // Observed

	headers := []string{"Timestamp", "Type", "Level", "Reason", "Observed"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.Header)
	}

	for i, ev := range events {
		row := i + 2
		values := []interface{}{
			ev.Timestamp.Format("2006-01-02 15:04:05"),
			string(ev.Type),
			ev.Level.String(),
			ev.Reason,
			ev.Observed,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
		}
		levelCell, _ := excelize.CoordinatesToCellName(3, row)
		switch ev.Level {
		case breaker.Level3Emergency:
			fx.SetCellStyle(sheet, levelCell, levelCell, styles.Critical)
		case breaker.Level1Warning, breaker.Level2Caution:
			fx.SetCellStyle(sheet, levelCell, levelCell, styles.Warning)
		}
		obsCell, _ := excelize.CoordinatesToCellName(5, row)
		fx.SetCellStyle(sheet, obsCell, obsCell, styles.Percent)
	}
	return nil
}

func (r *ExcelReporter) writeActionsSheet(fx *excelize.File, sheet string, actions []breaker.ActionRecord, styles excelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 20) // Timestamp
	fx.SetColWidth(sheet, "B", "B", 18) // Level
	fx.SetColWidth(sheet, "C", "C", 16) // Action
	fx.SetColWidth(sheet, "D", "D", 14) // Target
	fx.SetColWidth(sheet, "E", "E", 10) // Success
	fx.SetColWidth(sheet, "F", "F", 50) // Detail

	headers := []string{"Timestamp", "Level", "Action", "Target", "Success", "Detail"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.Header)
	}

	for i, a := range actions {
		row := i + 2
		values := []interface{}{
			a.Timestamp.Format("2006-01-02 15:04:05"),
			a.Level.String(),
			a.Action,
			a.Target,
			a.Success,
			a.Detail,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
		}
		if !a.Success {
			successCell, _ := excelize.CoordinatesToCellName(5, row)
			fx.SetCellStyle(sheet, successCell, successCell, styles.Critical)
		}
	}
	return nil
}
