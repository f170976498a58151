package billing

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var (
	minutesHeader = []string{"Performer", "Activity", "Minutes"}
	codesHeader   = []string{"Code", "Eligible", "Units", "Basis"}
)

// BuildWorkbook renders a billing period summary as an xlsx workbook and
// returns the encoded bytes.
func BuildWorkbook(sum *BillingPeriodSummary) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open, so Close happens at the end instead of a defer.

	sheet := "Billing Summary"
	index, err := f.NewSheet(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	labelStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create label style: %w", err)
	}

	deviceDaysNote := fmt.Sprintf("%d (threshold %d)", sum.DeviceDays, sum.DeviceDayThreshold)
	overview := [][2]any{
		{"Patient", sum.PatientName},
		{"Patient ID", sum.PatientID.String()},
		{"Period", sum.Month},
		{"Timezone", sum.Timezone},
		{"Billing Track", sum.BillingTrack},
		{"Device Days", deviceDaysNote},
		{"Physician Minutes", sum.PhysicianMinutes},
		{"Staff Minutes", sum.StaffMinutes},
		{"Total Minutes", sum.TotalMinutes},
	}
	row := 1
	for _, pair := range overview {
		if err := setLabeledCell(f, sheet, row, pair[0].(string), pair[1], labelStyle); err != nil {
			f.Close()
			return nil, err
		}
		row++
	}

	row++ // blank separator
	row, err = writeTable(f, sheet, row, "Logged Time", minutesHeader, minuteRows(sum), headerStyle, labelStyle)
	if err != nil {
		f.Close()
		return nil, err
	}

	row++
	if _, err := writeTable(f, sheet, row, "Code Eligibility", codesHeader, codeRows(sum), headerStyle, labelStyle); err != nil {
		f.Close()
		return nil, err
	}

	widths := []float64{22, 18, 12, 46}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func minuteRows(sum *BillingPeriodSummary) [][]any {
	rows := make([][]any, 0, len(sum.Buckets))
	for _, b := range sum.Buckets {
		rows = append(rows, []any{b.PerformerType, b.Activity, b.Minutes})
	}
	if len(rows) == 0 {
		rows = append(rows, []any{"(none)", "", 0})
	}
	return rows
}

func codeRows(sum *BillingPeriodSummary) [][]any {
	rows := make([][]any, 0, len(sum.Codes))
	for _, c := range sum.Codes {
		eligible := "No"
		if c.Eligible {
			eligible = "Yes"
		}
		rows = append(rows, []any{c.Code, eligible, c.Units, c.Basis})
	}
	return rows
}

// writeTable emits a bold section title, a styled header row and the data
// rows, returning the next free row.
func writeTable(f *excelize.File, sheet string, row int, title string, header []string, rows [][]any, headerStyle, labelStyle int) (int, error) {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return 0, fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellValue(sheet, cell, title); err != nil {
		return 0, fmt.Errorf("failed to set section title: %w", err)
	}
	if err := f.SetCellStyle(sheet, cell, cell, labelStyle); err != nil {
		return 0, fmt.Errorf("failed to style section title: %w", err)
	}
	row++

	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return 0, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return 0, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return 0, fmt.Errorf("failed to set header style: %w", err)
		}
	}
	row++

	for _, r := range rows {
		for col, v := range r {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return 0, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return 0, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
		row++
	}
	return row, nil
}

func setLabeledCell(f *excelize.File, sheet string, row int, label string, value any, labelStyle int) error {
	labelCell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellValue(sheet, labelCell, label); err != nil {
		return fmt.Errorf("failed to set label %q: %w", label, err)
	}
	if err := f.SetCellStyle(sheet, labelCell, labelCell, labelStyle); err != nil {
		return fmt.Errorf("failed to style label %q: %w", label, err)
	}
	valueCell, err := excelize.CoordinatesToCellName(2, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellValue(sheet, valueCell, value); err != nil {
		return fmt.Errorf("failed to set value for %q: %w", label, err)
	}
	return nil
}
