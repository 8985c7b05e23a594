package admin

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"trade-dashboard/internal/analytics"
)

// dateHeaders are columns whose numeric cells are spreadsheet date serials
var dateHeaders = map[string]bool{
	"date":       true,
	"tradeDate":  true,
	"trade_date": true,
	"dob":        true,
}

// ReadSheet reads the first worksheet of an .xlsx workbook. The first
// non-empty row is the header; each later row becomes a record keyed by header.
// Blank rows are skipped and blank cells are left out of the record.
func ReadSheet(r io.Reader) ([]analytics.RawTrade, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	var header []string
	records := make([]analytics.RawTrade, 0, len(rows))
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if header == nil {
			header = make([]string, len(row))
			for i, h := range row {
				header[i] = strings.TrimSpace(h)
			}
			continue
		}

		rec := make(analytics.RawTrade, len(header))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			rec[header[i]] = cellValue(header[i], cell)
		}
		records = append(records, rec)
	}
	return records, nil
}

// cellValue converts date serials to times and leaves everything else as text
func cellValue(header, cell string) any {
	if !dateHeaders[header] {
		return cell
	}
	serial, err := strconv.ParseFloat(cell, 64)
	if err != nil || serial < 1 {
		return cell
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return cell
	}
	return t
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// text returns a record field as trimmed text
func text(rec analytics.RawTrade, key string) string {
	v, ok := rec[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	default:
		tm, raw := analytics.ParseDate(v)
		if !tm.IsZero() {
			return tm.Format(analytics.DateLayout)
		}
		return raw
	}
}
