// Package parser turns uploaded file bytes into rows and recognizes the
// canonical multi-file bundle.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrEmptyWorkbook = errors.New("workbook has no data")

// IsExcel reports whether the filename carries a spreadsheet extension.
func IsExcel(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm")
}

// ExcelRows reads the first sheet of a workbook into string rows, padding
// short rows so every row has the header's column count.
func ExcelRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyWorkbook
	}

	width := len(rows[0])
	for i := range rows {
		for len(rows[i]) < width {
			rows[i] = append(rows[i], "")
		}
	}
	return rows, nil
}

// ExcelToCSV renders the first sheet as delimiter-separated text so the
// spreadsheet path reuses the CSV pipeline unchanged. Cells containing the
// delimiter or quotes are quoted.
func ExcelToCSV(data []byte, delimiter rune) ([]byte, error) {
	rows, err := ExcelRows(data)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				b.WriteRune(delimiter)
			}
			b.WriteString(escapeCell(cell, delimiter))
		}
		b.WriteByte('\n')
	}
	return b.Bytes(), nil
}

func escapeCell(cell string, delimiter rune) string {
	if strings.ContainsRune(cell, delimiter) || strings.Contains(cell, `"`) || strings.Contains(cell, "\n") {
		return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
	}
	return cell
}
