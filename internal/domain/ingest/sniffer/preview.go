package sniffer

import (
	"fmt"
	"regexp"
	"strings"
)

var yearHeaderRe = regexp.MustCompile(`^[0-9]{4}$`)

// Preview is the ephemeral per-upload file analysis returned to callers
// before any template is committed to.
type Preview struct {
	Delimiter   string     `json:"delimiter"`
	Encoding    string     `json:"encoding"`
	Headers     []string   `json:"headers"`
	RowCount    int        `json:"row_count"`
	ColumnCount int        `json:"column_count"`
	SizeBytes   int64      `json:"size_bytes"`
	YearColumns []string   `json:"year_columns,omitempty"`
	SampleRows  [][]string `json:"sample_rows,omitempty"`
	Issues      []string   `json:"issues,omitempty"`
}

// Parsed is the fully split file: headers plus data rows
type Parsed struct {
	Delimiter rune
	Headers   []string
	Rows      [][]string
}

const sampleRowCount = 5

// Analyze builds a Preview from raw file bytes
func Analyze(data []byte) (*Preview, error) {
	parsed, err := Parse(data, false)
	if err != nil {
		return nil, err
	}

	preview := &Preview{
		Delimiter:   string(parsed.Delimiter),
		Encoding:    Encoding(data),
		Headers:     parsed.Headers,
		RowCount:    len(parsed.Rows),
		ColumnCount: len(parsed.Headers),
		SizeBytes:   int64(len(data)),
	}

	for _, h := range parsed.Headers {
		if yearHeaderRe.MatchString(strings.TrimSpace(h)) {
			preview.YearColumns = append(preview.YearColumns, strings.TrimSpace(h))
		}
	}

	for i, row := range parsed.Rows {
		if i >= sampleRowCount {
			break
		}
		preview.SampleRows = append(preview.SampleRows, row)
	}

	for i, row := range parsed.Rows {
		if len(row) != len(parsed.Headers) {
			preview.Issues = append(preview.Issues,
				fmt.Sprintf("la fila %d tiene %d columnas, se esperaban %d", i+2, len(row), len(parsed.Headers)))
		}
	}

	return preview, nil
}

// Parse splits raw bytes into headers and data rows using the detected
// delimiter. Blank lines between data rows are skipped.
func Parse(data []byte, escapedQuotes bool) (*Parsed, error) {
	lines := SplitRows(data)
	if len(lines) == 0 {
		return nil, ErrEmptyFile
	}

	headerIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrEmptyFile
	}

	delimiter := DetectDelimiter(lines[headerIdx])
	headers := ParseLine(lines[headerIdx], delimiter, escapedQuotes)

	var rows [][]string
	for _, line := range lines[headerIdx+1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, ParseLine(line, delimiter, escapedQuotes))
	}

	return &Parsed{Delimiter: delimiter, Headers: headers, Rows: rows}, nil
}
