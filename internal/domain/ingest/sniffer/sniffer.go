// Package sniffer detects CSV file structure: delimiter, encoding, headers,
// and year columns. It also provides the tolerant line splitter used by both
// the preview and the processing pipeline.
package sniffer

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var ErrEmptyFile = errors.New("file is empty")

// delimiter candidates in priority order; ties resolve to the earliest entry
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// DefaultDelimiter is returned when no candidate occurs in the header line
const DefaultDelimiter = ','

// DetectDelimiter picks the delimiter with the highest occurrence count in
// the given line. Quoted segments are not special-cased here: the header line
// of a well-formed file dominates the count either way.
func DetectDelimiter(line string) rune {
	best := DefaultDelimiter
	bestCount := 0
	for _, d := range delimiterCandidates {
		count := strings.Count(line, string(d))
		if count > bestCount {
			bestCount = count
			best = d
		}
	}
	return best
}

// ParseLine splits a line into trimmed fields, honoring double quotes around
// delimiters. With escapedQuotes, a doubled quote inside a quoted field
// becomes a literal quote (the stricter behavior used by the bulk loader);
// without it, quote characters merely toggle the in-quotes state.
// At least one field is always emitted, even for an empty line.
func ParseLine(line string, delimiter rune, escapedQuotes bool) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if escapedQuotes && inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case ch == delimiter && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}

// SplitRows normalizes encoding, strips the BOM, and splits raw file bytes
// into lines. CRLF endings are handled; trailing empty lines are dropped.
func SplitRows(data []byte) []string {
	data = normalizeBytes(data)
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Encoding reports the detected input encoding for preview metadata
func Encoding(data []byte) string {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return "utf-8-bom"
	}
	if utf8.Valid(data) {
		return "utf-8"
	}
	return "latin-1"
}

func normalizeBytes(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		data = data[3:]
	}
	if utf8.Valid(data) {
		return data
	}
	return decodeLatin1(data)
}

// decodeLatin1 maps each byte to its Unicode code point; ISO-8859-1 is the
// common non-UTF-8 encoding for Spanish accounting exports.
func decodeLatin1(data []byte) []byte {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return []byte(string(runes))
}
