package extract

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

func extractCSV(data []byte) (*Result, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	if looksTabSeparated(data) {
		reader.Comma = '\t'
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv failed: %w", err)
		}
		rows = append(rows, record)
	}
	return tabularResult(FormatCSV, rows), nil
}

func extractExcel(data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook failed: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Result{Format: FormatExcel}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q failed: %w", sheets[0], err)
	}
	return tabularResult(FormatExcel, rows), nil
}

// tabularResult treats the first row as the header and renders every other
// row as "column=value" pairs.
func tabularResult(format Format, rows [][]string) *Result {
	res := &Result{Format: format}
	if len(rows) == 0 {
		return res
	}

	header := rows[0]
	lines := make([]string, 0, len(rows))
	lines = append(lines, strings.Join(header, ","))
	items := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		lines = append(lines, strings.Join(row, ","))
		pairs := make([]string, 0, len(row))
		for i, cell := range row {
			col := fmt.Sprintf("column_%d", i+1)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				col = strings.TrimSpace(header[i])
			}
			pairs = append(pairs, col+"="+strings.TrimSpace(cell))
		}
		items = append(items, strings.Join(pairs, ", "))
	}
	res.Text = strings.Join(lines, "\n")
	res.Items = items
	return res
}

func extractJSON(data []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &Result{Format: FormatJSON}, nil
	}

	var doc interface{}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		items, ndErr := splitNDJSON(trimmed)
		if ndErr != nil {
			return nil, fmt.Errorf("parse json failed: %w", err)
		}
		return &Result{Format: FormatJSON, Text: string(trimmed), Items: items}, nil
	}

	res := &Result{Format: FormatJSON, Text: string(trimmed)}
	if arr, ok := doc.([]interface{}); ok {
		res.Items = make([]string, 0, len(arr))
		for _, el := range arr {
			b, err := json.Marshal(el)
			if err != nil {
				return nil, fmt.Errorf("encode json item failed: %w", err)
			}
			res.Items = append(res.Items, string(b))
		}
		return res, nil
	}
	res.Items = []string{string(trimmed)}
	return res, nil
}

func splitNDJSON(data []byte) ([]string, error) {
	var items []string
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("invalid json line")
		}
		items = append(items, string(line))
	}
	return items, nil
}

func looksTabSeparated(data []byte) bool {
	firstLine := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		firstLine = data[:idx]
	}
	return bytes.Count(firstLine, []byte("\t")) > bytes.Count(firstLine, []byte(","))
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
