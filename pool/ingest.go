package pool

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseWorkbook reads sourced leads from the first sheet of an xlsx export.
// The header row is matched by name (case-insensitive): name, phone, email,
// social, licensed. Rows missing a name or phone are skipped.
func ParseWorkbook(r io.Reader) ([]LeadInput, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("pool: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("pool: workbook has no sheets")
	}
	sheet := sheets[0]

	rs, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("pool: read sheet %s: %w", sheet, err)
	}
	defer rs.Close()

	var (
		cols   map[string]int
		out    []LeadInput
		rowNum int
	)
	for rs.Next() {
		rowNum++
		cells, err := rs.Columns()
		if err != nil {
			return nil, fmt.Errorf("pool: read row %d: %w", rowNum, err)
		}

		if cols == nil {
			cols = headerIndex(cells)
			if _, ok := cols["name"]; !ok {
				return nil, fmt.Errorf("pool: sheet %s missing name column", sheet)
			}
			if _, ok := cols["phone"]; !ok {
				return nil, fmt.Errorf("pool: sheet %s missing phone column", sheet)
			}
			continue
		}

		in := LeadInput{
			FullName:     cell(cells, cols, "name"),
			Phone:        cell(cells, cols, "phone"),
			Email:        cell(cells, cols, "email"),
			SocialHandle: cell(cells, cols, "social"),
			Licensed:     parseBool(cell(cells, cols, "licensed")),
			SourceSheet:  sheet,
			SourceRow:    rowNum,
		}
		if in.FullName == "" || in.Phone == "" {
			continue
		}
		out = append(out, in)
	}

	return out, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func cell(cells []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1", "licensed":
		return true
	default:
		return false
	}
}
