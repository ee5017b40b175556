package main

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// maxCellWidth 單元格最大顯示寬度，超出截斷
const maxCellWidth = 48

// renderTable 按顯示寬度對齊，中文和 emoji 佔兩列
func renderTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	cell := func(s string) string {
		return runewidth.Truncate(s, maxCellWidth, "…")
	}
	measure := func(row []string) {
		for i, s := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(cell(s)))
			}
		}
	}
	measure(header)
	for _, r := range rows {
		measure(r)
	}

	line := func(row []string) {
		var b strings.Builder
		for i := range widths {
			s := ""
			if i < len(row) {
				s = cell(row[i])
			}
			if i == len(widths)-1 {
				b.WriteString(s)
				break
			}
			b.WriteString(runewidth.FillRight(s, widths[i]))
			b.WriteString("  ")
		}
		io.WriteString(w, strings.TrimRight(b.String(), " ")+"\n")
	}
	line(header)
	for _, r := range rows {
		line(r)
	}
}
