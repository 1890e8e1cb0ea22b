package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/razeghi71/dqflow/workflow"
)

func printResults(w io.Writer, results []workflow.Result) {
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "pipeline at line %d\n", res.Line)
		rows := make([][]string, len(res.Steps))
		for j, s := range res.Steps {
			name := ""
			if s.Table != nil {
				name = s.Table.Name
			}
			rows[j] = []string{s.Stage, name, strconv.Itoa(s.Rows), s.Detail}
		}
		printTable(w, []string{"stage", "table", "rows", "detail"}, rows)
	}
}

func printTable(w io.Writer, header []string, rows [][]string) {
	if len(header) == 0 {
		return
	}

	// Calculate column widths
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i := range header {
			if i < len(row) && len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}

	line := func(cells []string, sep string) {
		parts := make([]string, len(header))
		for i := range header {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = padRight(cell, widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, sep), " "))
	}

	line(header, " | ")
	seps := make([]string, len(header))
	for i := range header {
		seps[i] = strings.Repeat("-", widths[i])
	}
	line(seps, "-+-")
	for _, row := range rows {
		line(row, " | ")
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
