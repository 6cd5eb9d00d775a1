package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"logrep/internal/core/dayobs"
	perr "logrep/internal/platform/errors"
	pstrings "logrep/internal/platform/strings"
	nldom "logrep/internal/services/nightlog/domain"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

const maxMessage = 72

var formats = []string{"json", "yaml", "table"}

func validFormat(f string) bool {
	for _, v := range formats {
		if f == v {
			return true
		}
	}
	return false
}

func write(w io.Writer, format string, sum *nldom.Summary) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sum); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		_, err := io.WriteString(w, renderTables(sum))
		return err
	}
	return perr.InvalidArgf("unknown format %q", format)
}

var (
	bold   = lipgloss.NewStyle().Bold(true)
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cell   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dim).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return cell.Bold(true)
			}
			return cell
		})
}

// renderTables prints the human summary: sources, tallies, gaps and the time log
func renderTables(sum *nldom.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s .. %s  %s\n\n",
		bold.Render("logrep"), sum.Min, sum.Max, dim.Render("run "+sum.RunID))

	b.WriteString(bold.Render("Sources") + "\n")
	b.WriteString(sourcesTable(sum).String() + "\n\n")

	insts := sortedKeys(sum.Tally)
	for _, inst := range insts {
		t := newTable(inst, "")
		for _, ln := range sum.Tally[inst] {
			t.Row(ln.Label, ln.Value)
		}
		b.WriteString(t.String() + "\n")
	}
	if len(insts) > 0 {
		b.WriteString("\n")
	}

	if len(sum.GapMinutes) > 0 {
		b.WriteString(bold.Render("Gaps") + "\n")
		b.WriteString(gapsTable(sum).String() + "\n\n")
	}

	tl := sum.TimeLog
	b.WriteString(bold.Render("Time log") + "\n")
	t := newTable("stage", "rows", "columns")
	t.Row("merged", strconv.Itoa(tl.Rows), "")
	t.Row("reduced", strconv.Itoa(tl.Frame.Len()), strconv.Itoa(len(tl.Frame.Columns)))
	t.Row("dense", strconv.Itoa(tl.Dense.Len()), strconv.Itoa(len(tl.Dense.Columns)))
	t.Row("sparse", strconv.Itoa(tl.Sparse.Len()), strconv.Itoa(len(tl.Sparse.Columns)))
	b.WriteString(t.String() + "\n")
	if r := tl.Compaction; r != nil && r.Lossy() {
		fmt.Fprintf(&b, "%s dropped %d admin, %d missing, %d list columns and %d duplicate rows\n",
			yellow.Render("lossy:"), len(r.AdminColumns), len(r.MissingColumns), len(r.ListColumns), r.DuplicateRows)
	}
	return b.String()
}

func sourcesTable(sum *nldom.Summary) *table.Table {
	t := newTable("source", "endpoint", "records", "pages", "state")
	for _, src := range nldom.SourceOrder {
		st, ok := sum.Status[src]
		if !ok {
			continue
		}
		for _, ep := range st.Names() {
			s := st[ep]
			t.Row(src, ep, strconv.Itoa(s.NumberOfRecords), strconv.Itoa(s.Pages), state(s.Error, s.NoRecords, s.Truncated, s.Cached))
		}
		if w, ok := sum.Errors[src]; ok {
			t.Row(src, "", "", "", red.Render(pstrings.Truncate(w.Name+": "+w.Message, maxMessage)))
		}
	}
	return t
}

func state(e *perr.Wire, none, truncated, cached bool) string {
	switch {
	case e != nil:
		return red.Render(e.Name)
	case none:
		return yellow.Render("no records")
	case truncated:
		return yellow.Render("truncated")
	case cached:
		return green.Render("cached")
	}
	return green.Render("ok")
}

func gapsTable(sum *nldom.Summary) *table.Table {
	t := newTable("instrument", "night", "gaps", "minutes")
	for _, inst := range sortedKeys(sum.GapMinutes) {
		nights := make([]dayobs.Day, 0, len(sum.GapMinutes[inst]))
		for d := range sum.GapMinutes[inst] {
			nights = append(nights, d)
		}
		sort.Slice(nights, func(i, j int) bool { return nights[i] < nights[j] })
		for _, d := range nights {
			n := len(sum.Gaps[inst][d])
			t.Row(inst, d.String(), strconv.Itoa(n), strconv.FormatFloat(sum.GapMinutes[inst][d], 'f', 1, 64))
		}
	}
	return t
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
