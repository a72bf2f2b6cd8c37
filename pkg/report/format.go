package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Formatter writes the tables of a single device. The column header is only
// written for the first day table so repeated days of the same device read as
// one table.
type Formatter struct {
	w             io.Writer
	headerEmitted bool
}

// NewFormatter returns a Formatter for one device writing to w.
func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

// WriteDay writes the record count followed by the rows and the totals line.
func (f *Formatter) WriteDay(t *Table) error {
	if _, err := fmt.Fprintf(f.w, "There are %d records\n", t.Records); err != nil {
		return err
	}
	var header []string
	if !f.headerEmitted {
		header = t.Headers()
		f.headerEmitted = true
	}
	rows := make([][]string, 0, len(t.Rows)+1)
	for _, r := range t.Rows {
		rows = append(rows, r.Cells())
	}
	rows = append(rows, t.TotalsCells())
	return writeTable(f.w, header, rows)
}

// WriteMonth writes the per-day totals of a month with its own header.
func (f *Formatter) WriteMonth(m *MonthTable) error {
	return writeTable(f.w, m.Headers(), m.Cells())
}

func writeTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if header != nil {
		fmt.Fprintln(tw, strings.Join(header, "\t"))
		rules := make([]string, len(header))
		for i, h := range header {
			rules[i] = strings.Repeat("-", len(h))
		}
		fmt.Fprintln(tw, strings.Join(rules, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// WriteJSON writes the serial → channel → total document with sorted keys.
func WriteJSON(w io.Writer, doc map[string]map[string]string) error {
	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
