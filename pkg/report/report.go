package report

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/raterudder/zappihistory/pkg/log"
	"github.com/raterudder/zappihistory/pkg/powermeter"
	"github.com/raterudder/zappihistory/pkg/types"
)

// Source returns the raw history samples of a device for one day in
// chronological order.
type Source interface {
	Samples(ctx context.Context, serial string, day types.Date, g types.Granularity) ([]types.RawRecord, error)
}

// Reporter builds per-channel reports from a Source.
type Reporter struct {
	Source      Source
	Granularity types.Granularity
	// TotalsOnly drops the per-sample rows and keeps only the totals.
	TotalsOnly bool
}

// Diagnostic records the unrecognized fields of one sample.
type Diagnostic struct {
	Time   string
	Fields []Field
}

// Table is the report for one device and day.
type Table struct {
	Serial string
	Date   types.Date
	Rows   []Row
	// Totals holds one meter per channel in types.Channels order.
	Totals []*powermeter.Meter
	// Records is the number of samples processed, even when Rows is empty.
	Records     int
	Diagnostics []Diagnostic
}

// Headers returns the column names of the table.
func (t *Table) Headers() []string {
	h := []string{"Time", "Duration"}
	for _, ch := range types.Channels {
		h = append(h, ch.Name())
	}
	return h
}

// Cells renders a row for display. Absent channels render as empty cells.
func (r Row) Cells() []string {
	cells := []string{r.Time, strconv.Itoa(r.Duration)}
	for _, w := range r.Watts {
		if w == nil {
			cells = append(cells, "")
			continue
		}
		cells = append(cells, strconv.Itoa(*w))
	}
	return cells
}

// TotalsCells renders the trailing totals line.
func (t *Table) TotalsCells() []string {
	cells := []string{"Totals", ""}
	for _, m := range t.Totals {
		cells = append(cells, m.String())
	}
	return cells
}

// TotalsJSON folds the totals into a map of channel display name to rendered
// total. Channels with a zero total are omitted.
func (t *Table) TotalsJSON() map[string]string {
	out := make(map[string]string)
	for i, ch := range types.Channels {
		m := t.Totals[i]
		if m.Total() == 0 {
			continue
		}
		out[ch.Name()] = m.String()
	}
	return out
}

// Day fetches and aggregates the samples of one day.
func (r *Reporter) Day(ctx context.Context, serial string, day types.Date) (*Table, error) {
	recs, err := r.Source.Samples(ctx, serial, day, r.Granularity)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s samples for %s: %w", r.Granularity, day, err)
	}

	prev := -r.Granularity.SlotSeconds()
	t := &Table{
		Serial: serial,
		Date:   day,
		Totals: make([]*powermeter.Meter, len(types.Channels)),
	}
	for i := range t.Totals {
		t.Totals[i] = powermeter.New(float64(prev))
	}

	for _, rec := range recs {
		s := Normalize(rec, r.Granularity, prev)
		for i, m := range t.Totals {
			m.AddValue(s.Watts[i], float64(s.Timestamp))
		}
		prev = s.Timestamp

		if len(s.Unknown) > 0 {
			fields := make([]string, len(s.Unknown))
			for i, f := range s.Unknown {
				fields[i] = f.String()
			}
			log.Ctx(ctx).WarnContext(
				ctx,
				"unrecognized sample fields",
				slog.String("serial", serial),
				slog.String("day", day.String()),
				slog.String("time", s.Row.Time),
				slog.Any("fields", fields),
			)
			t.Diagnostics = append(t.Diagnostics, Diagnostic{Time: s.Row.Time, Fields: s.Unknown})
		}

		if !r.TotalsOnly {
			t.Rows = append(t.Rows, s.Row)
		}
		t.Records++
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"processed samples",
		slog.String("serial", serial),
		slog.String("day", day.String()),
		slog.String("granularity", r.Granularity.String()),
		slog.Int("records", t.Records),
		slog.Int("diagnostics", len(t.Diagnostics)),
	)
	return t, nil
}

// MonthTable holds the totals of each day of a month.
type MonthTable struct {
	Serial string
	Days   []*Table
}

// Headers returns the column names of the month table.
func (m *MonthTable) Headers() []string {
	h := []string{"Day"}
	for _, ch := range types.Channels {
		h = append(h, ch.Name())
	}
	return h
}

// Cells renders the totals line of every day.
func (m *MonthTable) Cells() [][]string {
	rows := make([][]string, 0, len(m.Days))
	for _, t := range m.Days {
		row := []string{t.Date.String()}
		for _, meter := range t.Totals {
			row = append(row, meter.String())
		}
		rows = append(rows, row)
	}
	return rows
}

// Month runs Day for every day from the first of upTo's month through upTo.
// If each is non-nil it is called with every day's table as it completes.
func (r *Reporter) Month(ctx context.Context, serial string, upTo types.Date, each func(*Table) error) (*MonthTable, error) {
	m := &MonthTable{Serial: serial}
	for dom := 1; dom <= upTo.Day; dom++ {
		t, err := r.Day(ctx, serial, upTo.WithDay(dom))
		if err != nil {
			return nil, err
		}
		if each != nil {
			if err := each(t); err != nil {
				return nil, err
			}
		}
		m.Days = append(m.Days, t)
	}
	return m, nil
}
