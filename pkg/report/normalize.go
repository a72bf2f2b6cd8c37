package report

import (
	"fmt"
	"sort"

	"github.com/raterudder/zappihistory/pkg/types"
)

// minuteWattsFactor converts a per-minute channel reading divided by the
// supply voltage into watts. It is a device calibration constant.
const minuteWattsFactor = 4

// calendarKeys repeat the queried day on every record.
var calendarKeys = []string{"dow", "yr", "mon", "dom"}

// duplicateKeys map a channel to the CT reading it is copied from.
var duplicateKeys = map[types.Channel]string{
	types.ChannelImported: "nect1",
	types.ChannelExported: "pect1",
}

// Row is one line of a day report.
type Row struct {
	// Time is the slot start formatted as HH:MM.
	Time string
	// Duration is the number of seconds since the previous slot.
	Duration int
	// Watts holds one value per channel in types.Channels order. A nil value
	// means the channel was absent from the record, which is different from a
	// zero reading.
	Watts []*int
}

// Field is a raw record field that was not recognized.
type Field struct {
	Key   string
	Value any
}

func (f Field) String() string {
	return fmt.Sprintf("%s=%v", f.Key, f.Value)
}

// Sample is a normalized raw record.
type Sample struct {
	Row Row
	// Timestamp is the slot start in seconds since midnight.
	Timestamp int
	// Watts is the average power of every channel, 0 when absent.
	Watts []float64
	// Unknown lists fields that were left over after normalization, sorted by
	// key.
	Unknown []Field
}

// Normalize converts a raw record into a Sample. prev is the timestamp of the
// previous slot, or minus one slot for the first record of the day. The raw
// record is not modified.
func Normalize(rec types.RawRecord, g types.Granularity, prev int) Sample {
	used := make(map[string]bool, len(rec))

	for ch, dupKey := range duplicateKeys {
		v, ok := number(rec, ch.Key())
		d, dok := number(rec, dupKey)
		if ok && dok && v == d {
			used[dupKey] = true
		}
	}
	for _, k := range calendarKeys {
		used[k] = true
	}

	hour := intField(rec, "hr", 23, used)
	minute := intField(rec, "min", 59, used)
	ts := (hour*60 + minute) * 60

	// a zero voltage is left unused so it is reported instead of dividing by it
	volts := 1.0
	if v, ok := number(rec, "v1"); ok && v > 0 {
		volts = v / 10
		used["v1"] = true
	}
	used["frq"] = true

	s := Sample{
		Timestamp: ts,
		Watts:     make([]float64, len(types.Channels)),
		Row: Row{
			Time:     fmt.Sprintf("%02d:%02d", hour, minute),
			Duration: ts - prev,
			Watts:    make([]*int, len(types.Channels)),
		},
	}

	for i, ch := range types.Channels {
		v, ok := number(rec, ch.Key())
		if !ok {
			continue
		}
		used[ch.Key()] = true

		var watts float64
		if g == types.Hourly {
			watts = v / float64(g.SlotSeconds())
		} else {
			watts = v / volts * minuteWattsFactor
		}
		s.Watts[i] = watts
		w := int(watts)
		s.Row.Watts[i] = &w
	}

	for k, v := range rec {
		if !used[k] {
			s.Unknown = append(s.Unknown, Field{Key: k, Value: v})
		}
	}
	sort.Slice(s.Unknown, func(i, j int) bool {
		return s.Unknown[i].Key < s.Unknown[j].Key
	})
	return s
}

// number returns the numeric value of key. Non-numeric values are treated as
// absent so that they surface as unknown fields.
func number(rec types.RawRecord, key string) (float64, bool) {
	switch v := rec[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// intField returns the value of key. A value outside [0, limit] is still used
// for the timestamp but left unconsumed so it is reported.
func intField(rec types.RawRecord, key string, limit int, used map[string]bool) int {
	v, ok := number(rec, key)
	if !ok {
		return 0
	}
	n := int(v)
	if n >= 0 && n <= limit {
		used[key] = true
	}
	return n
}
