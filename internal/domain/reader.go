package domain

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// Sensor log column names.
const (
	ColTime        = "time"
	ColSpeedX      = "SpeedX(mm/s)"
	ColSpeedY      = "SpeedY(mm/s)"
	ColSpeedZ      = "SpeedZ(mm/s)"
	ColDispX       = "DisplacementX(um)"
	ColDispY       = "DisplacementY(um)"
	ColDispZ       = "DisplacementZ(um)"
	ColTemperature = "Temperature(°C)"
)

var requiredColumns = []string{ColTime, ColSpeedX, ColSpeedY, ColSpeedZ, ColDispX, ColDispY, ColDispZ}

// timeLayouts cover the space and slash separated forms ISO 8601 does not.
// Fractional seconds are accepted after the seconds field even though the
// layouts do not spell them out.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
}

const maxLineBytes = 1 << 20

// Warnings counts recoverable problems met while reading a log.
type Warnings struct {
	DroppedRows   int
	MissingValues map[string]int
}

// Total returns the number of dropped rows plus missing cells.
func (w Warnings) Total() int {
	n := w.DroppedRows
	for _, c := range w.MissingValues {
		n += c
	}
	return n
}

func (w *Warnings) missing(col string) {
	if w.MissingValues == nil {
		w.MissingValues = make(map[string]int)
	}
	w.MissingValues[col]++
}

// SampleTable is the parsed content of one sensor log.
type SampleTable struct {
	Samples        []RawSample
	HasTemperature bool
	Warnings       Warnings
}

// ParseSampleLog reads a sensor log. It returns ErrMalformedInput when the
// header is absent or lacks a required column. Unparseable cells become NaN,
// and rows with an unparseable time are dropped; both are counted in the
// table's Warnings.
func ParseSampleLog(r io.Reader) (SampleTable, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	header, tabbed, err := readHeader(sc)
	if err != nil {
		return SampleTable{}, err
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return SampleTable{}, fmt.Errorf("%w: missing column %q", ErrMalformedInput, col)
		}
	}
	tempIdx, hasTemp := idx[ColTemperature]

	table := SampleTable{HasTemperature: hasTemp}
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitRow(line, tabbed, idx[ColTime])

		ts, ok := parseTimestamp(cell(fields, idx[ColTime]))
		if !ok {
			table.Warnings.DroppedRows++
			continue
		}

		s := RawSample{
			Timestamp:   ts,
			SpeedX:      parseCell(fields, idx[ColSpeedX], ColSpeedX, &table.Warnings),
			SpeedY:      parseCell(fields, idx[ColSpeedY], ColSpeedY, &table.Warnings),
			SpeedZ:      parseCell(fields, idx[ColSpeedZ], ColSpeedZ, &table.Warnings),
			DispX:       parseCell(fields, idx[ColDispX], ColDispX, &table.Warnings),
			DispY:       parseCell(fields, idx[ColDispY], ColDispY, &table.Warnings),
			DispZ:       parseCell(fields, idx[ColDispZ], ColDispZ, &table.Warnings),
			Temperature: math.NaN(),
		}
		if hasTemp {
			s.Temperature = parseCell(fields, tempIdx, ColTemperature, &table.Warnings)
		}
		s.Level = VibrationLevel(s.SpeedX, s.SpeedY, s.SpeedZ)
		table.Samples = append(table.Samples, s)
	}
	if err := sc.Err(); err != nil {
		return SampleTable{}, fmt.Errorf("read sample log: %w", err)
	}
	return table, nil
}

// readHeader returns the trimmed column names of the first non-blank line and
// whether the log is tab-delimited.
func readHeader(sc *bufio.Scanner) ([]string, bool, error) {
	for sc.Scan() {
		line := strings.TrimPrefix(sc.Text(), "\ufeff")
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		tabbed := strings.Contains(line, "\t")
		var names []string
		if tabbed {
			names = strings.Split(line, "\t")
		} else {
			names = strings.Fields(line)
		}
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		return names, tabbed, nil
	}
	if err := sc.Err(); err != nil {
		return nil, false, fmt.Errorf("read sample log header: %w", err)
	}
	return nil, false, fmt.Errorf("%w: empty log", ErrMalformedInput)
}

// splitRow splits a data line into trimmed cells. In whitespace-delimited
// rows the time cell absorbs the following field when the two together read
// as a timestamp, since timestamps carry a space between date and clock. Rows
// with an empty trailing cell stay aligned.
func splitRow(line string, tabbed bool, timeIdx int) []string {
	if tabbed {
		fields := strings.Split(line, "\t")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		return fields
	}

	fields := strings.Fields(line)
	if timeIdx+1 >= len(fields) {
		return fields
	}
	joined := fields[timeIdx] + " " + fields[timeIdx+1]
	if _, ok := parseTimestamp(joined); !ok {
		return fields
	}
	merged := make([]string, 0, len(fields)-1)
	merged = append(merged, fields[:timeIdx]...)
	merged = append(merged, joined)
	return append(merged, fields[timeIdx+2:]...)
}

func cell(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// parseCell returns the numeric value of a cell, or NaN when it is empty or
// not a number.
func parseCell(fields []string, i int, col string, w *Warnings) float64 {
	s := cell(fields, i)
	if s == "" {
		w.missing(col)
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		w.missing(col)
		return math.NaN()
	}
	return v
}

// parseTimestamp parses a naive wall-clock time. ISO 8601 input with a zone
// is converted to UTC before the zone is dropped; without one it is taken as
// is.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := iso8601.ParseString(s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
