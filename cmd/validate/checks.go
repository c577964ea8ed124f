package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/couchcryptid/vibration-severity-etl/internal/export"
)

// tolerance absorbs the shortest-form rounding of the CSV report.
const tolerance = 1e-9

// reportRow is one parsed line of the CSV report.
type reportRow struct {
	lineNum int
	key     domain.EpochKey
	values  map[string]float64
	count   int
}

// ── Data loading ──

func loadReport(path string) ([]reportRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("empty report %s", path)
	}
	if !slices.Equal(all[0], export.ReportHeader) {
		return nil, fmt.Errorf("unexpected header %v", all[0])
	}
	return parseRows(all[1:])
}

func parseRows(records [][]string) ([]reportRow, error) {
	header := export.ReportHeader
	rows := make([]reportRow, 0, len(records))
	for i, rec := range records {
		line := i + 2
		ts, err := time.Parse(export.TimestampLayout, rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp: %w", line, err)
		}
		row := reportRow{lineNum: line, key: domain.KeyOf(ts), values: make(map[string]float64, len(header))}
		for j := 1; j < len(header); j++ {
			if header[j] == "sample_count" {
				if row.count, err = strconv.Atoi(rec[j]); err != nil {
					return nil, fmt.Errorf("line %d: sample_count: %w", line, err)
				}
				continue
			}
			v, err := strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, header[j], err)
			}
			row.values[header[j]] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ── Phase 1: Report shape ──
// One row per second, strictly ascending, every row from at least one sample.

func validateReportShape(rows []reportRow) *phase {
	p := &phase{name: "Phase 1: Report Shape (CSV)"}
	if len(rows) == 0 {
		p.errorf("report has no data rows")
		return p
	}
	for i, r := range rows {
		if r.count < 1 {
			p.errorf("line %d: sample_count %d", r.lineNum, r.count)
		}
		if i > 0 && r.key <= rows[i-1].key {
			p.errorf("line %d: key %d not after %d", r.lineNum, r.key, rows[i-1].key)
		}
		if sev := r.values["severity_score"]; !math.IsNaN(sev) && sev < 0 {
			p.errorf("line %d: negative severity %g", r.lineNum, sev)
		}
	}
	return p
}

// ── Phase 2: Store parity ──
// Every report row matches the stored result of the same second.

func validateStoreParity(rows []reportRow, results []domain.ResultRecord) *phase {
	p := &phase{name: "Phase 2: Store Parity (CSV vs results)"}
	if len(rows) != len(results) {
		p.errorf("count: report has %d rows, store has %d results", len(rows), len(results))
	}

	byKey := make(map[domain.EpochKey]domain.ResultRecord, len(results))
	for _, r := range results {
		byKey[r.Key] = r
	}
	for _, row := range rows {
		rec, ok := byKey[row.key]
		if !ok {
			p.errorf("line %d: no stored result for key %d", row.lineNum, row.key)
			continue
		}
		if row.count != rec.SampleCount {
			p.errorf("line %d: sample_count report=%d store=%d", row.lineNum, row.count, rec.SampleCount)
		}
		for col, want := range resultColumns(rec) {
			if !sameFloat(row.values[col], want) {
				p.errorf("line %d: %s report=%g store=%g", row.lineNum, col, row.values[col], want)
			}
		}
	}
	return p
}

// ── Phase 3: Raw references ──
// Each result's key names a raw record of the same file.

func validateRawReferences(results []domain.ResultRecord, raws []domain.RawRecord) *phase {
	p := &phase{name: "Phase 3: Raw References (results vs raw)"}
	raw := make(map[domain.EpochKey]bool, len(raws))
	for _, r := range raws {
		raw[r.Key] = true
	}
	for _, r := range results {
		if !raw[r.RawKey()] {
			p.errorf("result %d: no raw record", r.Key)
		}
	}
	if len(raws) != len(results) {
		p.errorf("count: %d raw records for %d results", len(raws), len(results))
	}
	return p
}

// ── Phase 4: Expected results ──
// Stored results match the fixture genmock derived for the same log.

func validateExpected(expected []domain.ResultMessage, results []domain.ResultRecord) *phase {
	p := &phase{name: "Phase 4: Expected Results (fixture vs store)"}
	if len(expected) != len(results) {
		p.errorf("count: expected %d, store has %d", len(expected), len(results))
	}

	byKey := make(map[int64]domain.ResultMessage, len(expected))
	for _, m := range expected {
		byKey[m.EpochSeconds] = m
	}
	for _, rec := range results {
		want, ok := byKey[int64(rec.Key)]
		if !ok {
			p.errorf("result %d: not in fixture", rec.Key)
			continue
		}
		got := domain.NewResultMessage(rec)
		if got.SampleCount != want.SampleCount {
			p.errorf("result %d: sample_count expected=%d got=%d", rec.Key, want.SampleCount, got.SampleCount)
		}
		if !samePtr(got.SeverityScore, want.SeverityScore) {
			p.errorf("result %d: severity_score expected=%s got=%s", rec.Key, ptrString(want.SeverityScore), ptrString(got.SeverityScore))
		}
		if !samePtr(got.MeanLevel, want.MeanLevel) {
			p.errorf("result %d: mean_level expected=%s got=%s", rec.Key, ptrString(want.MeanLevel), ptrString(got.MeanLevel))
		}
	}
	return p
}

func resultColumns(r domain.ResultRecord) map[string]float64 {
	return map[string]float64{
		"mean_level":       r.MeanLevel,
		"max_level":        r.MaxLevel,
		"std_level":        r.StdLevel,
		"mean_disp_x":      r.MeanDispX,
		"mean_disp_y":      r.MeanDispY,
		"mean_disp_z":      r.MeanDispZ,
		"max_disp_x":       r.MaxDispX,
		"max_disp_y":       r.MaxDispY,
		"max_disp_z":       r.MaxDispZ,
		"mean_temperature": r.MeanTemperature,
		"severity_score":   r.SeverityScore,
	}
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Abs(b))
}

func samePtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return sameFloat(*a, *b)
}

func ptrString(v *float64) string {
	if v == nil {
		return "null"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
