package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/couchcryptid/vibration-severity-etl/internal/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, time.March, 23, 15, 27, 52, 0, time.UTC)

func bucket(sec int, severity float64) domain.SecondBucket {
	return domain.SecondBucket{
		Key:             domain.KeyOf(base.Add(time.Duration(sec) * time.Second)),
		SampleCount:     5,
		MeanLevel:       2.5,
		MaxLevel:        4,
		StdLevel:        0.75,
		MeanDispX:       10,
		MeanDispY:       12,
		MeanDispZ:       30,
		MaxDispX:        14,
		MaxDispY:        15,
		MaxDispZ:        41,
		MeanTemperature: math.NaN(),
		VelocityScore:   1.2,
		MeanDisp:        17.3,
		SeverityScore:   severity,
	}
}

func results(buckets ...domain.SecondBucket) []domain.ResultRecord {
	out := make([]domain.ResultRecord, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, domain.ResultRecord{SecondBucket: b, FileName: "run.txt"})
	}
	return out
}

func writeReport(t *testing.T, buckets ...domain.SecondBucket) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, export.WriteBucketsCSV(&buf, buckets))
	path := filepath.Join(t.TempDir(), "run_results.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestLoadReport_RoundTripsExport(t *testing.T) {
	path := writeReport(t, bucket(0, 3.5), bucket(1, 0.1))

	rows, err := loadReport(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.KeyOf(base), rows[0].key)
	assert.Equal(t, 5, rows[0].count)
	assert.InDelta(t, 3.5, rows[0].values["severity_score"], 0)
	assert.True(t, math.IsNaN(rows[0].values["mean_temperature"]))
}

func TestLoadReport_RejectsForeignHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600))

	_, err := loadReport(path)
	assert.Error(t, err)
}

func TestValidateReportShape(t *testing.T) {
	rows, err := loadReport(writeReport(t, bucket(0, 1), bucket(1, 2)))
	require.NoError(t, err)
	assert.True(t, validateReportShape(rows).passed())

	rows[1].key = rows[0].key
	rows[1].count = 0
	p := validateReportShape(rows)
	assert.Len(t, p.errors, 2)

	assert.False(t, validateReportShape(nil).passed())
}

func TestValidateStoreParity(t *testing.T) {
	b0, b1 := bucket(0, 3.5), bucket(1, 0.1)
	rows, err := loadReport(writeReport(t, b0, b1))
	require.NoError(t, err)

	assert.True(t, validateStoreParity(rows, results(b0, b1)).passed())

	changed := b1
	changed.SeverityScore = 9
	p := validateStoreParity(rows, results(b0, changed))
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "severity_score")

	p = validateStoreParity(rows, results(b0))
	assert.Len(t, p.errors, 2, "count mismatch and missing key")
}

func TestValidateRawReferences(t *testing.T) {
	res := results(bucket(0, 1), bucket(1, 2))
	raws := []domain.RawRecord{{Key: res[0].Key}, {Key: res[1].Key}}
	assert.True(t, validateRawReferences(res, raws).passed())

	p := validateRawReferences(res, raws[:1])
	assert.Len(t, p.errors, 2)
}

func TestValidateExpected(t *testing.T) {
	res := results(bucket(0, 3.5), bucket(1, 0.1))
	expected := []domain.ResultMessage{
		domain.NewResultMessage(res[0]),
		domain.NewResultMessage(res[1]),
	}
	assert.True(t, validateExpected(expected, res).passed())

	off := 3.6
	expected[0].SeverityScore = &off
	p := validateExpected(expected, res)
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "severity_score")
}

func TestSourceName(t *testing.T) {
	assert.Equal(t, "run-01.txt", sourceName("results/run-01_results.csv"))
}

func TestSameFloat(t *testing.T) {
	assert.True(t, sameFloat(math.NaN(), math.NaN()))
	assert.False(t, sameFloat(math.NaN(), 0))
	assert.True(t, sameFloat(1e6, 1e6+1e-4))
	assert.False(t, sameFloat(1, 1.001))
}
