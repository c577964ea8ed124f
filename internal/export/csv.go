// Package export renders analysis results as files: the per-second CSV
// report and the GeoJSON severity layer.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
)

// TimestampLayout is the bucket timestamp format of the CSV report.
const TimestampLayout = "2006-01-02 15:04:05"

// ReportHeader is the column order of the per-second CSV report.
var ReportHeader = []string{
	"timestamp",
	"mean_level", "max_level", "std_level",
	"mean_disp_x", "mean_disp_y", "mean_disp_z",
	"max_disp_x", "max_disp_y", "max_disp_z",
	"mean_temperature", "sample_count", "severity_score",
}

// ReportName returns the report file name for an input log path.
func ReportName(inputPath string) string {
	base := filepath.Base(inputPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_results.csv"
}

// WriteReport writes the CSV report for inputPath into dir, creating dir if
// needed, and returns the report path.
func WriteReport(dir, inputPath string, buckets []domain.SecondBucket) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	path := filepath.Join(dir, ReportName(inputPath))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := WriteBucketsCSV(f, buckets); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	return path, nil
}

// WriteBucketsCSV writes one row per bucket in the given order.
func WriteBucketsCSV(w io.Writer, buckets []domain.SecondBucket) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportHeader); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for _, b := range buckets {
		row := []string{
			b.Timestamp().Format(TimestampLayout),
			formatFloat(b.MeanLevel),
			formatFloat(b.MaxLevel),
			formatFloat(b.StdLevel),
			formatFloat(b.MeanDispX),
			formatFloat(b.MeanDispY),
			formatFloat(b.MeanDispZ),
			formatFloat(b.MaxDispX),
			formatFloat(b.MaxDispY),
			formatFloat(b.MaxDispZ),
			formatFloat(b.MeanTemperature),
			strconv.Itoa(b.SampleCount),
			formatFloat(b.SeverityScore),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write report row %d: %w", b.Key, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// formatFloat writes NaN as "NaN" and everything else in shortest form.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
