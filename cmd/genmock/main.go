// Command genmock writes a synthetic vibration log, a matching GPX track and
// the per-second results the pipeline is expected to derive from them. The
// fixtures feed the pipeline tests and local end-to-end runs.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out-dir data/mock \
//	  -start 2025-03-23T15:27:52Z \
//	  -seconds 300
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Track origin and cruising speed of the synthetic run.
const (
	originLat   = 1.352100
	originLon   = 103.819800
	cruiseSpeed = 8.0 // m/s
	earthRadius = 6_371_000.0
)

type options struct {
	outDir    string
	start     time.Time
	seconds   int
	rate      int
	gpsStep   int
	gapAt     int
	gapLen    int
	gpsOffset time.Duration
	seed      uint64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "", "directory receiving data/, gpx/ and expected/")
	start := flag.String("start", "2025-03-23T15:27:52Z", "first sample time, RFC 3339")
	seconds := flag.Int("seconds", 300, "length of the run in seconds")
	rate := flag.Int("rate", 5, "sensor samples per second")
	gpsStep := flag.Int("gps-step", 2, "seconds between GPS fixes")
	gapLen := flag.Int("gap", 20, "length of the GPS dropout in the middle of the run, seconds")
	gpsOffset := flag.Duration("gps-offset", 8*time.Hour, "sensor clock minus GPS clock; match GPS_TIME_OFFSET")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out-dir")
	}
	t0, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	if *seconds <= 0 || *rate <= 0 || *gpsStep <= 0 {
		return fmt.Errorf("-seconds, -rate and -gps-step must be positive")
	}

	opts := options{
		outDir:    *outDir,
		start:     t0.UTC(),
		seconds:   *seconds,
		rate:      *rate,
		gpsStep:   *gpsStep,
		gapAt:     *seconds / 2,
		gapLen:    *gapLen,
		gpsOffset: *gpsOffset,
		seed:      *seed,
	}

	// Fixed clock so created_at in the expected results is reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(opts.start.Add(time.Duration(opts.seconds+60) * time.Second)))
	defer domain.SetClock(nil)

	stem := "run-" + opts.start.Format("20060102-150405")

	logBody := sensorLog(opts)
	logPath := filepath.Join(opts.outDir, "data", stem+".txt")
	if err := writeFile(logPath, logBody); err != nil {
		return fmt.Errorf("writing sensor log: %w", err)
	}
	log.Printf("wrote sensor log: %s", logPath)

	gpxPath := filepath.Join(opts.outDir, "gpx", stem+".gpx")
	if err := writeFile(gpxPath, track(opts)); err != nil {
		return fmt.Errorf("writing gpx track: %w", err)
	}
	log.Printf("wrote gpx track: %s", gpxPath)

	table, err := domain.ParseSampleLog(bytes.NewReader(logBody))
	if err != nil {
		return fmt.Errorf("re-reading sensor log: %w", err)
	}
	results := domain.Analyze(stem+".txt", table).ResultRecords()

	msgs := make([]domain.ResultMessage, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, domain.NewResultMessage(r))
	}
	expectPath := filepath.Join(opts.outDir, "expected", stem+"_results.json")
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal expected results: %w", err)
	}
	if err := writeFile(expectPath, append(data, '\n')); err != nil {
		return fmt.Errorf("writing expected results: %w", err)
	}
	log.Printf("wrote expected results: %s", expectPath)

	printStats(table, results)
	return nil
}

// sensorLog renders a tab-delimited log with a pothole-like burst a third of
// the way in and an occasional blank temperature cell.
func sensorLog(o options) []byte {
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	burst := o.seconds / 3

	var b strings.Builder
	b.WriteString(strings.Join([]string{
		domain.ColTime,
		domain.ColSpeedX, domain.ColSpeedY, domain.ColSpeedZ,
		domain.ColDispX, domain.ColDispY, domain.ColDispZ,
		domain.ColTemperature,
	}, "\t"))
	b.WriteByte('\n')

	step := time.Second / time.Duration(o.rate)
	n := 0
	for s := 0; s < o.seconds; s++ {
		gain := 1.0
		if d := s - burst; d >= 0 && d < 4 {
			gain = 12.0 / float64(d+1)
		}
		for i := 0; i < o.rate; i++ {
			ts := o.start.Add(time.Duration(s)*time.Second + time.Duration(i)*step)
			n++

			temp := fmt.Sprintf("%.1f", 26+0.01*float64(s)+rng.NormFloat64()*0.2)
			if n%97 == 0 {
				temp = ""
			}
			fmt.Fprintf(&b, "%s\t%.3f\t%.3f\t%.3f\t%.2f\t%.2f\t%.2f\t%s\n",
				ts.Format("2006-01-02 15:04:05.000"),
				gain*math.Abs(1.2+rng.NormFloat64()*0.4),
				gain*math.Abs(0.9+rng.NormFloat64()*0.3),
				gain*math.Abs(2.1+rng.NormFloat64()*0.6),
				gain*math.Abs(15+rng.NormFloat64()*4),
				gain*math.Abs(12+rng.NormFloat64()*3),
				gain*math.Abs(30+rng.NormFloat64()*8),
				temp,
			)
		}
	}
	return []byte(b.String())
}

// track renders a GPX 1.1 document heading north-east at cruiseSpeed, with a
// dropout of gapLen seconds in the middle. Fix times are the sensor times
// minus gpsOffset, as a UTC receiver would record them.
func track(o options) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<gpx version="1.1" creator="genmock" xmlns="http://www.topografix.com/GPX/1/1">` + "\n")
	b.WriteString("  <trk>\n    <name>genmock</name>\n    <trkseg>\n")

	bearing := math.Pi / 4
	perStep := cruiseSpeed * float64(o.gpsStep)
	for s := 0; s < o.seconds; s += o.gpsStep {
		if s > o.gapAt && s < o.gapAt+o.gapLen {
			continue
		}
		dist := cruiseSpeed * float64(s)
		lat := originLat + degrees(dist*math.Cos(bearing)/earthRadius)
		lon := originLon + degrees(dist*math.Sin(bearing)/(earthRadius*math.Cos(radians(originLat))))
		fmt.Fprintf(&b, "      <trkpt lat=\"%.7f\" lon=\"%.7f\">\n", lat, lon)
		fmt.Fprintf(&b, "        <ele>%.1f</ele>\n", 15+2*math.Sin(float64(s)/30))
		fmt.Fprintf(&b, "        <time>%s</time>\n", o.start.Add(time.Duration(s)*time.Second-o.gpsOffset).Format(time.RFC3339))
		fmt.Fprintf(&b, "        <extensions><speed>%.2f</speed><gradient>0.0</gradient><length>%.1f</length></extensions>\n",
			cruiseSpeed, perStep)
		b.WriteString("      </trkpt>\n")
	}

	b.WriteString("    </trkseg>\n  </trk>\n</gpx>\n")
	return []byte(b.String())
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func printStats(table domain.SampleTable, results []domain.ResultRecord) {
	var peak domain.ResultRecord
	peak.SeverityScore = math.Inf(-1)
	for _, r := range results {
		if r.SeverityScore > peak.SeverityScore {
			peak = r
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Samples: %d\n", len(table.Samples))
	fmt.Printf("Seconds: %d\n", len(results))
	fmt.Printf("Missing cells: %d\n", table.Warnings.Total())
	if len(results) > 0 {
		fmt.Printf("Peak severity: %.3f at %s\n", peak.SeverityScore, peak.Key.Time().Format(time.RFC3339))
	}
}
