// Command validate cross-checks an exported per-second CSV report against the
// records held in the store and, optionally, against the expected results
// written by genmock. It verifies row counts, ordering, value parity and the
// raw-record reference of every result.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -csv results/run-20250323-152752_results.csv \
//	  -expected data/mock/expected/run-20250323-152752_results.json
//
// The store is opened from the same environment as the etl command.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/vibration-severity-etl/internal/config"
	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/couchcryptid/vibration-severity-etl/internal/store"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	csvPath := flag.String("csv", "", "path to an exported *_results.csv report")
	fileName := flag.String("file", "", "source log name as stored (default: derived from -csv)")
	expectedPath := flag.String("expected", "", "optional genmock expected results JSON")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	name := *fileName
	if name == "" {
		name = sourceName(*csvPath)
	}

	if code := run(context.Background(), *csvPath, name, *expectedPath); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, csvPath, fileName, expectedPath string) int {
	fmt.Println("=== Vibration Report Integrity Validation ===")
	fmt.Println()

	rows, err := loadReport(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load report: %v\n", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}
	st, err := store.Open(ctx, store.Options{
		Driver:    cfg.DBDriver,
		Path:      cfg.DBPath,
		DSN:       cfg.DBDSN,
		BatchSize: cfg.BatchSize,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open store: %v\n", err)
		return 1
	}
	defer st.Close()

	results, err := st.ResultsByFile(ctx, fileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load stored results: %v\n", err)
		return 1
	}
	raws, err := st.RawByFile(ctx, fileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load stored raw records: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateReportShape(rows),
		validateStoreParity(rows, results),
		validateRawReferences(results, raws),
	}

	if expectedPath != "" {
		expected, err := loadExpected(expectedPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load expected results: %v\n", err)
			return 1
		}
		phases = append(phases, validateExpected(expected, results))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d CSV rows, %d stored results, %d stored raw (file %s)\n",
		len(rows), len(results), len(raws), fileName)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// sourceName maps "<stem>_results.csv" back to the analysed "<stem>.txt".
func sourceName(csvPath string) string {
	base := filepath.Base(csvPath)
	return strings.TrimSuffix(base, "_results.csv") + ".txt"
}

func loadExpected(path string) ([]domain.ResultMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var msgs []domain.ResultMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
