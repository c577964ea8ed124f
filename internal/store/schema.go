package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
)

type kind int

const (
	kindInt kind = iota
	kindFloat
	kindText
)

type column struct {
	name    string
	kind    kind
	notNull bool
}

type table struct {
	name    string
	columns []column // first column is the primary key
	index   string   // optional secondary index column
}

const (
	tableRaw        = "raw_data"
	tableResults    = "analysis_results"
	tableGPSRaw     = "gps_data"
	tableGPSResults = "gps_results"
)

var (
	rawTable = table{
		name: tableRaw,
		columns: []column{
			{"epoch_seconds", kindInt, true},
			{"file_name", kindText, true},
			{"recorded_at", kindText, true},
			{"speed_x", kindFloat, false},
			{"speed_y", kindFloat, false},
			{"speed_z", kindFloat, false},
			{"displacement_x", kindFloat, false},
			{"displacement_y", kindFloat, false},
			{"displacement_z", kindFloat, false},
			{"temperature", kindFloat, false},
			{"created_at", kindInt, true},
		},
		index: "file_name",
	}

	resultsTable = table{
		name: tableResults,
		columns: []column{
			{"epoch_seconds", kindInt, true},
			{"file_name", kindText, true},
			{"sample_count", kindInt, true},
			{"mean_level", kindFloat, false},
			{"max_level", kindFloat, false},
			{"std_level", kindFloat, false},
			{"mean_disp_x", kindFloat, false},
			{"mean_disp_y", kindFloat, false},
			{"mean_disp_z", kindFloat, false},
			{"max_disp_x", kindFloat, false},
			{"max_disp_y", kindFloat, false},
			{"max_disp_z", kindFloat, false},
			{"mean_temperature", kindFloat, false},
			{"velocity_score", kindFloat, false},
			{"mean_displacement", kindFloat, false},
			{"severity_score", kindFloat, false},
			{"created_at", kindInt, true},
		},
		index: "file_name",
	}

	gpsRawTable = table{
		name: tableGPSRaw,
		columns: []column{
			{"epoch_seconds", kindInt, true},
			{"file_name", kindText, true},
			{"recorded_at", kindText, true},
			{"latitude", kindFloat, true},
			{"longitude", kindFloat, true},
			{"elevation", kindFloat, false},
			{"speed", kindFloat, false},
			{"gradient", kindFloat, false},
			{"length", kindFloat, false},
			{"created_at", kindInt, true},
		},
		index: "file_name",
	}

	gpsResultsTable = table{
		name: tableGPSResults,
		columns: []column{
			{"epoch_seconds", kindInt, true},
			{"recorded_at", kindText, true},
			{"latitude", kindFloat, true},
			{"longitude", kindFloat, true},
			{"velocity_magnitude", kindFloat, false},
			{"velocity_direction", kindFloat, false},
			{"created_at", kindInt, true},
		},
	}

	allTables = []table{rawTable, resultsTable, gpsRawTable, gpsResultsTable}
)

func (s *Store) sqlType(k kind) string {
	switch k {
	case kindInt:
		return "BIGINT"
	case kindFloat:
		switch s.driver {
		case DriverPostgres:
			return "DOUBLE PRECISION"
		case DriverDuckDB:
			return "DOUBLE"
		}
		return "REAL"
	default:
		return "TEXT"
	}
}

func (s *Store) createTableSQL(t table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.name)
	for i, c := range t.columns {
		fmt.Fprintf(&b, "\t%s %s", c.name, s.sqlType(c.kind))
		if i == 0 {
			b.WriteString(" PRIMARY KEY")
		} else if c.notNull {
			b.WriteString(" NOT NULL")
		}
		if i < len(t.columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

// upsertSQL builds an insert that replaces every non-key column on key conflict.
func (s *Store) upsertSQL(t table) string {
	names := t.columnNames()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	sets := make([]string, 0, len(names)-1)
	for _, n := range names[1:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", n, n))
	}
	return s.rebind(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		t.name, strings.Join(names, ", "), placeholders, names[0], strings.Join(sets, ", "),
	))
}

func (t table) columnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

func (t table) selectList() string {
	return strings.Join(t.columnNames(), ", ")
}

// InitSchema creates every table and index that does not exist yet. It is
// safe to call on an initialised database.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, t := range allTables {
		if _, err := s.db.ExecContext(ctx, s.createTableSQL(t)); err != nil {
			return fmt.Errorf("%w: create table %s: %w", domain.ErrStoreUnavailable, t.name, err)
		}
		if t.index == "" {
			continue
		}
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", t.name, t.index, t.name, t.index)
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("%w: create index on %s: %w", domain.ErrStoreUnavailable, t.name, err)
		}
	}
	return nil
}
