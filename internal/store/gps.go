package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
)

// UpsertGPSRaw inserts or replaces one raw GPS record.
func (s *Store) UpsertGPSRaw(ctx context.Context, rec domain.GPSRawRecord) error {
	return s.UpsertGPSRawBatch(ctx, []domain.GPSRawRecord{rec})
}

// UpsertGPSRawBatch inserts or replaces raw GPS records, batchSize rows per transaction.
func (s *Store) UpsertGPSRawBatch(ctx context.Context, recs []domain.GPSRawRecord) error {
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	query := s.upsertSQL(gpsRawTable)
	err := s.inBatches(ctx, len(recs), func(tx *sql.Tx, lo, hi int) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare gps raw upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range recs[lo:hi] {
			if _, err := stmt.ExecContext(ctx,
				int64(r.Key), r.FileName, formatTime(r.Timestamp),
				r.Latitude, r.Longitude, nullFloat(r.Elevation),
				nullFloat(r.Speed), nullFloat(r.Gradient), nullFloat(r.Length),
				r.CreatedAt.Unix(),
			); err != nil {
				return fmt.Errorf("upsert gps raw %d: %w", r.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert gps raw records: %w", err)
	}
	return nil
}

// UpsertGPSResult inserts or replaces one derived GPS record.
func (s *Store) UpsertGPSResult(ctx context.Context, rec domain.GPSResultRecord) error {
	return s.UpsertGPSResultBatch(ctx, []domain.GPSResultRecord{rec})
}

// UpsertGPSResultBatch inserts or replaces derived GPS records, batchSize rows per transaction.
func (s *Store) UpsertGPSResultBatch(ctx context.Context, recs []domain.GPSResultRecord) error {
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	query := s.upsertSQL(gpsResultsTable)
	err := s.inBatches(ctx, len(recs), func(tx *sql.Tx, lo, hi int) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare gps result upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range recs[lo:hi] {
			if _, err := stmt.ExecContext(ctx,
				int64(r.Key), formatTime(r.Timestamp), r.Latitude, r.Longitude,
				nullFloat(r.VelocityMagnitude), nullFloat(r.VelocityDirection),
				r.CreatedAt.Unix(),
			); err != nil {
				return fmt.Errorf("upsert gps result %d: %w", r.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert gps result records: %w", err)
	}
	return nil
}

// GPSRawInRange returns raw GPS records with key in [start, end] ordered by
// key. start > end yields an empty slice.
func (s *Store) GPSRawInRange(ctx context.Context, start, end domain.EpochKey) ([]domain.GPSRawRecord, error) {
	if start > end {
		return []domain.GPSRawRecord{}, nil
	}
	query := s.rebind("SELECT " + gpsRawTable.selectList() + " FROM " + tableGPSRaw +
		" WHERE epoch_seconds BETWEEN ? AND ? ORDER BY epoch_seconds")
	rows, err := s.db.QueryContext(ctx, query, int64(start), int64(end))
	if err != nil {
		return nil, fmt.Errorf("query gps raw: %w", err)
	}
	defer rows.Close()

	out := []domain.GPSRawRecord{}
	for rows.Next() {
		rec, err := scanGPSRaw(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gps raw: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gps raw: %w", err)
	}
	return out, nil
}

// GPSResultsInRange returns derived GPS records with key in [start, end]
// ordered by key. start > end yields an empty slice.
func (s *Store) GPSResultsInRange(ctx context.Context, start, end domain.EpochKey) ([]domain.GPSResultRecord, error) {
	if start > end {
		return []domain.GPSResultRecord{}, nil
	}
	query := s.rebind("SELECT " + gpsResultsTable.selectList() + " FROM " + tableGPSResults +
		" WHERE epoch_seconds BETWEEN ? AND ? ORDER BY epoch_seconds")
	rows, err := s.db.QueryContext(ctx, query, int64(start), int64(end))
	if err != nil {
		return nil, fmt.Errorf("query gps results: %w", err)
	}
	defer rows.Close()

	out := []domain.GPSResultRecord{}
	for rows.Next() {
		rec, err := scanGPSResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gps result: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gps results: %w", err)
	}
	return out, nil
}

// HasGPSFile reports whether any raw GPS record came from the named file.
func (s *Store) HasGPSFile(ctx context.Context, fileName string) (bool, error) {
	query := s.rebind("SELECT COUNT(*) FROM " + tableGPSRaw + " WHERE file_name = ?")
	var n int64
	if err := s.db.QueryRowContext(ctx, query, fileName).Scan(&n); err != nil {
		return false, fmt.Errorf("check gps file %s: %w", fileName, err)
	}
	return n > 0, nil
}

// ClearGPSRaw deletes every raw GPS record and returns how many were removed.
func (s *Store) ClearGPSRaw(ctx context.Context) (int64, error) {
	return s.clear(ctx, tableGPSRaw)
}

// ClearGPSResults deletes every derived GPS record and returns how many were removed.
func (s *Store) ClearGPSResults(ctx context.Context) (int64, error) {
	return s.clear(ctx, tableGPSResults)
}

func (s *Store) clear(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+name)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count cleared %s: %w", name, err)
	}
	return n, nil
}

// SeverityTrack joins derived GPS records with vibration results on key,
// for keys in [start, end], ordered by key.
func (s *Store) SeverityTrack(ctx context.Context, start, end domain.EpochKey) ([]domain.SeverityPoint, error) {
	if start > end {
		return []domain.SeverityPoint{}, nil
	}
	query := s.rebind(`SELECT g.epoch_seconds, g.recorded_at, g.latitude, g.longitude,
		g.velocity_magnitude, a.severity_score
		FROM ` + tableGPSResults + ` g
		INNER JOIN ` + tableResults + ` a ON g.epoch_seconds = a.epoch_seconds
		WHERE g.epoch_seconds BETWEEN ? AND ?
		ORDER BY g.epoch_seconds`)
	rows, err := s.db.QueryContext(ctx, query, int64(start), int64(end))
	if err != nil {
		return nil, fmt.Errorf("query severity track: %w", err)
	}
	defer rows.Close()

	out := []domain.SeverityPoint{}
	for rows.Next() {
		var (
			p             domain.SeverityPoint
			key           int64
			recordedAt    string
			velocity, sev sql.NullFloat64
		)
		if err := rows.Scan(&key, &recordedAt, &p.Latitude, &p.Longitude, &velocity, &sev); err != nil {
			return nil, fmt.Errorf("scan severity track: %w", err)
		}
		ts, err := parseTime(recordedAt)
		if err != nil {
			return nil, err
		}
		p.Key = domain.EpochKey(key)
		p.Timestamp = ts
		p.VelocityMagnitude = floatOrNaN(velocity)
		p.SeverityScore = floatOrNaN(sev)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate severity track: %w", err)
	}
	return out, nil
}

func scanGPSRaw(row scanner) (domain.GPSRawRecord, error) {
	var (
		rec                      domain.GPSRawRecord
		key, created             int64
		recordedAt               string
		ele, speed, grad, length sql.NullFloat64
	)
	if err := row.Scan(&key, &rec.FileName, &recordedAt, &rec.Latitude, &rec.Longitude,
		&ele, &speed, &grad, &length, &created); err != nil {
		return domain.GPSRawRecord{}, err
	}
	ts, err := parseTime(recordedAt)
	if err != nil {
		return domain.GPSRawRecord{}, err
	}
	rec.Key = domain.EpochKey(key)
	rec.Timestamp = ts
	rec.Elevation = floatOrNaN(ele)
	rec.Speed = floatOrNaN(speed)
	rec.Gradient = floatOrNaN(grad)
	rec.Length = floatOrNaN(length)
	rec.CreatedAt = unixTime(created)
	return rec, nil
}

func scanGPSResult(row scanner) (domain.GPSResultRecord, error) {
	var (
		rec            domain.GPSResultRecord
		key, created   int64
		recordedAt     string
		magnitude, dir sql.NullFloat64
	)
	if err := row.Scan(&key, &recordedAt, &rec.Latitude, &rec.Longitude, &magnitude, &dir, &created); err != nil {
		return domain.GPSResultRecord{}, err
	}
	ts, err := parseTime(recordedAt)
	if err != nil {
		return domain.GPSResultRecord{}, err
	}
	rec.Key = domain.EpochKey(key)
	rec.Timestamp = ts
	rec.VelocityMagnitude = floatOrNaN(magnitude)
	rec.VelocityDirection = floatOrNaN(dir)
	rec.CreatedAt = unixTime(created)
	return rec, nil
}
