package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
)

// FileRecords is everything stored for one sensor log.
type FileRecords struct {
	Raw     []domain.RawRecord
	Results []domain.ResultRecord
}

// DeleteCounts reports how many rows DeleteFile removed per family.
type DeleteCounts struct {
	Raw     int64
	Results int64
}

// UpsertRaw inserts or replaces one raw record.
func (s *Store) UpsertRaw(ctx context.Context, rec domain.RawRecord) error {
	return s.UpsertRawBatch(ctx, []domain.RawRecord{rec})
}

// UpsertRawBatch inserts or replaces raw records, batchSize rows per
// transaction. Every record is validated before anything is written.
func (s *Store) UpsertRawBatch(ctx context.Context, recs []domain.RawRecord) error {
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	query := s.upsertSQL(rawTable)
	err := s.inBatches(ctx, len(recs), func(tx *sql.Tx, lo, hi int) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare raw upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range recs[lo:hi] {
			if _, err := stmt.ExecContext(ctx,
				int64(r.Key), r.FileName, formatTime(r.RecordedAt),
				nullFloat(r.SpeedX), nullFloat(r.SpeedY), nullFloat(r.SpeedZ),
				nullFloat(r.DispX), nullFloat(r.DispY), nullFloat(r.DispZ),
				nullFloat(r.Temperature), r.CreatedAt.Unix(),
			); err != nil {
				return fmt.Errorf("upsert raw %d: %w", r.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert raw records: %w", err)
	}
	return nil
}

// UpsertResult inserts or replaces one result record.
func (s *Store) UpsertResult(ctx context.Context, rec domain.ResultRecord) error {
	return s.UpsertResultBatch(ctx, []domain.ResultRecord{rec})
}

// UpsertResultBatch inserts or replaces result records. With
// RequireRawParent set, a result whose raw record for the same key and file is
// missing fails with domain.ErrMissingParent and its chunk is rolled back.
func (s *Store) UpsertResultBatch(ctx context.Context, recs []domain.ResultRecord) error {
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	query := s.upsertSQL(resultsTable)
	parentQuery := s.rebind("SELECT COUNT(*) FROM " + tableRaw + " WHERE epoch_seconds = ? AND file_name = ?")
	err := s.inBatches(ctx, len(recs), func(tx *sql.Tx, lo, hi int) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare result upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range recs[lo:hi] {
			if s.requireParent {
				var n int64
				if err := tx.QueryRowContext(ctx, parentQuery, int64(r.RawKey()), r.FileName).Scan(&n); err != nil {
					return fmt.Errorf("check raw parent %d: %w", r.Key, err)
				}
				if n == 0 {
					return fmt.Errorf("%w: result %d of %s", domain.ErrMissingParent, r.Key, r.FileName)
				}
			}
			if _, err := stmt.ExecContext(ctx,
				int64(r.Key), r.FileName, int64(r.SampleCount),
				nullFloat(r.MeanLevel), nullFloat(r.MaxLevel), nullFloat(r.StdLevel),
				nullFloat(r.MeanDispX), nullFloat(r.MeanDispY), nullFloat(r.MeanDispZ),
				nullFloat(r.MaxDispX), nullFloat(r.MaxDispY), nullFloat(r.MaxDispZ),
				nullFloat(r.MeanTemperature), nullFloat(r.VelocityScore), nullFloat(r.MeanDisp),
				nullFloat(r.SeverityScore), r.CreatedAt.Unix(),
			); err != nil {
				return fmt.Errorf("upsert result %d: %w", r.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert result records: %w", err)
	}
	return nil
}

// GetRaw returns the raw record with the given key, or domain.ErrNotFound.
func (s *Store) GetRaw(ctx context.Context, key domain.EpochKey) (domain.RawRecord, error) {
	query := s.rebind("SELECT " + rawTable.selectList() + " FROM " + tableRaw + " WHERE epoch_seconds = ?")
	rec, err := scanRaw(s.db.QueryRowContext(ctx, query, int64(key)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RawRecord{}, fmt.Errorf("raw %d: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RawRecord{}, fmt.Errorf("get raw %d: %w", key, err)
	}
	return rec, nil
}

// GetResult returns the result record with the given key, or domain.ErrNotFound.
func (s *Store) GetResult(ctx context.Context, key domain.EpochKey) (domain.ResultRecord, error) {
	query := s.rebind("SELECT " + resultsTable.selectList() + " FROM " + tableResults + " WHERE epoch_seconds = ?")
	rec, err := scanResult(s.db.QueryRowContext(ctx, query, int64(key)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ResultRecord{}, fmt.Errorf("result %d: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ResultRecord{}, fmt.Errorf("get result %d: %w", key, err)
	}
	return rec, nil
}

// ByFile returns the raw and result records of one file, each ordered by key.
func (s *Store) ByFile(ctx context.Context, fileName string) (FileRecords, error) {
	raw, err := s.RawByFile(ctx, fileName)
	if err != nil {
		return FileRecords{}, err
	}
	results, err := s.ResultsByFile(ctx, fileName)
	if err != nil {
		return FileRecords{}, err
	}
	return FileRecords{Raw: raw, Results: results}, nil
}

// RawByFile returns the raw records of one file ordered by key.
func (s *Store) RawByFile(ctx context.Context, fileName string) ([]domain.RawRecord, error) {
	query := s.rebind("SELECT " + rawTable.selectList() + " FROM " + tableRaw +
		" WHERE file_name = ? ORDER BY epoch_seconds")
	rows, err := s.db.QueryContext(ctx, query, fileName)
	if err != nil {
		return nil, fmt.Errorf("query raw for %s: %w", fileName, err)
	}
	defer rows.Close()

	out := []domain.RawRecord{}
	for rows.Next() {
		rec, err := scanRaw(rows)
		if err != nil {
			return nil, fmt.Errorf("scan raw for %s: %w", fileName, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw for %s: %w", fileName, err)
	}
	return out, nil
}

// ResultsByFile returns the result records of one file ordered by key.
func (s *Store) ResultsByFile(ctx context.Context, fileName string) ([]domain.ResultRecord, error) {
	query := s.rebind("SELECT " + resultsTable.selectList() + " FROM " + tableResults +
		" WHERE file_name = ? ORDER BY epoch_seconds")
	return s.queryResults(ctx, query, fileName)
}

// ResultsInRange returns result records with key in [start, end], ordered by key.
func (s *Store) ResultsInRange(ctx context.Context, start, end domain.EpochKey) ([]domain.ResultRecord, error) {
	if start > end {
		return []domain.ResultRecord{}, nil
	}
	query := s.rebind("SELECT " + resultsTable.selectList() + " FROM " + tableResults +
		" WHERE epoch_seconds BETWEEN ? AND ? ORDER BY epoch_seconds")
	return s.queryResults(ctx, query, int64(start), int64(end))
}

// MaxSeverity returns the largest severity score across all stored results.
// ok is false when no result has a score.
func (s *Store) MaxSeverity(ctx context.Context) (float64, bool, error) {
	var mx sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(severity_score) FROM "+tableResults).Scan(&mx); err != nil {
		return 0, false, fmt.Errorf("max severity: %w", err)
	}
	return mx.Float64, mx.Valid, nil
}

func (s *Store) queryResults(ctx context.Context, query string, args ...any) ([]domain.ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := []domain.ResultRecord{}
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// FileKeyRange returns the smallest and largest raw keys stored for a file.
// ok is false when the file has no raw rows.
func (s *Store) FileKeyRange(ctx context.Context, fileName string) (first, last domain.EpochKey, ok bool, err error) {
	query := s.rebind("SELECT MIN(epoch_seconds), MAX(epoch_seconds) FROM " + tableRaw + " WHERE file_name = ?")
	var lo, hi sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, fileName).Scan(&lo, &hi); err != nil {
		return 0, 0, false, fmt.Errorf("key range for %s: %w", fileName, err)
	}
	if !lo.Valid || !hi.Valid {
		return 0, 0, false, nil
	}
	return domain.EpochKey(lo.Int64), domain.EpochKey(hi.Int64), true, nil
}

// DeleteFile removes the results and then the raw records of one file in a
// single transaction. GPS families are untouched.
func (s *Store) DeleteFile(ctx context.Context, fileName string) (DeleteCounts, error) {
	var counts DeleteCounts
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind("DELETE FROM "+tableResults+" WHERE file_name = ?"), fileName)
		if err != nil {
			return fmt.Errorf("delete results: %w", err)
		}
		if counts.Results, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("count deleted results: %w", err)
		}
		res, err = tx.ExecContext(ctx, s.rebind("DELETE FROM "+tableRaw+" WHERE file_name = ?"), fileName)
		if err != nil {
			return fmt.Errorf("delete raw: %w", err)
		}
		if counts.Raw, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("count deleted raw: %w", err)
		}
		return nil
	})
	if err != nil {
		return DeleteCounts{}, fmt.Errorf("delete file %s: %w", fileName, err)
	}
	return counts, nil
}

func scanRaw(row scanner) (domain.RawRecord, error) {
	var (
		rec                    domain.RawRecord
		key, created           int64
		recordedAt             string
		sx, sy, sz, dx, dy, dz sql.NullFloat64
		temp                   sql.NullFloat64
	)
	if err := row.Scan(&key, &rec.FileName, &recordedAt, &sx, &sy, &sz, &dx, &dy, &dz, &temp, &created); err != nil {
		return domain.RawRecord{}, err
	}
	ts, err := parseTime(recordedAt)
	if err != nil {
		return domain.RawRecord{}, err
	}
	rec.Key = domain.EpochKey(key)
	rec.RecordedAt = ts
	rec.SpeedX, rec.SpeedY, rec.SpeedZ = floatOrNaN(sx), floatOrNaN(sy), floatOrNaN(sz)
	rec.DispX, rec.DispY, rec.DispZ = floatOrNaN(dx), floatOrNaN(dy), floatOrNaN(dz)
	rec.Temperature = floatOrNaN(temp)
	rec.CreatedAt = unixTime(created)
	return rec, nil
}

func scanResult(row scanner) (domain.ResultRecord, error) {
	var (
		rec                       domain.ResultRecord
		key, count, created       int64
		mean, mx, std             sql.NullFloat64
		mdx, mdy, mdz, xdx, xdy   sql.NullFloat64
		xdz, temp, vel, disp, sev sql.NullFloat64
	)
	if err := row.Scan(&key, &rec.FileName, &count, &mean, &mx, &std,
		&mdx, &mdy, &mdz, &xdx, &xdy, &xdz, &temp, &vel, &disp, &sev, &created); err != nil {
		return domain.ResultRecord{}, err
	}
	rec.Key = domain.EpochKey(key)
	rec.SampleCount = int(count)
	rec.MeanLevel, rec.MaxLevel, rec.StdLevel = floatOrNaN(mean), floatOrNaN(mx), floatOrNaN(std)
	rec.MeanDispX, rec.MeanDispY, rec.MeanDispZ = floatOrNaN(mdx), floatOrNaN(mdy), floatOrNaN(mdz)
	rec.MaxDispX, rec.MaxDispY, rec.MaxDispZ = floatOrNaN(xdx), floatOrNaN(xdy), floatOrNaN(xdz)
	rec.MeanTemperature = floatOrNaN(temp)
	rec.VelocityScore = floatOrNaN(vel)
	rec.MeanDisp = floatOrNaN(disp)
	rec.SeverityScore = floatOrNaN(sev)
	rec.CreatedAt = unixTime(created)
	return rec, nil
}
