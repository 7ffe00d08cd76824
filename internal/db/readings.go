package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/banshee-data/desk.report/internal/jarvis"
)

// DefaultQueryLimit caps list queries when the caller passes no limit.
const DefaultQueryLimit = 500

// ErrNoReadings is returned by LatestHeight on an empty table.
var ErrNoReadings = errors.New("no height readings recorded")

// Reading is a stored height measurement.
type Reading struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	Meters  float64   `json:"meters"`
	Raw     uint16    `json:"raw"`
	RawUnit string    `json:"raw_unit"`
}

// Publish stores h stamped with the current time. It implements
// desk.Publisher, so the poll loop writes through it directly.
func (db *DB) Publish(ctx context.Context, h jarvis.Height) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO height_readings (ts_unix_ms, meters, raw, raw_unit) VALUES (?, ?, ?, ?)`,
		toUnixMs(db.clock.Now()), h.Meters, int(h.Raw), h.Unit.String(),
	)
	return err
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > DefaultQueryLimit {
		return DefaultQueryLimit
	}
	return limit
}

// Readings returns the most recent readings, newest first.
func (db *DB) Readings(ctx context.Context, limit int) ([]Reading, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT reading_id, ts_unix_ms, meters, raw, raw_unit
		FROM height_readings
		ORDER BY ts_unix_ms DESC, reading_id DESC
		LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	return scanReadings(rows)
}

// ReadingsSince returns readings at or after since, oldest first.
func (db *DB) ReadingsSince(ctx context.Context, since time.Time) ([]Reading, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT reading_id, ts_unix_ms, meters, raw, raw_unit
		FROM height_readings
		WHERE ts_unix_ms >= ?
		ORDER BY ts_unix_ms ASC, reading_id ASC`, toUnixMs(since))
	if err != nil {
		return nil, err
	}
	return scanReadings(rows)
}

// LatestHeight returns the newest reading or ErrNoReadings.
func (db *DB) LatestHeight(ctx context.Context) (Reading, error) {
	var r Reading
	var ts int64
	var raw int
	err := db.QueryRowContext(ctx, `
		SELECT reading_id, ts_unix_ms, meters, raw, raw_unit
		FROM height_readings
		ORDER BY ts_unix_ms DESC, reading_id DESC
		LIMIT 1`).Scan(&r.ID, &ts, &r.Meters, &raw, &r.RawUnit)
	if errors.Is(err, sql.ErrNoRows) {
		return Reading{}, ErrNoReadings
	}
	if err != nil {
		return Reading{}, err
	}
	r.Time = fromUnixMs(ts)
	r.Raw = uint16(raw)
	return r, nil
}

// PruneReadings deletes readings older than before and returns the count.
func (db *DB) PruneReadings(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM height_readings WHERE ts_unix_ms < ?`, toUnixMs(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanReadings(rows *sql.Rows) ([]Reading, error) {
	defer rows.Close()

	readings := []Reading{}
	for rows.Next() {
		var r Reading
		var ts int64
		var raw int
		if err := rows.Scan(&r.ID, &ts, &r.Meters, &raw, &r.RawUnit); err != nil {
			return nil, err
		}
		r.Time = fromUnixMs(ts)
		r.Raw = uint16(raw)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}
