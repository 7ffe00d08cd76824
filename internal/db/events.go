package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/banshee-data/desk.report/internal/button"
	"github.com/banshee-data/desk.report/internal/desk"
)

// ButtonEvent is a stored debounced transition.
type ButtonEvent struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	Line    string    `json:"line"`
	Pressed bool      `json:"pressed"`
	Cycle   uint64    `json:"cycle"`
}

// CommandRecord is an executed desk command and its outcome.
type CommandRecord struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Detail    string          `json:"detail"`
	Params    json.RawMessage `json:"params"`
	Submitted time.Time       `json:"submitted"`
	Executed  time.Time       `json:"executed"`
	Error     string          `json:"error,omitempty"`
}

// HandleButtonEvent implements desk.EventSink.
func (db *DB) HandleButtonEvent(ctx context.Context, e button.Event) error {
	ts := e.Time
	if ts.IsZero() {
		ts = db.clock.Now()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO button_events (ts_unix_ms, line, pressed, cycle) VALUES (?, ?, ?, ?)`,
		toUnixMs(ts), e.Line.String(), e.Pressed, int64(e.Cycle),
	)
	return err
}

// ButtonEvents returns the most recent transitions, newest first.
func (db *DB) ButtonEvents(ctx context.Context, limit int) ([]ButtonEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT event_id, ts_unix_ms, line, pressed, cycle
		FROM button_events
		ORDER BY ts_unix_ms DESC, event_id DESC
		LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []ButtonEvent{}
	for rows.Next() {
		var e ButtonEvent
		var ts, cycle int64
		if err := rows.Scan(&e.ID, &ts, &e.Line, &e.Pressed, &cycle); err != nil {
			return nil, err
		}
		e.Time = fromUnixMs(ts)
		e.Cycle = uint64(cycle)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// RecordCommand implements desk.CommandRecorder. Recording the same command
// ID twice replaces the earlier row.
func (db *DB) RecordCommand(ctx context.Context, c desk.Command, result error) error {
	params, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var errText sql.NullString
	if result != nil {
		errText = sql.NullString{String: result.Error(), Valid: true}
	}
	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO desk_commands
			(command_id, kind, detail, params_json, submitted_ms, executed_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Kind.String(), c.String(), string(params),
		toUnixMs(c.Submitted), toUnixMs(db.clock.Now()), errText,
	)
	return err
}

// Commands returns the most recently executed commands, newest first.
func (db *DB) Commands(ctx context.Context, limit int) ([]CommandRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT command_id, kind, detail, params_json, submitted_ms, executed_ms, error
		FROM desk_commands
		ORDER BY executed_ms DESC
		LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []CommandRecord{}
	for rows.Next() {
		var r CommandRecord
		var params string
		var submitted, executed int64
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &r.Kind, &r.Detail, &params, &submitted, &executed, &errText); err != nil {
			return nil, err
		}
		r.Params = json.RawMessage(params)
		r.Submitted = fromUnixMs(submitted)
		r.Executed = fromUnixMs(executed)
		r.Error = errText.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

var (
	_ desk.Publisher       = (*DB)(nil)
	_ desk.EventSink       = (*DB)(nil)
	_ desk.CommandRecorder = (*DB)(nil)
)
