package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	participant    TEXT NOT NULL,
	param1         TEXT NOT NULL DEFAULT '',
	param2         TEXT NOT NULL DEFAULT '',
	catalog        TEXT NOT NULL,
	completed      INTEGER NOT NULL,
	aborted_reason TEXT NOT NULL DEFAULT '',
	started_at     TEXT NOT NULL,
	ended_at       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS responses (
	session_id       TEXT NOT NULL REFERENCES sessions(id),
	trial_index      INTEGER NOT NULL,
	label_a          TEXT NOT NULL DEFAULT '',
	label_b          TEXT NOT NULL DEFAULT '',
	response         TEXT,
	response_kind    TEXT,
	response_time_ms INTEGER,
	row_json         TEXT NOT NULL,
	PRIMARY KEY (session_id, trial_index)
);`

// SQLiteSink appends sessions to a SQLite database, one row per session and
// one per trial.
type SQLiteSink struct {
	Path string
}

// Write implements Sink.
func (s SQLiteSink) Write(ctx context.Context, res *Result) ([]string, error) {
	if res.SessionID == "" {
		return nil, fmt.Errorf("sqlite: session id is required")
	}
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: creating %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", s.Path, err)
	}
	defer db.Close() //nolint:errcheck

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	completed := 0
	if res.Completed {
		completed = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, participant, param1, param2, catalog, completed, aborted_reason, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.SessionID, res.Participant.ID, res.Participant.Param1, res.Participant.Param2,
		res.Catalog, completed, res.AbortedReason,
		res.StartedAt.UTC().Format(time.RFC3339Nano), res.EndedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("sqlite: insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO responses (session_id, trial_index, label_a, label_b, response, response_kind, response_time_ms, row_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for _, rec := range res.Records {
		row := map[string]string{}
		if rec.TrialIndex >= 0 && rec.TrialIndex < res.Table.Len() {
			row = res.Table.Rows[rec.TrialIndex]
		}
		rowJSON, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("sqlite: encoding row %d: %w", rec.TrialIndex, err)
		}

		var kind *string
		if rec.ResponseKind != nil {
			k := string(*rec.ResponseKind)
			kind = &k
		}
		if _, err := stmt.ExecContext(ctx,
			res.SessionID, rec.TrialIndex, rec.LabelA, rec.LabelB,
			rec.PressedKey, kind, rec.ResponseTimeMs, string(rowJSON),
		); err != nil {
			return nil, fmt.Errorf("sqlite: insert trial %d: %w", rec.TrialIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}
	return []string{s.Path}, nil
}
