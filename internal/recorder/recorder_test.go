package recorder

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spboyer/stimseq/internal/dataset"
	"github.com/spboyer/stimseq/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *dataset.Table {
	t.Helper()
	table, err := dataset.ReadTable(strings.NewReader(
		"image1,image2,audio1,audio2,label1,label2,note\n" +
			"a.png,b.png,a.wav,b.wav,1,2,first\n" +
			"c.png,d.png,c.wav,d.wav,,,second\n"))
	require.NoError(t, err)
	return table
}

func responded(i int, key string, kind models.InputKind, ms int64) models.ResponseRecord {
	return models.ResponseRecord{TrialIndex: i, PressedKey: &key, ResponseKind: &kind, ResponseTimeMs: &ms}
}

type memSink struct {
	got []*Result
	err error
}

func (m *memSink) Write(_ context.Context, res *Result) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.got = append(m.got, res)
	return []string{"mem"}, nil
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		name      string
		p         models.Participant
		suffix    string
		completed bool
		want      string
		wantErr   bool
	}{
		{name: "id only", p: models.Participant{ID: "p01"}, completed: true, want: "p01"},
		{name: "both params", p: models.Participant{ID: "p01", Param1: "left", Param2: "run 2"}, completed: true, want: "p01_left_run_2"},
		{name: "second param only", p: models.Participant{ID: "p01", Param2: "x"}, completed: true, want: "p01_x"},
		{name: "sanitized", p: models.Participant{ID: "Jo Doe!", Param1: "é/1"}, completed: true, want: "Jo_Doe____1"},
		{name: "suffix", p: models.Participant{ID: "p01"}, suffix: "block-a", completed: true, want: "p01_block_a"},
		{name: "incomplete", p: models.Participant{ID: "p01", Param1: "x"}, completed: false, want: "p01_x_incomplete"},
		{name: "empty id", p: models.Participant{ID: "  "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BaseName(tt.p, tt.suffix, tt.completed)
			if tt.wantErr {
				assert.True(t, models.IsConfigError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a_b_c", Sanitize("a b.c"))
	assert.Equal(t, "", Sanitize("   "))
	assert.Equal(t, "ABC_123", Sanitize("ABC_123"))
}

func TestRecorder_PreservesOrderAndFinalizesOnce(t *testing.T) {
	sink := &memSink{}
	r := New(Result{Participant: models.Participant{ID: "p"}, Table: testTable(t)}, sink)

	r.Append(models.ResponseRecord{TrialIndex: 0})
	r.Append(responded(1, "a", models.InputKeyboard, 50))
	assert.Equal(t, 2, r.Len())

	paths, err := r.Finalize(context.Background(), true, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"mem"}, paths)

	require.Len(t, sink.got, 1)
	res := sink.got[0]
	assert.True(t, res.Completed)
	require.Len(t, res.Records, 2)
	assert.Equal(t, 0, res.Records[0].TrialIndex)
	assert.Equal(t, 1, res.Records[1].TrialIndex)
	assert.False(t, res.EndedAt.IsZero())

	_, err = r.Finalize(context.Background(), true, "")
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestRecorder_ConcurrentAppend(t *testing.T) {
	r := New(Result{Table: testTable(t)})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Append(models.ResponseRecord{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}

func TestRecorder_FailingSinkDoesNotStopOthers(t *testing.T) {
	bad := &memSink{err: errors.New("disk full")}
	good := &memSink{}
	r := New(Result{Participant: models.Participant{ID: "p"}, Table: testTable(t)}, bad, good)

	paths, err := r.Finalize(context.Background(), false, "aborted by participant")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []string{"mem"}, paths)
	require.Len(t, good.got, 1)
	assert.Equal(t, "aborted by participant", good.got[0].AbortedReason)
}

func TestResult_Rows(t *testing.T) {
	res := &Result{
		Table: testTable(t),
		Records: []models.ResponseRecord{
			responded(0, "space", models.InputKeyboard, 412),
			{TrialIndex: 1},
		},
	}

	headers, rows := res.Rows()
	assert.Equal(t, []string{"image1", "image2", "audio1", "audio2", "label1", "label2", "note", "response", "response_kind", "response_time"}, headers)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"a.png", "b.png", "a.wav", "b.wav", "1", "2", "first", "space", "keyboard", "412"}, rows[0])
	assert.Equal(t, []string{"c.png", "d.png", "c.wav", "d.wav", "", "", "second", "", "", ""}, rows[1])
}

func TestCSVSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	sink := CSVSink{Dir: dir}
	res := &Result{
		Participant: models.Participant{ID: "p01", Param1: "left"},
		Table:       testTable(t),
		Records:     []models.ResponseRecord{responded(0, "1", models.InputMouse, 50)},
		Completed:   true,
	}

	paths, err := sink.Write(context.Background(), res)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "p01_left.csv")}, paths)

	got, err := dataset.LoadTable(paths[0])
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "1", got.Rows[0]["response"])
	assert.Equal(t, "mouse", got.Rows[0]["response_kind"])
	assert.Equal(t, "50", got.Rows[0]["response_time"])
	assert.Equal(t, "first", got.Rows[0]["note"])

	// A second session for the same participant never overwrites the first.
	paths, err = sink.Write(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "p01_left_2.csv"), paths[0])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestCSVSink_IncompleteAndEmpty(t *testing.T) {
	dir := t.TempDir()
	res := &Result{Participant: models.Participant{ID: "p02"}, Table: testTable(t)}

	paths, err := CSVSink{Dir: dir}.Write(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "p02_incomplete.csv"), paths[0])

	got, err := dataset.LoadTable(paths[0])
	require.NoError(t, err)
	assert.Zero(t, got.Len())
	assert.True(t, got.HasColumn("response_time"))
}

func TestCSVSink_MissingParticipant(t *testing.T) {
	_, err := CSVSink{Dir: t.TempDir()}.Write(context.Background(), &Result{Table: testTable(t), Completed: true})
	assert.True(t, models.IsConfigError(err))
}

func TestSQLiteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "results.db")
	sink := SQLiteSink{Path: path}
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, completed := range []bool{true, false} {
		res := &Result{
			SessionID:   []string{"s1", "s2"}[i],
			Participant: models.Participant{ID: "p01", Param1: "x"},
			Catalog:     "exp",
			Table:       testTable(t),
			Records: []models.ResponseRecord{
				responded(0, "a", models.InputKeyboard, 120),
				{TrialIndex: 1, LabelA: "", LabelB: ""},
			},
			Completed: completed,
			StartedAt: start,
			EndedAt:   start.Add(time.Minute),
		}
		paths, err := sink.Write(context.Background(), res)
		require.NoError(t, err)
		assert.Equal(t, []string{path}, paths)
	}

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	var sessions, incomplete int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*), SUM(1 - completed) FROM sessions`).Scan(&sessions, &incomplete))
	assert.Equal(t, 2, sessions)
	assert.Equal(t, 1, incomplete)

	var (
		key  sql.NullString
		ms   sql.NullInt64
		note string
	)
	require.NoError(t, db.QueryRow(
		`SELECT response, response_time_ms, json_extract(row_json, '$.note') FROM responses WHERE session_id = 's1' AND trial_index = 0`,
	).Scan(&key, &ms, &note))
	assert.Equal(t, "a", key.String)
	assert.Equal(t, int64(120), ms.Int64)
	assert.Equal(t, "first", note)

	require.NoError(t, db.QueryRow(
		`SELECT response, response_time_ms FROM responses WHERE session_id = 's1' AND trial_index = 1`,
	).Scan(&key, &ms))
	assert.False(t, key.Valid)
	assert.False(t, ms.Valid)
}

func TestSQLiteSink_RequiresSessionID(t *testing.T) {
	_, err := SQLiteSink{Path: filepath.Join(t.TempDir(), "r.db")}.Write(context.Background(), &Result{Table: testTable(t)})
	require.Error(t, err)
}
