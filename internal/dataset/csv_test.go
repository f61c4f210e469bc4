package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadCSV(t *testing.T) {
	tests := []struct {
		name     string
		csv      string
		wantRows int
		wantCols int
		wantErr  string
	}{
		{
			name:     "happy path 2 rows 6 columns",
			csv:      "image1,image2,audio1,audio2,label1,label2\na.png,b.png,a.wav,b.wav,1,2\nc.png,d.png,c.wav,d.wav,,\n",
			wantRows: 2,
			wantCols: 6,
		},
		{
			name:     "single row",
			csv:      "image1,audio1\nx.bmp,x.wav\n",
			wantRows: 1,
			wantCols: 2,
		},
		{
			name:     "headers only",
			csv:      "image1,image2\n",
			wantRows: 0,
		},
		{
			name:    "mismatched column count",
			csv:     "image1,image2\nok,fine\nbad\n",
			wantErr: "wrong number of fields",
		},
		{
			name:    "empty file",
			csv:     "",
			wantErr: "no header row",
		},
		{
			name:    "duplicate header",
			csv:     "image1,image1\na,b\n",
			wantErr: `duplicate column "image1"`,
		},
		{
			name:    "blank header",
			csv:     "image1, \na,b\n",
			wantErr: "column 2 has an empty header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeCSV(t, dir, "test.csv", tt.csv)

			rows, err := LoadCSV(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Len(t, rows, tt.wantRows)
			if tt.wantRows > 0 {
				assert.Len(t, rows[0], tt.wantCols)
			}
		})
	}
}

func TestLoadTable_PreservesHeaderOrderAndTrims(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "exp.csv", "\ufeffimage2, image1 ,extra\n b.png , a.png,note one\n")

	table, err := LoadTable(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"image2", "image1", "extra"}, table.Headers)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, "b.png", table.Rows[0]["image2"])
	assert.Equal(t, "a.png", table.Rows[0]["image1"])
	assert.Equal(t, []string{"b.png", "a.png", "note one"}, table.Values(0))
	assert.True(t, table.HasColumn("extra"))
	assert.False(t, table.HasColumn("label1"))
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV("/nonexistent/path/data.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: open")
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTable(&buf, []string{"response", "response_time"}, [][]string{
		{"a", "50"},
		{"", ""},
		{"with,comma", "7"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "response,response_time", lines[0])
	assert.Equal(t, "a,50", lines[1])
	assert.Equal(t, ",", lines[2])
	assert.Equal(t, `"with,comma",7`, lines[3])

	table, err := ReadTable(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, "with,comma", table.Rows[2]["response"])
}
