package retrieval

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewQueryLogger(&buf)

	l.Log(QueryLogEntry{DocumentID: "doc-1", Query: "first", Outcome: "answered", NumSources: 2, Duration: 1500 * time.Millisecond})
	l.Log(QueryLogEntry{DocumentID: "doc-2", Query: "second", Outcome: "no_matches"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first QueryLogEntry
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "doc-1", first.DocumentID)
	assert.Equal(t, "answered", first.Outcome)
	assert.Equal(t, int64(1500), first.LatencyMs)
	assert.False(t, first.Timestamp.IsZero())
}

func TestNewFileQueryLogger_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "query.log")

	l, err := NewFileQueryLogger(path)
	require.NoError(t, err)

	l.Log(QueryLogEntry{DocumentID: "doc-1", Query: "q", Outcome: "answered"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"document_id":"doc-1"`)
}
