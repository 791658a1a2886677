package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpy-converter/internal/parser"
)

func decodeEvents(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var events []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	return events
}

func TestTraceEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(&buf)

	parser.ParseScriptTrace("label start:\n", parser.Options{}, l.ForFile("game/script.rpy"))

	events := decodeEvents(t, buf.Bytes())
	require.Len(t, events, 2)

	assert.Equal(t, "line", events[0]["event"])
	assert.Equal(t, "label start:", events[0]["raw"])
	assert.Equal(t, float64(1), events[0]["line"])
	assert.Equal(t, "game/script.rpy", events[0]["file"])

	assert.Equal(t, "block", events[1]["event"])
	assert.Equal(t, map[string]any{"label": "start"}, events[1]["block"])
	assert.NoError(t, l.Close())
}

func TestFileLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traceback.log")
	l := NewFileLog(path, 1)

	tr := l.ForFile("a.rpy")
	tr.Line(1, "return")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	events := decodeEvents(t, data)
	require.Len(t, events, 1)
	assert.Equal(t, "return", events[0]["raw"])
}
