package audit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.csv")

	l, err := Open(path)
	require.NoError(t, err)
	l.Log("ENTRY", "opened position", 100, 3200.5, 1000)
	require.NoError(t, l.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	l2.Log("REBALANCE", "rebalanced", 200, 3300.0, 1100)
	require.NoError(t, l2.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(data))
	require.Len(t, lines, 3) // header + 2 rows
	assert.Equal(t, "Timestamp,Block,Type,Price,Tick,Details", lines[0])
	assert.Contains(t, lines[1], "ENTRY")
	assert.Contains(t, lines[2], "REBALANCE")
}

func TestSanitizeStripsCommasAndQuotes(t *testing.T) {
	assert.Equal(t, "a;b 'c'", sanitize(`a,b "c"`))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
