// Package audit implements the append-only CSV audit trail (spec §6):
// every strategy decision (entry, rebalance, stop-loss, error) gets one
// synchronously-flushed row so an operator can reconstruct exactly what
// happened and why without a database. No repo in the reference corpus
// wires a CSV library for this kind of external-collaborator log (see
// DESIGN.md), so this uses encoding/csv directly, in the same
// unadorned style the teacher uses for its own file I/O.
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var header = []string{"Timestamp", "Block", "Type", "Price", "Tick", "Details"}

// Logger appends rows to a CSV file, creating it with a header row if
// it does not already exist.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// Open opens (or creates) the audit log at path.
func Open(path string) (*Logger, error) {
	_, statErr := os.Stat(path)
	needsHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	l := &Logger{file: f, w: csv.NewWriter(f)}
	if needsHeader {
		if err := l.w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write audit header: %w", err)
		}
		l.w.Flush()
	}
	return l, nil
}

// Log appends one row. entryType is expected to be one of ENTRY,
// REBALANCE, STOP_LOSS, ERROR, INFO, STRATEGY_METRICS, but any string
// is accepted verbatim. The write is flushed synchronously so a crash
// immediately after never loses a row.
func (l *Logger) Log(entryType, details string, block uint64, price float64, tick int32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := []string{
		time.Now().UTC().Format(time.RFC3339),
		strconv.FormatUint(block, 10),
		sanitize(entryType),
		strconv.FormatFloat(price, 'f', -1, 64),
		strconv.FormatInt(int64(tick), 10),
		sanitize(details),
	}
	if err := l.w.Write(row); err != nil {
		return
	}
	l.w.Flush()
}

// sanitize strips characters that would otherwise require CSV quoting
// or could be mistaken for column separators, per spec §6.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, ",", ";")
	s = strings.ReplaceAll(s, "\"", "'")
	return s
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	return l.file.Close()
}
