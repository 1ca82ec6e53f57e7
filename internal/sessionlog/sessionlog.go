// Package sessionlog implements a daily-rotating CSV log of cell
// activations, grounded on the teacher's daily APRS log file rotation in
// src/log.go, generalized from per-packet APRS records to activation
// transitions.
package sessionlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/soundroom/engine/internal/grid"
)

// DefaultPattern mirrors the teacher's daily log filename shape
// (date.log), reformatted for strftime and CSV.
const DefaultPattern = "%Y-%m-%d.csv"

// Logger writes one CSV row per activation/deactivation transition,
// opening a new file whenever the formatted date changes, exactly as
// log_write in src/log.go reopens on date rollover.
type Logger struct {
	dir     string
	pattern string

	mu       sync.Mutex
	file     *os.File
	writer   *csv.Writer
	openName string
}

// NewLogger builds a Logger writing into dir using pattern (an strftime
// format string; DefaultPattern if empty).
func NewLogger(dir, pattern string) (*Logger, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := strftime.Format(pattern, time.Now()); err != nil {
		return nil, fmt.Errorf("invalid log filename pattern %q: %w", pattern, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
	}
	return &Logger{dir: dir, pattern: pattern}, nil
}

// Activation writes one row: timestamp, event (activate/deactivate),
// cell row/col, cell name.
func (l *Logger) Activation(now time.Time, event string, cell grid.Cell, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rollIfNeeded(now); err != nil {
		return err
	}
	if l.writer == nil {
		return nil
	}

	row := []string{
		now.UTC().Format(time.RFC3339Nano),
		event,
		fmt.Sprintf("%d", cell.Row),
		fmt.Sprintf("%d", cell.Col),
		name,
	}
	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("writing log row: %w", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

// rollIfNeeded opens a new file (with a CSV header) whenever the
// formatted name for now differs from the currently open file.
func (l *Logger) rollIfNeeded(now time.Time) error {
	name, err := strftime.Format(l.pattern, now.UTC())
	if err != nil {
		return fmt.Errorf("formatting log filename: %w", err)
	}
	if l.file != nil && name == l.openName {
		return nil
	}

	if l.file != nil {
		l.writer.Flush()
		l.file.Close()
	}

	fullPath := filepath.Join(l.dir, name)
	needsHeader := true
	if _, err := os.Stat(fullPath); err == nil {
		needsHeader = false
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", fullPath, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.openName = name

	if needsHeader {
		if err := l.writer.Write([]string{"timestamp", "event", "row", "col", "name"}); err != nil {
			return fmt.Errorf("writing log header: %w", err)
		}
		l.writer.Flush()
	}
	return nil
}

// Close flushes and closes the currently open file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	l.writer.Flush()
	err := l.file.Close()
	l.file = nil
	l.writer = nil
	return err
}
