package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"rwaScope/internal/model"
)

// JSONLExporter appends stored events to a JSONL file, one event per
// line. The export command uses it to hand indexed data to offline
// analysis without going through the API.
type JSONLExporter struct {
	path string
	mu   sync.Mutex
}

func NewJSONLExporter(path string) *JSONLExporter {
	return &JSONLExporter{path: path}
}

// WriteEvents appends a page of events as JSON lines.
func (e *JSONLExporter) WriteEvents(events []model.LogEvent) error {
	if len(events) == 0 {
		return nil
	}

	dir := filepath.Dir(e.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := os.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
