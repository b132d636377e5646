// Package ingest reads raw batch files. A batch is either a single JSON
// array of records or JSON-lines framing; the provenance identifier is
// the batch's base filename.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Batch is one raw input batch, undecoded beyond generic JSON shapes.
type Batch struct {
	// SourceFile is the provenance identifier: the base name of the
	// originating file.
	SourceFile string

	Records []map[string]any

	// Malformed counts lines that were not valid JSON objects.
	Malformed int64
}

// ReadBatch reads a batch file in either framing. A missing file is
// reported via the wrapped os error so callers can treat it as a
// skippable source, not a fatal fault.
func ReadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch %s: %w", path, err)
	}

	batch := &Batch{SourceFile: filepath.Base(path)}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(data, &batch.Records); err != nil {
			return nil, fmt.Errorf("parsing batch %s: %w", path, err)
		}
		return batch, nil
	}

	// JSON-lines framing. Individual bad lines are dropped and counted,
	// matching the malformed-record policy of the normalizer.
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal(line, &record); err != nil {
			batch.Malformed++
			continue
		}
		batch.Records = append(batch.Records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning batch %s: %w", path, err)
	}

	return batch, nil
}

// ListBatchFiles returns the batch files in dir, sorted by name, so
// incremental batches ingest in a stable order. A missing directory is
// not an error; there is simply nothing to ingest.
func ListBatchFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing batch dir %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".jsonl":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
