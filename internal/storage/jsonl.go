package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ammcore/internal/model"
)

// JsonlJournal appends operation records to a JSONL file.
type JsonlJournal struct {
	path string
	mu   sync.Mutex
}

func NewJsonlJournal(path string) *JsonlJournal {
	return &JsonlJournal{path: path}
}

// PutOperations appends a batch of records as JSON lines.
func (s *JsonlJournal) PutOperations(ctx context.Context, records []model.OperationRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return appendJSONL(s.path, records)
}

// Operations streams journal records newer than afterTs, in file order.
func (s *JsonlJournal) Operations(ctx context.Context, afterTs uint64, fn func(model.OperationRecord) error) error {
	return ScanJSONL(ctx, s.path, func(record model.OperationRecord) error {
		if record.Timestamp <= afterTs {
			return nil
		}
		return fn(record)
	})
}

// LastSeq returns the highest sequence number in the journal, or 0 when it does not exist.
func (s *JsonlJournal) LastSeq(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return 0, nil
	}
	var last uint64
	err := ScanJSONL(ctx, s.path, func(record model.OperationRecord) error {
		if record.Seq > last {
			last = record.Seq
		}
		return nil
	})
	return last, err
}

// JsonlStats appends pool window stats to a JSONL file. Later lines for the
// same pool window supersede earlier ones.
type JsonlStats struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStats(path string) *JsonlStats {
	return &JsonlStats{path: path}
}

func (s *JsonlStats) UpsertPoolStats(ctx context.Context, stats []model.PoolStats) error {
	if len(stats) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendJSONL(s.path, stats)
}

func appendJSONL[T any](path string, items []T) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
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

// ScanJSONL decodes every non-empty line of path into T and passes it to fn.
func ScanJSONL[T any](ctx context.Context, path string, fn func(T) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(line, &item); err != nil {
			return fmt.Errorf("decode line %d: %w", lineNo, err)
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}
