package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DrSkyle/layerline/pkg/storage"
)

// Record is one line in the append-only deployment log. Unlike State it is
// never rewritten; the log is the audit trail for "what ran when".
type Record struct {
	UnitID       string    `json:"unit_id"`
	Project      string    `json:"project"`
	Env          string    `json:"env,omitempty"`
	ContentHash  string    `json:"content_hash"`
	LayerVersion int64     `json:"layer_version,omitempty"`
	LayerARN     string    `json:"layer_arn,omitempty"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}

// RecordLog appends deployment records to a JSONL object per project in a
// blob store. Appends are read-modify-write; the ledger CAS already
// serializes runs per project, so the log does not need its own locking.
type RecordLog struct {
	Store storage.Store
}

func NewRecordLog(store storage.Store) *RecordLog {
	return &RecordLog{Store: store}
}

func (l *RecordLog) key(project string) string {
	return fmt.Sprintf("records/%s.jsonl", project)
}

// Append adds records for one orchestration run to the project's log.
func (l *RecordLog) Append(ctx context.Context, project string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	existing, err := l.Store.Get(ctx, l.key(project))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to read deployment log: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}

	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode deployment record: %w", err)
		}
	}

	if err := l.Store.Put(ctx, l.key(project), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write deployment log: %w", err)
	}
	return nil
}

// List returns the project's records, oldest first. Lines that do not parse
// are skipped so one corrupt entry does not hide the rest of the log.
func (l *RecordLog) List(ctx context.Context, project string) ([]Record, error) {
	data, err := l.Store.Get(ctx, l.key(project))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment log: %w", err)
	}

	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan deployment log: %w", err)
	}
	return records, nil
}
