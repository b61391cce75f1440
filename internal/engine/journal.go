package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lgrag "github.com/smallnest/langgraphgo/rag"
)

// Journal operation kinds.
const (
	opEntity             = "entity"
	opRelationship       = "relationship"
	opEntityDelete       = "entity_delete"
	opRelationshipDelete = "relationship_delete"
)

// journalRecord is one line of the graph journal.
type journalRecord struct {
	Op           string              `json:"op"`
	At           time.Time           `json:"at"`
	ID           string              `json:"id,omitempty"`
	Entity       *lgrag.Entity       `json:"entity,omitempty"`
	Relationship *lgrag.Relationship `json:"relationship,omitempty"`
}

// Journal is an append-only JSONL log of graph mutations under the
// working directory. The in-memory graph is rebuilt from it at startup,
// which is what makes the graph survive redeploys.
type Journal struct {
	mu   sync.Mutex
	path string
	file *os.File
	enc  *json.Encoder
}

// OpenJournal opens (or creates) the journal file inside workdir.
func OpenJournal(workdir string) (*Journal, error) {
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir %s: %w", workdir, err)
	}
	path := filepath.Join(workdir, "graph.journal")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &Journal{path: path, file: f, enc: json.NewEncoder(f)}, nil
}

// Append writes one record. Safe for concurrent use.
func (j *Journal) Append(rec journalRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	if err := j.enc.Encode(rec); err != nil {
		return fmt.Errorf("append journal record: %w", err)
	}
	return nil
}

// Replay streams all records to fn in write order. Truncated trailing
// lines (crash mid-write) are skipped.
func (j *Journal) Replay(fn func(journalRecord) error) error {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open journal for replay: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec journalRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// a partial last line means the process died mid-append
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan journal: %w", err)
	}
	return nil
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	return nil
}
