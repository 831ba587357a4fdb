package state

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileName is the name of the JSONL file kept inside the state directory.
const FileName = "processed.jsonl"

type Tracker interface {
	AlreadyProcessed(hash string) bool
	MarkProcessed(hash, messageID string, parts int) error
	Snapshot() Snapshot
	Close() error
}

type Snapshot struct {
	Processed int
	Parts     int
}

type record struct {
	Hash      string `json:"hash"`
	MessageID string `json:"message_id"`
	Parts     int    `json:"parts"`
}

type MemoryTracker struct {
	mu        sync.RWMutex
	processed map[string]record
	parts     int
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{processed: make(map[string]record)}
}

func (m *MemoryTracker) AlreadyProcessed(hash string) bool {
	if hash == "" {
		return false
	}

	m.mu.RLock()
	_, ok := m.processed[hash]
	m.mu.RUnlock()
	return ok
}

func (m *MemoryTracker) MarkProcessed(hash, messageID string, parts int) error {
	m.insert(record{Hash: hash, MessageID: messageID, Parts: parts})
	return nil
}

// insert reports whether the record was new.
func (m *MemoryTracker) insert(rec record) bool {
	if rec.Hash == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.processed[rec.Hash]; exists {
		return false
	}
	m.processed[rec.Hash] = rec
	m.parts += rec.Parts
	return true
}

// MessageID returns the message id recorded for hash.
func (m *MemoryTracker) MessageID(hash string) (string, bool) {
	m.mu.RLock()
	rec, ok := m.processed[hash]
	m.mu.RUnlock()
	return rec.MessageID, ok
}

func (m *MemoryTracker) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{Processed: len(m.processed), Parts: m.parts}
}

func (m *MemoryTracker) Close() error {
	return nil
}

// FileTracker persists processed message hashes so future runs can skip them.
type FileTracker struct {
	*MemoryTracker
	path    string
	persist bool
	writer  *bufio.Writer
	file    *os.File
	writeMu sync.Mutex
}

func NewFileTracker(stateDir string, persist bool) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	tracker := &FileTracker{
		MemoryTracker: NewMemoryTracker(),
		path:          filepath.Join(stateDir, FileName),
		persist:       persist,
	}

	if err := tracker.load(); err != nil {
		return nil, err
	}

	if persist {
		file, err := os.OpenFile(tracker.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open state file for append: %w", err)
		}
		tracker.file = file
		tracker.writer = bufio.NewWriterSize(file, 64*1024)
	}

	return tracker, nil
}

// Path returns the location of the JSONL state file.
func (f *FileTracker) Path() string {
	return f.path
}

// load replays the records of an earlier run. A missing file is an empty state.
func (f *FileTracker) load() error {
	file, err := os.Open(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	lines := bufio.NewScanner(file)
	for n := 1; lines.Scan(); n++ {
		if len(bytes.TrimSpace(lines.Bytes())) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(lines.Bytes(), &rec); err != nil {
			return fmt.Errorf("parse state line %d: %w", n, err)
		}
		f.insert(rec)
	}
	if err := lines.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	return nil
}

func (f *FileTracker) MarkProcessed(hash, messageID string, parts int) error {
	rec := record{Hash: hash, MessageID: messageID, Parts: parts}
	if !f.insert(rec) || !f.persist {
		return nil
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}
	line = append(line, '\n')

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if f.writer == nil {
		return fmt.Errorf("state file %s is closed", f.path)
	}
	if _, err := f.writer.Write(line); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	return nil
}

// Flush writes any buffered data to the underlying file.
func (f *FileTracker) Flush() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.flushLocked()
}

func (f *FileTracker) flushLocked() error {
	if f.writer == nil {
		return nil
	}
	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush state file: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync state file: %w", err)
	}
	return nil
}

// Close flushes and closes the state file. Calling it twice is a no-op.
func (f *FileTracker) Close() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if f.file == nil {
		return nil
	}

	err := f.flushLocked()
	if cerr := f.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close state file: %w", cerr)
	}
	f.file, f.writer = nil, nil
	return err
}
