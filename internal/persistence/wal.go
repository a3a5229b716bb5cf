// Package persistence keeps a write-ahead log of applied commands so a node
// can rebuild its item set before raft catches it up.
package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Entry is one WAL line: the raft index the command was applied at and the
// command as it was committed.
type Entry struct {
	Index   uint64          `json:"index"`
	Command json.RawMessage `json:"command"`
}

// WAL appends entries to a JSON-lines file.
type WAL struct {
	file *os.File
}

// NewWAL opens path for appending, creating it if needed.
func NewWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	return &WAL{file: file}, nil
}

// Write appends the command applied at index and syncs the file.
func (w *WAL) Write(index uint64, command json.RawMessage) error {
	data, err := json.Marshal(Entry{Index: index, Command: command})
	if err != nil {
		return fmt.Errorf("marshal wal entry: %w", err)
	}
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write wal entry: %w", err)
	}
	return w.file.Sync()
}

func (w *WAL) Close() error {
	return w.file.Close()
}

// Replay calls apply for every entry in path, in order. A missing file has
// nothing to replay.
func Replay(path string, apply func(index uint64, command json.RawMessage) error) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open wal: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("wal line %d: %w", line, err)
		}
		if err := apply(entry.Index, entry.Command); err != nil {
			return fmt.Errorf("wal line %d: %w", line, err)
		}
	}
	return scanner.Err()
}
