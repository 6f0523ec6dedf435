// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileWriter appends records as JSON-lines to a daily-rotated file under
// dir/<prefix>-YYYY-MM-DD.jsonl, opening a new file automatically when the
// calendar day changes.
type FileWriter struct {
	mu      sync.Mutex
	dir     string
	prefix  string
	day     string
	file    *os.File
	nowFunc func() time.Time
}

// NewFileWriter creates a writer rooted at dir. dir is created if missing.
func NewFileWriter(dir, prefix string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create log dir: %w", err)
	}
	return &FileWriter{dir: dir, prefix: prefix, nowFunc: time.Now}, nil
}

// Append writes rec as one JSON line, rotating the file if the day changed.
func (w *FileWriter) Append(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	day := w.nowFunc().Format("2006-01-02")
	if day != w.day || w.file == nil {
		if w.file != nil {
			w.file.Close()
		}
		path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl", w.prefix, day))
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("audit: open log file: %w", err)
		}
		w.file = f
		w.day = day
	}

	line = append(line, '\n')
	_, err = w.file.Write(line)
	return err
}

// Close releases the underlying file handle.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
