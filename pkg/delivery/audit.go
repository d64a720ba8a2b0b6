/*
Copyright 2025 The GitHub Webhook Server Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package delivery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/myk-org/github-webhook-server-sub001/pkg/secretutil"
)

// AuditWriter appends delivery records to a JSONL file per UTC date. Multiple
// server processes may share the data directory, so both the temp write and
// the final append happen under advisory file locks.
type AuditWriter struct {
	dir      string
	censorer secretutil.Censorer
	now      func() time.Time
}

// NewAuditWriter returns a writer rooted at dir (usually {data-dir}/logs).
// Records pass through the censorer before they touch disk; a nil censorer
// writes them as-is.
func NewAuditWriter(dir string, censorer secretutil.Censorer) *AuditWriter {
	return &AuditWriter{dir: dir, censorer: censorer, now: time.Now}
}

// Path returns the audit file the next write would append to.
func (w *AuditWriter) Path() string {
	return filepath.Join(w.dir, fmt.Sprintf("webhooks_%s.json", w.now().UTC().Format("2006-01-02")))
}

// Write serializes the record, censors it and appends it as one JSONL line.
func (w *AuditWriter) Write(record *Record) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("could not serialize audit record: %w", err)
	}
	if w.censorer != nil {
		w.censorer.Censor(&line)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("could not create audit directory: %w", err)
	}

	// Stage the line in a temp file in the same directory first. The staged
	// copy survives a crash mid-append, and its lock keeps concurrent writers
	// from interleaving partial lines.
	temp, err := os.CreateTemp(w.dir, ".webhooks-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create audit temp file: %w", err)
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)
	tempLock := flock.New(tempPath)
	if err := tempLock.Lock(); err != nil {
		temp.Close()
		return fmt.Errorf("could not lock audit temp file: %w", err)
	}
	if _, err := temp.Write(line); err != nil {
		tempLock.Unlock()
		temp.Close()
		return fmt.Errorf("could not stage audit record: %w", err)
	}
	if err := temp.Close(); err != nil {
		tempLock.Unlock()
		return fmt.Errorf("could not close audit temp file: %w", err)
	}
	if err := tempLock.Unlock(); err != nil {
		return fmt.Errorf("could not unlock audit temp file: %w", err)
	}

	target := w.Path()
	targetLock := flock.New(target + ".lock")
	if err := targetLock.Lock(); err != nil {
		return fmt.Errorf("could not lock audit file: %w", err)
	}
	defer targetLock.Unlock()
	out, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("could not open audit file: %w", err)
	}
	if _, err := out.Write(line); err != nil {
		out.Close()
		return fmt.Errorf("could not append audit record: %w", err)
	}
	return out.Close()
}
