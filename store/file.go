// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists the durable subset of the verification
// table. The snapshot is a JSON array of records, rewritten wholesale
// (remove, then exclusive create) whenever the Authority marks the
// table dirty. New records and their codes never reach disk.
package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bureau-foundation/gatekeeper/verify"
)

// Compile-time interface check.
var _ verify.Store = (*FileStore)(nil)

// FileStore keeps the snapshot in a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to the given path. The file
// need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the snapshot. A missing file is an empty table, not an
// error.
func (s *FileStore) Load() ([]verify.PersistedRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: reading %s: %w", s.path, err)
	}

	var records []verify.PersistedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("store: parsing %s: %w", s.path, err)
	}
	return records, nil
}

// Save replaces the snapshot: the old file is removed, then a new one
// is created exclusively, so a concurrent process can never observe a
// partially written file under the old inode.
func (s *FileStore) Save(records []verify.PersistedRecord) error {
	if records == nil {
		records = []verify.PersistedRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding snapshot: %w", err)
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: removing old snapshot: %w", err)
	}
	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("store: creating %s: %w", s.path, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("store: writing %s: %w", s.path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("store: closing %s: %w", s.path, err)
	}
	return nil
}
