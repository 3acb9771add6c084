// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/gatekeeper/verify"
)

func TestLoadMissingFileIsEmptyTable(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Load of missing file = %+v, want empty", records)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "users.json"))

	records := []verify.PersistedRecord{
		{DisplayName: "Steve", Identity: "u1", AccountID: 42, UserID: "@steve:example.org", State: verify.StatePending, NoticeEventID: "$n1"},
		{DisplayName: "Alex", Identity: "u2", AccountID: 43, UserID: "@alex:example.org", State: verify.StateApproved},
	}
	if err := s.Save(records); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Load = %d records, want 2", len(loaded))
	}
	byIdentity := map[string]verify.PersistedRecord{}
	for _, r := range loaded {
		byIdentity[r.Identity] = r
	}
	if got := byIdentity["u1"]; got != records[0] {
		t.Errorf("u1 round trip = %+v, want %+v", got, records[0])
	}
	if got := byIdentity["u2"]; got != records[1] {
		t.Errorf("u2 round trip = %+v, want %+v", got, records[1])
	}
}

func TestSaveOverwritesWholesale(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "users.json"))

	if err := s.Save([]verify.PersistedRecord{
		{DisplayName: "Steve", Identity: "u1", AccountID: 42, State: verify.StateApproved},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(nil); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 0 {
		t.Errorf("records survived a wholesale rewrite: %+v", loaded)
	}
}

func TestLoadRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Load(); err == nil {
		t.Fatal("Load of corrupt snapshot succeeded")
	}
}

func TestStateRoundTripsThroughJSON(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	if err := s.Save([]verify.PersistedRecord{
		{Identity: "u1", AccountID: 1, State: verify.StatePending},
	}); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatal(err)
	}
	if want := `"state": "pending"`; !strings.Contains(string(raw), want) {
		t.Errorf("snapshot %s does not contain %q", raw, want)
	}
}
