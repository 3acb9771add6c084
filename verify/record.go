// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"fmt"
	"time"
)

// State is a record's position in the verification lifecycle.
type State int

const (
	// StateNew: a code has been issued but not yet claimed. New
	// records are ephemeral — they expire with their code and are
	// never persisted.
	StateNew State = iota

	// StatePending: a chat account claimed the code; a moderator has
	// not yet approved the link.
	StatePending

	// StateApproved: a moderator approved the link. The identity may
	// join the game server.
	StateApproved
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePending:
		return "pending"
	case StateApproved:
		return "approved"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler for the snapshot file.
func (s State) MarshalText() ([]byte, error) {
	switch s {
	case StateNew, StatePending, StateApproved:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("verify: cannot marshal unknown state %d", int(s))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(data []byte) error {
	switch string(data) {
	case "new":
		*s = StateNew
	case "pending":
		*s = StatePending
	case "approved":
		*s = StateApproved
	default:
		return fmt.Errorf("verify: unknown state %q", string(data))
	}
	return nil
}

// Record tracks one game identity's verification progress. The
// Authority goroutine exclusively owns all records; front ends only
// ever see copies of individual fields inside reply packets.
//
// Invariants, maintained by the Authority:
//   - exactly one record per Identity
//   - Code is non-zero iff State == StateNew
//   - AccountID is non-zero iff State != StateNew
//   - no two records share a non-zero AccountID
//   - no two records share a non-zero Code
type Record struct {
	// DisplayName is the player's name, informational only.
	DisplayName string

	// Identity is the unique key, immutable after creation.
	Identity string

	// AccountID is the numeric handle of the linked chat account,
	// zero while the record is new.
	AccountID uint64

	// UserID is the linked chat platform user identifier, for display
	// and direct messages.
	UserID string

	// State is the record's lifecycle position.
	State State

	// NoticeEventID identifies the review notice posted for
	// moderators, kept so it can be retracted when the record is
	// removed. Empty when no notice exists.
	NoticeEventID string

	// Code is the outstanding 6-digit verification code, zero unless
	// the record is new.
	Code int

	// CodeExpiry is when the code lapses. Zero unless a code is
	// outstanding. Records past their expiry are removed on the next
	// Authority sweep.
	CodeExpiry time.Time
}

// PersistedRecord is the snapshot-file shape of a Record. Only
// pending and approved records are persisted; the code and its expiry
// never leave memory.
type PersistedRecord struct {
	DisplayName   string `json:"display_name"`
	Identity      string `json:"identity"`
	AccountID     uint64 `json:"account_id"`
	UserID        string `json:"user_id,omitempty"`
	State         State  `json:"state"`
	NoticeEventID string `json:"notice_event_id,omitempty"`
}

// Store persists the durable subset of the verification table. The
// Authority calls Save with the full pending/approved set whenever
// the table is dirty; Save rewrites the snapshot wholesale.
type Store interface {
	// Load returns the persisted records, or an empty slice when no
	// snapshot exists yet.
	Load() ([]PersistedRecord, error)

	// Save atomically replaces the snapshot with the given records.
	Save(records []PersistedRecord) error
}
