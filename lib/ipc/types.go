// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the CBOR-encoded message types for the
// gatekeeper admin Unix socket. Both cmd/gatekeeper-daemon and
// cmd/gatekeeper import this package so the wire types are defined
// once rather than mirrored.
//
// The protocol is one request, one response per connection. The admin
// surface is read-only: requests are answered from the Authority's
// table through the same ingress queue every front end uses.
package ipc

// Actions accepted on the admin socket.
const (
	// ActionStatus asks for per-state record counts and daemon uptime.
	ActionStatus = "status"

	// ActionRecords asks for a listing of all live verification
	// records. Verification codes are never included.
	ActionRecords = "records"
)

// Request is sent by the operator CLI.
type Request struct {
	// Action is ActionStatus or ActionRecords.
	Action string `cbor:"action"`
}

// Response is the daemon's reply. Exactly one of Error, Status, or
// Records is populated.
type Response struct {
	// Error is a human-readable failure description. Empty on success.
	Error string `cbor:"error,omitempty"`

	// Status is set for ActionStatus requests.
	Status *Status `cbor:"status,omitempty"`

	// Records is set for ActionRecords requests.
	Records []RecordInfo `cbor:"records,omitempty"`
}

// Status summarizes the verification table.
type Status struct {
	// New, Pending, and Approved count live records per state.
	New      int `cbor:"new"`
	Pending  int `cbor:"pending"`
	Approved int `cbor:"approved"`

	// UptimeSeconds is how long the daemon has been running.
	UptimeSeconds int64 `cbor:"uptime_seconds"`
}

// RecordInfo is one verification record as shown to operators. The
// verification code and its expiry are deliberately absent — the code
// must only ever be visible to the player it was issued to.
type RecordInfo struct {
	Identity    string `cbor:"identity"`
	DisplayName string `cbor:"display_name"`
	State       string `cbor:"state"`

	// UserID is the linked Matrix user, empty while the record is new.
	UserID string `cbor:"user_id,omitempty"`
}
