// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "encoding/json"

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// AuthResponse is the body of a successful login.
type AuthResponse struct {
	UserID      UserID `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

// WhoAmIResponse is the body of GET /_matrix/client/v3/account/whoami.
type WhoAmIResponse struct {
	UserID UserID `json:"user_id"`
}

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// NewTextMessage builds plain-text m.room.message content.
func NewTextMessage(body string) MessageContent {
	return MessageContent{MsgType: "m.text", Body: body}
}

// ReactionContent is the content of an m.reaction event: an
// m.annotation relation to the reacted-to event carrying the emoji key.
type ReactionContent struct {
	RelatesTo ReactionRelation `json:"m.relates_to"`
}

// ReactionRelation is the m.relates_to block of a reaction.
type ReactionRelation struct {
	RelType string  `json:"rel_type"`
	EventID EventID `json:"event_id"`
	Key     string  `json:"key"`
}

// TopicContent is the content of an m.room.topic state event.
type TopicContent struct {
	Topic string `json:"topic"`
}

// MemberContent is the content of an m.room.member state event.
type MemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
}

// Event is a single event from /sync or /rooms/{id}/event.
type Event struct {
	Type     string          `json:"type"`
	Sender   UserID          `json:"sender"`
	EventID  EventID         `json:"event_id"`
	StateKey *string         `json:"state_key,omitempty"`
	Content  json.RawMessage `json:"content"`
	RoomID   RoomID          `json:"room_id"`
}

// CreateRoomRequest is the body of POST /_matrix/client/v3/createRoom.
type CreateRoomRequest struct {
	Name     string   `json:"name,omitempty"`
	Topic    string   `json:"topic,omitempty"`
	Preset   string   `json:"preset,omitempty"`
	Invite   []UserID `json:"invite,omitempty"`
	IsDirect bool     `json:"is_direct,omitempty"`
}

// CreateRoomResponse is the body of a successful createRoom.
type CreateRoomResponse struct {
	RoomID RoomID `json:"room_id"`
}

// SendEventResponse is the body of a successful event send or redact.
type SendEventResponse struct {
	EventID EventID `json:"event_id"`
}

// InviteRequest is the body of POST /rooms/{id}/invite.
type InviteRequest struct {
	UserID UserID `json:"user_id"`
}

// KickRequest is the body of POST /rooms/{id}/kick.
type KickRequest struct {
	UserID UserID `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

// RedactRequest is the body of PUT /rooms/{id}/redact/{event}/{txn}.
type RedactRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ResolveAliasResponse is the body of GET /directory/room/{alias}.
type ResolveAliasResponse struct {
	RoomID RoomID `json:"room_id"`
}

// DisplayNameResponse is the body of GET /profile/{user}/displayname.
type DisplayNameResponse struct {
	DisplayName string `json:"displayname"`
}

// PowerLevelsContent is the content of the m.room.power_levels state
// event. Only the fields the daemon consults are decoded.
type PowerLevelsContent struct {
	Users        map[string]int `json:"users"`
	UsersDefault int            `json:"users_default"`
}

// Level returns the power level of the given user in this room.
func (p PowerLevelsContent) Level(userID UserID) int {
	if level, ok := p.Users[userID.String()]; ok {
		return level
	}
	return p.UsersDefault
}

// SyncOptions controls a single /sync call.
type SyncOptions struct {
	// Since is the batch token from the previous sync. Empty for an
	// initial sync.
	Since string
	// SetTimeout includes the timeout parameter even when zero, which
	// tells the server to return immediately.
	SetTimeout bool
	// Timeout is the server-side long-poll hold in milliseconds.
	Timeout int
	// Filter is an inline JSON filter definition.
	Filter string
}

// SyncResponse is the body of GET /_matrix/client/v3/sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection groups per-room sync data by membership.
type RoomsSection struct {
	Join map[RoomID]JoinedRoom `json:"join"`
}

// JoinedRoom is the sync data for one joined room.
type JoinedRoom struct {
	State    StateSection    `json:"state"`
	Timeline TimelineSection `json:"timeline"`
}

// StateSection holds state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// TimelineSection holds timeline events from a sync response.
type TimelineSection struct {
	Events []Event `json:"events"`
}
