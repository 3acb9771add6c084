// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

// Packet is a message exchanged over a conversation between a front
// end and the Authority. The catalog is closed: every packet type is
// defined in this file and implements the unexported marker method.
type Packet interface {
	packet()
}

// ConnectQuery asks whether a game identity may join. Sent by the TCP
// front end when the auth plugin sees a player connect.
type ConnectQuery struct {
	// Name is the player's display name, informational only.
	Name string

	// Identity is the opaque stable game identity (a UUID).
	Identity string
}

// ConnectResponse answers a ConnectQuery. An empty Message means the
// identity is approved and the player may proceed; otherwise Message
// is shown to the player on disconnect.
type ConnectResponse struct {
	Message string
}

// VerifyCode submits a verification code typed by a chat user.
type VerifyCode struct {
	// Code is the 6-digit code as typed.
	Code int

	// AccountID is the stable numeric handle for the chat account.
	AccountID uint64

	// UserID is the chat platform user identifier, kept on the record
	// for display and direct messages.
	UserID string
}

// VerifyPending reports that a code matched: the record moved to the
// pending state and a review notice should be posted. The front end
// must answer with exactly one LinkVerifyNotice on the same
// conversation.
type VerifyPending struct {
	Identity string
	Name     string
}

// LinkVerifyNotice carries the event ID of the posted review notice
// back to the Authority, which stores it for later retraction.
type LinkVerifyNotice struct {
	EventID string
}

// AlreadyLinked reports that the submitting account is already linked
// to a record.
type AlreadyLinked struct{}

// VerifyCodeInvalid reports that no live record matches the code.
type VerifyCodeInvalid struct{}

// Approve asks to approve the identity's pending verification.
type Approve struct {
	Identity string
}

// ApprovalSuccess acknowledges an approval. UserID is the linked chat
// account, so the front end can notify the user without keeping its
// own identity→account mapping.
type ApprovalSuccess struct {
	UserID string
}

// ApprovalFailure reports that no record exists for the identity.
type ApprovalFailure struct{}

// Remove asks to unlink and delete whatever record is linked to the
// account (the user left, was banned, or a moderator unlinked them).
type Remove struct {
	AccountID uint64
}

// RemoveNotice hands the front end the stored review-notice event ID
// for deletion. When the removed record has no stored notice the
// Authority sends nothing and closes the conversation; the front end
// treats the closed conversation as "nothing to clean up".
type RemoveNotice struct {
	EventID string
}

// StatusQuery asks for a read-only summary of the verification table.
// Used by the admin socket.
type StatusQuery struct{}

// StatusReport answers a StatusQuery.
type StatusReport struct {
	New      int
	Pending  int
	Approved int
	Records  []RecordSummary
}

// RecordSummary is one record as reported to the admin surface.
// Verification codes are deliberately absent.
type RecordSummary struct {
	Identity    string
	DisplayName string
	UserID      string
	State       State
}

func (ConnectQuery) packet()      {}
func (ConnectResponse) packet()   {}
func (VerifyCode) packet()        {}
func (VerifyPending) packet()     {}
func (LinkVerifyNotice) packet()  {}
func (AlreadyLinked) packet()     {}
func (VerifyCodeInvalid) packet() {}
func (Approve) packet()           {}
func (ApprovalSuccess) packet()   {}
func (ApprovalFailure) packet()   {}
func (Remove) packet()            {}
func (RemoveNotice) packet()      {}
func (StatusQuery) packet()       {}
func (StatusReport) packet()      {}
