// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/gatekeeper/messaging"
	"github.com/bureau-foundation/gatekeeper/verify"
)

// handleMembersRoomEvent processes one event from the members room:
// moderator commands, approval reactions, and member departures.
func (f *FrontEnd) handleMembersRoomEvent(ctx context.Context, event messaging.Event) error {
	switch event.Type {
	case "m.room.message":
		return f.handleCommand(ctx, event)
	case "m.reaction":
		return f.handleReaction(ctx, event)
	case "m.room.member":
		return f.handleMembership(ctx, event)
	}
	return nil
}

// handleCommand parses members room commands: "!approve <identity>"
// and "!unlink <user>" (moderator only), "!ticket" and
// "!close [user]" (any member). Non-command messages are ignored;
// moderator commands from non-moderators are ignored silently.
func (f *FrontEnd) handleCommand(ctx context.Context, event messaging.Event) error {
	var content messaging.MessageContent
	if err := json.Unmarshal(event.Content, &content); err != nil {
		return fmt.Errorf("decoding message content: %w", err)
	}
	command, argument, _ := strings.Cut(strings.TrimSpace(content.Body), " ")
	if !strings.HasPrefix(command, "!") {
		return nil
	}
	argument = strings.TrimSpace(argument)

	switch command {
	case "!ticket":
		return f.openTicket(ctx, event.Sender)
	case "!close":
		return f.closeTicket(ctx, event.Sender, argument)
	case "!approve", "!unlink":
		if argument == "" {
			return nil
		}
	default:
		return nil
	}

	moderator, err := f.isModerator(ctx, event.Sender)
	if err != nil {
		return err
	}
	if !moderator {
		return nil
	}

	switch command {
	case "!approve":
		return f.approve(ctx, argument)
	case "!unlink":
		target, err := messaging.ParseUserID(argument)
		if err != nil {
			return f.post(ctx, fmt.Sprintf("!unlink needs a full user ID: %v", err))
		}
		return f.remove(ctx, target)
	}
	return nil
}

// handleReaction approves a pending link when a moderator reacts to
// its review notice with the approval emoji. The claim details are
// read back out of the notice event itself.
func (f *FrontEnd) handleReaction(ctx context.Context, event messaging.Event) error {
	var content messaging.ReactionContent
	if err := json.Unmarshal(event.Content, &content); err != nil {
		return fmt.Errorf("decoding reaction content: %w", err)
	}
	if content.RelatesTo.Key != approvalReactionKey || content.RelatesTo.EventID.IsZero() {
		return nil
	}

	moderator, err := f.isModerator(ctx, event.Sender)
	if err != nil {
		return err
	}
	if !moderator {
		return nil
	}

	notice, err := f.session.GetEvent(ctx, f.membersRoom, content.RelatesTo.EventID)
	if err != nil {
		return fmt.Errorf("fetching reacted-to event: %w", err)
	}
	var claim noticeContent
	if err := json.Unmarshal(notice.Content, &claim); err != nil {
		return fmt.Errorf("decoding notice content: %w", err)
	}
	if claim.Identity == "" {
		// Reaction on something other than a review notice.
		return nil
	}
	return f.approve(ctx, claim.Identity)
}

// handleMembership removes a user's verification when they leave or
// are banned from the members room.
func (f *FrontEnd) handleMembership(ctx context.Context, event messaging.Event) error {
	var content messaging.MemberContent
	if err := json.Unmarshal(event.Content, &content); err != nil {
		return fmt.Errorf("decoding member content: %w", err)
	}
	if content.Membership != "leave" && content.Membership != "ban" {
		return nil
	}
	if event.StateKey == nil {
		return nil
	}
	target, err := messaging.ParseUserID(*event.StateKey)
	if err != nil {
		return fmt.Errorf("member event state key: %w", err)
	}
	return f.remove(ctx, target)
}

// approve runs the approval conversation with the Authority and
// reports the outcome in the members room.
func (f *FrontEnd) approve(ctx context.Context, identity string) error {
	conversation, err := f.ingress.Open()
	if err != nil {
		return err
	}
	defer conversation.Close()

	if err := conversation.Send(verify.Approve{Identity: identity}); err != nil {
		return err
	}
	reply, err := conversation.Receive(ctx)
	if err != nil {
		return fmt.Errorf("authority did not answer approval: %w", err)
	}

	switch reply := reply.(type) {
	case verify.ApprovalSuccess:
		if user, parseErr := messaging.ParseUserID(reply.UserID); parseErr == nil {
			// The invite can fail if the user is already in the room;
			// the approval stands either way.
			if err := f.session.InviteUser(ctx, f.membersRoom, user); err != nil {
				f.logger.Warn("cannot invite approved user to members room", "user", user, "error", err)
			}
			f.directMessage(ctx, user, "Your game identity link has been approved. Welcome!")
		}
		return f.post(ctx, fmt.Sprintf("Approved link for %s.", identity))
	case verify.ApprovalFailure:
		return f.post(ctx, fmt.Sprintf("No pending verification for %s.", identity))
	default:
		return fmt.Errorf("unexpected reply to approval: %T", reply)
	}
}

// remove runs the removal conversation for a departed or unlinked
// user. If the Authority returns a notice reference, the stale review
// notice is redacted; if the user had no records, the conversation
// simply closes and there is nothing to clean up.
func (f *FrontEnd) remove(ctx context.Context, target messaging.UserID) error {
	conversation, err := f.ingress.Open()
	if err != nil {
		return err
	}
	defer conversation.Close()

	if err := conversation.Send(verify.Remove{AccountID: accountID(target)}); err != nil {
		return err
	}
	reply, err := conversation.Receive(ctx)
	if err != nil {
		if errors.Is(err, verify.ErrClosed) {
			return nil
		}
		return err
	}

	notice, ok := reply.(verify.RemoveNotice)
	if !ok {
		return fmt.Errorf("unexpected reply to removal: %T", reply)
	}
	eventID, err := messaging.ParseEventID(notice.EventID)
	if err != nil {
		return fmt.Errorf("notice reference from removal: %w", err)
	}
	if _, err := f.session.RedactEvent(ctx, f.membersRoom, eventID, "verification removed"); err != nil {
		return fmt.Errorf("redacting stale review notice: %w", err)
	}
	f.logger.Info("removed verification", "user", target)
	return nil
}

// post sends a plain text message to the members room.
func (f *FrontEnd) post(ctx context.Context, text string) error {
	_, err := f.session.SendMessage(ctx, f.membersRoom, messaging.NewTextMessage(text))
	return err
}
