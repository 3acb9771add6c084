// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/gatekeeper/messaging"
	"github.com/bureau-foundation/gatekeeper/verify"
)

// noticeContent is the review notice posted to the members room. On
// top of the visible message body it carries the claim in namespaced
// keys so the reaction handler can recover it from the event alone.
type noticeContent struct {
	MsgType  string `json:"msgtype"`
	Body     string `json:"body"`
	Identity string `json:"org.bureau.gatekeeper.identity,omitempty"`
	UserID   string `json:"org.bureau.gatekeeper.user_id,omitempty"`
}

// handleVerifyRoomEvent processes one message from the verify room.
// Every non-bot message is redacted afterwards so posted codes do not
// linger in the room history.
func (f *FrontEnd) handleVerifyRoomEvent(ctx context.Context, event messaging.Event) error {
	if event.Type != "m.room.message" {
		return nil
	}
	var content messaging.MessageContent
	if err := json.Unmarshal(event.Content, &content); err != nil {
		return fmt.Errorf("decoding message content: %w", err)
	}
	body := strings.TrimSpace(content.Body)

	var handleErr error
	switch {
	case body == "!msg":
		handleErr = f.postInstructions(ctx, event.Sender)
	case codePattern.MatchString(body):
		code, _ := strconv.Atoi(body)
		handleErr = f.submitCode(ctx, event.Sender, code)
	}

	if _, err := f.session.RedactEvent(ctx, f.verifyRoom, event.EventID, ""); err != nil {
		f.logger.Warn("cannot redact verify room message",
			"event", event.EventID, "error", err)
	}
	return handleErr
}

// postInstructions handles the !msg bootstrap command: a moderator
// posts it once to have the bot place the standing instructions in the
// verify room.
func (f *FrontEnd) postInstructions(ctx context.Context, sender messaging.UserID) error {
	moderator, err := f.isModerator(ctx, sender)
	if err != nil {
		return err
	}
	if !moderator {
		return nil
	}
	_, err = f.session.SendMessage(ctx, f.verifyRoom, messaging.NewTextMessage(instructionsText))
	return err
}

// submitCode runs the code-claim conversation with the Authority and
// reports the outcome to the player in a direct message. On a
// successful claim the review notice is posted to the members room and
// its event ID handed back to the Authority, which is waiting for it
// before finishing the claim.
func (f *FrontEnd) submitCode(ctx context.Context, sender messaging.UserID, code int) error {
	conversation, err := f.ingress.Open()
	if err != nil {
		return err
	}
	defer conversation.Close()

	err = conversation.Send(verify.VerifyCode{
		Code:      code,
		AccountID: accountID(sender),
		UserID:    sender.String(),
	})
	if err != nil {
		return err
	}
	reply, err := conversation.Receive(ctx)
	if err != nil {
		return fmt.Errorf("authority did not answer code claim: %w", err)
	}

	switch reply := reply.(type) {
	case verify.VerifyPending:
		noticeID, err := f.postReviewNotice(ctx, sender, reply)
		if err != nil {
			// The Authority is waiting for the notice reference. Hand
			// it an empty one rather than leaving the claim dangling.
			f.logger.Error("cannot post review notice", "identity", reply.Identity, "error", err)
		}
		if err := conversation.Send(verify.LinkVerifyNotice{EventID: noticeID}); err != nil {
			return fmt.Errorf("returning notice reference: %w", err)
		}
		f.directMessage(ctx, sender,
			fmt.Sprintf("Your link to %s (%s) is awaiting moderator approval.", reply.Name, reply.Identity))
	case verify.AlreadyLinked:
		f.directMessage(ctx, sender, "Your account is already linked to a game identity.")
	case verify.VerifyCodeInvalid:
		f.directMessage(ctx, sender, "That code is invalid or has expired. Reconnect to the game server for a fresh one.")
	default:
		return fmt.Errorf("unexpected reply to code claim: %T", reply)
	}
	return nil
}

// postReviewNotice posts the moderator-facing notice for a pending
// link and returns its event ID.
func (f *FrontEnd) postReviewNotice(ctx context.Context, sender messaging.UserID, pending verify.VerifyPending) (string, error) {
	body := fmt.Sprintf("%s claims game identity %s (player name %q). React with %s or reply '!approve %s' to approve.",
		sender, pending.Identity, pending.Name, approvalReactionKey, pending.Identity)
	eventID, err := f.session.SendEvent(ctx, f.membersRoom, "m.room.message", noticeContent{
		MsgType:  "m.text",
		Body:     body,
		Identity: pending.Identity,
		UserID:   sender.String(),
	})
	if err != nil {
		return "", err
	}
	return eventID.String(), nil
}
