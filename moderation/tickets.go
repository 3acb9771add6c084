// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/gatekeeper/messaging"
)

// Support tickets: a member posts !ticket in the members room and the
// bot opens a private room shared by the member and the bot, named
// after them. The requester (or a moderator, naming them) posts
// !close to end it; the closed room keeps its history but the
// requester is removed and the topic marks it closed.

// openTicket creates the requester's ticket room, one at most per
// user.
func (f *FrontEnd) openTicket(ctx context.Context, requester messaging.UserID) error {
	f.ticketMutex.Lock()
	_, open := f.tickets[requester.String()]
	f.ticketMutex.Unlock()
	if open {
		return f.post(ctx, fmt.Sprintf("%s already has an open ticket.", requester))
	}

	name, err := f.session.GetDisplayName(ctx, requester)
	if err != nil {
		f.logger.Warn("cannot fetch display name for ticket room", "user", requester, "error", err)
	}
	if name == "" {
		name = requester.Localpart()
	}

	roomID, err := f.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Name:   fmt.Sprintf("Ticket: %s", name),
		Topic:  fmt.Sprintf("Support ticket for %s", requester),
		Preset: "private_chat",
		Invite: []messaging.UserID{requester},
	})
	if err != nil {
		return fmt.Errorf("creating ticket room: %w", err)
	}

	f.ticketMutex.Lock()
	f.tickets[requester.String()] = roomID
	f.ticketMutex.Unlock()

	f.logger.Info("opened ticket", "user", requester, "room", roomID)
	return f.post(ctx, fmt.Sprintf("Opened a ticket for %s.", requester))
}

// closeTicket ends a ticket. With no argument the sender closes their
// own; closing someone else's requires the moderator level.
func (f *FrontEnd) closeTicket(ctx context.Context, sender messaging.UserID, argument string) error {
	target := sender
	if argument != "" {
		parsed, err := messaging.ParseUserID(argument)
		if err != nil {
			return f.post(ctx, fmt.Sprintf("!close needs a full user ID: %v", err))
		}
		if parsed != sender {
			moderator, err := f.isModerator(ctx, sender)
			if err != nil {
				return err
			}
			if !moderator {
				return nil
			}
		}
		target = parsed
	}

	f.ticketMutex.Lock()
	roomID, open := f.tickets[target.String()]
	if open {
		delete(f.tickets, target.String())
	}
	f.ticketMutex.Unlock()
	if !open {
		return f.post(ctx, fmt.Sprintf("No open ticket for %s.", target))
	}

	if err := f.session.SendStateEvent(ctx, roomID, "m.room.topic", "", messaging.TopicContent{Topic: "Closed"}); err != nil {
		f.logger.Warn("cannot mark ticket room closed", "room", roomID, "error", err)
	}
	if err := f.session.KickUser(ctx, roomID, target, "ticket closed"); err != nil {
		f.logger.Warn("cannot remove requester from closed ticket room",
			"room", roomID, "user", target, "error", err)
	}

	f.logger.Info("closed ticket", "user", target, "room", roomID)
	return f.post(ctx, fmt.Sprintf("Closed the ticket for %s.", target))
}
