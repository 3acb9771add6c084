// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package moderation is the chat front end of the verification
// daemon. It watches two rooms: the verify room, where players post
// the six digit codes issued to them in game, and the members room,
// where moderators review and approve pending links.
//
// Like the TCP front end, it holds no verification state of its own.
// Every chat event that matters is translated into a conversation with
// the Authority; the reply determines what gets posted back.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"sync"

	"github.com/bureau-foundation/gatekeeper/messaging"
	"github.com/bureau-foundation/gatekeeper/verify"
)

// codePattern matches a message consisting of exactly one six digit
// verification code.
var codePattern = regexp.MustCompile(`^\d{6}$`)

// Namespaced keys carried in the review notice content. The approval
// reaction handler reads the claim back out of the notice event, so
// the front end never has to remember which notice belongs to whom.
const (
	noticeIdentityKey = "org.bureau.gatekeeper.identity"
	noticeUserKey     = "org.bureau.gatekeeper.user_id"
)

// approvalReactionKey is the emoji moderators react with on a review
// notice to approve the link.
const approvalReactionKey = "✅"

// instructionsText is posted to the verify room by the !msg bootstrap
// command.
const instructionsText = "To link your game account, join the game server. " +
	"You will be shown a six digit code on the disconnect screen. " +
	"Post that code in this room."

// accountID derives the numeric account handle for a chat user. The
// verification table keys removals by this value, so it must be stable
// for the lifetime of the account. FNV-64a over the full user ID is
// stable, cheap, and collision-free at the scale of a single
// community.
func accountID(userID messaging.UserID) uint64 {
	hash := fnv.New64a()
	hash.Write([]byte(userID.String()))
	return hash.Sum64()
}

// Config holds the wiring for a FrontEnd.
type Config struct {
	// Session is the bot's authenticated chat session.
	Session *messaging.Session
	// Ingress is the Authority's conversation queue.
	Ingress *verify.Ingress
	// VerifyRoom is where players post codes.
	VerifyRoom messaging.RoomID
	// MembersRoom is where review notices are posted and moderator
	// commands are issued.
	MembersRoom messaging.RoomID
	// ModeratorLevel is the minimum power level in the members room
	// required to approve or unlink. Zero means the room's default
	// user level suffices.
	ModeratorLevel int
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// FrontEnd runs the two room watchers and relays between chat events
// and Authority conversations.
type FrontEnd struct {
	session        *messaging.Session
	ingress        *verify.Ingress
	verifyRoom     messaging.RoomID
	membersRoom    messaging.RoomID
	moderatorLevel int
	logger         *slog.Logger

	// dmRooms caches direct rooms by user ID. Both watcher loops DM
	// users, hence the lock.
	dmMutex sync.Mutex
	dmRooms map[string]messaging.RoomID

	// tickets maps requester user IDs to their open ticket room, at
	// most one per user.
	ticketMutex sync.Mutex
	tickets     map[string]messaging.RoomID
}

// NewFrontEnd validates the config and returns a FrontEnd. Call Run to
// start watching.
func NewFrontEnd(config Config) (*FrontEnd, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("moderation: Session is required")
	}
	if config.Ingress == nil {
		return nil, fmt.Errorf("moderation: Ingress is required")
	}
	if config.VerifyRoom.IsZero() || config.MembersRoom.IsZero() {
		return nil, fmt.Errorf("moderation: both room IDs are required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FrontEnd{
		session:        config.Session,
		ingress:        config.Ingress,
		verifyRoom:     config.VerifyRoom,
		membersRoom:    config.MembersRoom,
		moderatorLevel: config.ModeratorLevel,
		logger:         logger,
		dmRooms:        make(map[string]messaging.RoomID),
		tickets:        make(map[string]messaging.RoomID),
	}, nil
}

// Run watches both rooms until ctx is cancelled or a watcher fails
// terminally (e.g., the access token is revoked).
func (f *FrontEnd) Run(ctx context.Context) error {
	verifyWatcher, err := messaging.WatchRoom(ctx, f.session, f.verifyRoom, &messaging.SyncFilter{
		TimelineTypes: []string{"m.room.message"},
		ExcludeState:  true,
	})
	if err != nil {
		return fmt.Errorf("moderation: watching verify room: %w", err)
	}
	membersWatcher, err := messaging.WatchRoom(ctx, f.session, f.membersRoom, nil)
	if err != nil {
		return fmt.Errorf("moderation: watching members room: %w", err)
	}

	f.logger.Info("chat front end started",
		"verify_room", f.verifyRoom,
		"members_room", f.membersRoom,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	failures := make(chan error, 2)
	go func() { failures <- f.watch(ctx, verifyWatcher, f.handleVerifyRoomEvent) }()
	go func() { failures <- f.watch(ctx, membersWatcher, f.handleMembersRoomEvent) }()

	err = <-failures
	cancel()
	<-failures
	if errors.Is(err, context.Canceled) {
		// Normal shutdown surfaces as a cancelled sync.
		return nil
	}
	return err
}

// watch pumps one room's events through a handler. Each event is
// handled in its own goroutine: a code claim holds its Authority
// conversation open until the review notice is posted, and one slow
// claim must not stall the rest of the room. Handler errors are
// logged, not fatal: a single malformed event must not take down the
// front end.
func (f *FrontEnd) watch(ctx context.Context, watcher *messaging.RoomWatcher, handle func(context.Context, messaging.Event) error) error {
	for {
		event, err := watcher.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		// The bot's own posts come back through /sync too.
		if event.Sender == f.session.UserID() {
			continue
		}
		go func() {
			if err := handle(ctx, event); err != nil {
				f.logger.Warn("error handling room event",
					"room", watcher.RoomID(),
					"event", event.EventID,
					"sender", event.Sender,
					"error", err,
				)
			}
		}()
	}
}

// isModerator reports whether the user holds at least the moderator
// power level in the members room. Power levels are fetched per check;
// moderator commands are rare enough that caching would only add
// staleness.
func (f *FrontEnd) isModerator(ctx context.Context, userID messaging.UserID) (bool, error) {
	levels, err := f.session.PowerLevels(ctx, f.membersRoom)
	if err != nil {
		return false, fmt.Errorf("moderation: fetching power levels: %w", err)
	}
	return levels.Level(userID) >= f.moderatorLevel, nil
}

// directMessage sends a private notice to the user, creating (and
// caching) a direct room on first use. Failures are logged and
// swallowed: a user who blocks DMs still gets verified.
func (f *FrontEnd) directMessage(ctx context.Context, userID messaging.UserID, text string) {
	roomID, err := f.directRoom(ctx, userID)
	if err != nil {
		f.logger.Warn("cannot open direct room", "user", userID, "error", err)
		return
	}
	if _, err := f.session.SendMessage(ctx, roomID, messaging.NewTextMessage(text)); err != nil {
		f.logger.Warn("cannot send direct message", "user", userID, "error", err)
	}
}

func (f *FrontEnd) directRoom(ctx context.Context, userID messaging.UserID) (messaging.RoomID, error) {
	f.dmMutex.Lock()
	cached, ok := f.dmRooms[userID.String()]
	f.dmMutex.Unlock()
	if ok {
		return cached, nil
	}

	roomID, err := f.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Preset:   "trusted_private_chat",
		Invite:   []messaging.UserID{userID},
		IsDirect: true,
	})
	if err != nil {
		return messaging.RoomID{}, err
	}

	f.dmMutex.Lock()
	f.dmRooms[userID.String()] = roomID
	f.dmMutex.Unlock()
	return roomID, nil
}
