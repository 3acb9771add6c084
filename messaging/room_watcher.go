// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

// SyncFilter configures what events a RoomWatcher receives from /sync.
// The watched room is always included automatically.
//
// A nil *SyncFilter means "all events from the watched room" (state
// and timeline).
type SyncFilter struct {
	// TimelineTypes restricts timeline events to these Matrix event
	// types (e.g., "m.room.message"). An empty slice means all
	// timeline types.
	TimelineTypes []string

	// TimelineLimit caps the number of timeline events per /sync
	// response. Zero means the server default.
	TimelineLimit int

	// ExcludeState suppresses state events from the /sync response.
	ExcludeState bool
}

// buildInlineFilter constructs the inline JSON filter string for
// /sync, always scoped to the given room. Presence and account data
// are suppressed unconditionally.
func buildInlineFilter(roomID RoomID, filter *SyncFilter) string {
	roomFilter := map[string]any{
		"rooms": []string{roomID.String()},
	}

	if filter != nil {
		if len(filter.TimelineTypes) > 0 {
			timeline := map[string]any{"types": filter.TimelineTypes}
			if filter.TimelineLimit > 0 {
				timeline["limit"] = filter.TimelineLimit
			}
			roomFilter["timeline"] = timeline
		} else if filter.TimelineLimit > 0 {
			roomFilter["timeline"] = map[string]any{"limit": filter.TimelineLimit}
		}

		if filter.ExcludeState {
			roomFilter["state"] = map[string]any{"types": []string{}}
		}
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}

	data, _ := json.Marshal(top)
	return string(data)
}

// RoomWatcher captures a position in the Matrix /sync stream for a
// specific room. Create one with WatchRoom, then call Next repeatedly
// to receive events arriving after the checkpoint.
//
// All waiting uses /sync long-polling: the server holds the connection
// until new events arrive, then returns immediately. There is no
// client-side polling interval.
//
// RoomWatcher is not safe for concurrent use by multiple goroutines.
// For fan-out, create multiple independent watchers — each maintains
// its own sync position on the same Session, which works because
// Session.Sync is stateless.
type RoomWatcher struct {
	session   *Session
	roomID    RoomID
	filter    string  // inline JSON /sync filter
	nextBatch string  // sync token at the captured position
	pending   []Event // events received but not yet consumed
}

// WatchRoom captures the current position in the /sync stream. The
// returned RoomWatcher only sees events arriving after this call.
//
// This performs an immediate /sync (timeout=0) to obtain the current
// next_batch token without blocking.
func WatchRoom(ctx context.Context, session *Session, roomID RoomID, filter *SyncFilter) (*RoomWatcher, error) {
	if roomID.IsZero() {
		return nil, fmt.Errorf("messaging: WatchRoom requires a non-zero room ID")
	}
	inlineFilter := buildInlineFilter(roomID, filter)
	response, err := session.Sync(ctx, SyncOptions{
		SetTimeout: true,
		Timeout:    0,
		Filter:     inlineFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: initial sync for room watch: %w", err)
	}
	return &RoomWatcher{
		session:   session,
		roomID:    roomID,
		filter:    inlineFilter,
		nextBatch: response.NextBatch,
	}, nil
}

// maxSyncRetries is the number of consecutive /sync failures allowed
// before Next returns an error.
const maxSyncRetries = 5

// longPollTimeout is the server-side long-poll hold in milliseconds
// for normal /sync calls. 30 seconds matches the Matrix client-server
// spec recommendation.
const longPollTimeout = 30000

// retryTimeout is the server-side timeout in milliseconds used after a
// /sync error. Short so the retry completes quickly.
const retryTimeout = 1000

// Next blocks until the next event arrives in the watched room. Events
// delivered in the same /sync batch are buffered, so none are dropped
// between calls.
//
// Bounded by ctx. On transient /sync errors, retries up to 5 times
// with a 1-second server timeout (the HTTP round-trip provides
// backoff), resetting idle connections between attempts.
func (w *RoomWatcher) Next(ctx context.Context) (Event, error) {
	if len(w.pending) > 0 {
		event := w.pending[0]
		w.pending = w.pending[1:]
		return event, nil
	}

	var syncRetries int
	for {
		syncTimeout := longPollTimeout
		if syncRetries > 0 {
			syncTimeout = retryTimeout
		}
		response, err := w.session.Sync(ctx, SyncOptions{
			Since:      w.nextBatch,
			SetTimeout: true,
			Timeout:    syncTimeout,
			Filter:     w.filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Event{}, fmt.Errorf("context cancelled waiting for event in room %s: %w", w.roomID, ctx.Err())
			}
			// Auth failure is fatal: the token has been revoked and
			// retrying cannot recover.
			if IsMatrixError(err, ErrCodeUnknownToken) {
				return Event{}, fmt.Errorf("sync in room %s: %w", w.roomID, err)
			}
			syncRetries++
			// TCP-level errors often indicate a poisoned connection in
			// the HTTP pool. Drop idle connections so the next attempt
			// opens a fresh socket.
			w.session.CloseIdleConnections()
			if syncRetries > maxSyncRetries {
				return Event{}, fmt.Errorf("sync failed %d consecutive times waiting for event in room %s: %w",
					syncRetries, w.roomID, err)
			}
			continue
		}
		syncRetries = 0
		w.nextBatch = response.NextBatch

		joined, ok := response.Rooms.Join[w.roomID]
		if !ok {
			// The server returned activity for other rooms but not the
			// watched one. Nothing to scan; keep polling.
			continue
		}
		if len(joined.State.Events) == 0 && len(joined.Timeline.Events) == 0 {
			continue
		}

		// State events come before timeline events to match the
		// delivery order from the server.
		w.pending = append(w.pending, joined.State.Events...)
		w.pending = append(w.pending, joined.Timeline.Events...)

		event := w.pending[0]
		w.pending = w.pending[1:]
		return event, nil
	}
}

// SyncPosition returns the current sync stream position token.
func (w *RoomWatcher) SyncPosition() string {
	return w.nextBatch
}

// RoomID returns the room being watched.
func (w *RoomWatcher) RoomID() RoomID {
	return w.roomID
}
