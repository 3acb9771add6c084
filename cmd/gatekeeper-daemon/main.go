// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Gatekeeper-daemon links game server identities to chat accounts.
//
// It runs three front ends around a single verification authority:
//
//   - a TCP listener queried by the game server's auth plugin on every
//     player join,
//   - a Matrix bot watching the verify room for posted codes and the
//     members room for moderator approvals and departures,
//   - a Unix admin socket serving the gatekeeper CLI.
//
// All three translate their traffic into conversations on one ingress
// queue; the authority owns the verification table outright and
// snapshots its durable subset to a JSON file on change.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bureau-foundation/gatekeeper/gameserver"
	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/config"
	"github.com/bureau-foundation/gatekeeper/lib/secret"
	"github.com/bureau-foundation/gatekeeper/messaging"
	"github.com/bureau-foundation/gatekeeper/moderation"
	"github.com/bureau-foundation/gatekeeper/store"
	"github.com/bureau-foundation/gatekeeper/verify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to the config file (overrides GATEKEEPER_CONFIG)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	botID, err := messaging.ParseUserID(cfg.Matrix.UserID)
	if err != nil {
		return fmt.Errorf("matrix.user_id: %w", err)
	}
	token, err := secret.ReadFromPath(cfg.Matrix.TokenPath)
	if err != nil {
		return fmt.Errorf("reading access token: %w", err)
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Matrix.HomeserverURL,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	session, err := client.SessionFromToken(botID, token)
	if err != nil {
		return err
	}
	defer session.Close()

	// Fail fast on a revoked or mismatched token.
	whoami, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("validating access token: %w", err)
	}
	if whoami != botID {
		return fmt.Errorf("access token belongs to %s, config says %s", whoami, botID)
	}

	verifyRoom, err := resolveRoom(ctx, session, cfg.Matrix.VerifyRoom)
	if err != nil {
		return fmt.Errorf("matrix.verify_room: %w", err)
	}
	membersRoom, err := resolveRoom(ctx, session, cfg.Matrix.MembersRoom)
	if err != nil {
		return fmt.Errorf("matrix.members_room: %w", err)
	}

	ingress := verify.NewIngress()
	defer ingress.Close()

	authority, err := verify.NewAuthority(verify.AuthorityConfig{
		Ingress: ingress,
		Store:   store.NewFileStore(cfg.StatePath),
		Clock:   clock.Real(),
		Logger:  logger,
		CodeTTL: cfg.CodeTTL.Value(),
	})
	if err != nil {
		return err
	}

	listener, err := gameserver.NewListener(cfg.GameServer.Listen, ingress, logger)
	if err != nil {
		return err
	}

	front, err := moderation.NewFrontEnd(moderation.Config{
		Session:        session,
		Ingress:        ingress,
		VerifyRoom:     verifyRoom,
		MembersRoom:    membersRoom,
		ModeratorLevel: cfg.Matrix.ModeratorLevel,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	admin, err := newAdminServer(cfg.AdminSocket, ingress, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	parts := []struct {
		name string
		run  func(context.Context) error
	}{
		{"authority", authority.Run},
		{"game server listener", listener.Serve},
		{"chat front end", front.Run},
		{"admin socket", admin.Serve},
	}
	failures := make(chan error, len(parts))
	for _, part := range parts {
		go func() {
			err := part.run(ctx)
			if err != nil {
				err = fmt.Errorf("%s: %w", part.name, err)
			}
			failures <- err
		}()
	}

	// The first failure (or a shutdown signal cancelling everything)
	// brings the whole daemon down. A snapshot write failure surfaces
	// here as an authority error and exits non-zero: continuing
	// without persistence would silently lose verifications.
	var firstErr error
	for range parts {
		if err := <-failures; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}

// resolveRoom accepts a room ID or a '#alias' and returns the room ID,
// joining the room so /sync delivers its events.
func resolveRoom(ctx context.Context, session *messaging.Session, room string) (messaging.RoomID, error) {
	var roomID messaging.RoomID
	var err error
	if strings.HasPrefix(room, "#") {
		roomID, err = session.ResolveAlias(ctx, room)
	} else {
		roomID, err = messaging.ParseRoomID(room)
	}
	if err != nil {
		return messaging.RoomID{}, err
	}
	if _, err := session.JoinRoom(ctx, roomID); err != nil {
		// Already-joined is the normal case; a hard failure will
		// surface again when the watcher sees no events.
		slog.Warn("could not join room", "room", roomID, "error", err)
	}
	return roomID, nil
}
