// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gameserver is the TCP front end queried by the game
// server's auth plugin. Each connection carries exactly one
// request/response exchange: the plugin sends the joining player's
// UUID and name, the Authority answers with the message to show on
// disconnect (empty means the player may proceed), and the connection
// closes.
//
// The channel is intentionally unauthenticated: the listener binds a
// loopback address and any local process may connect.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/bureau-foundation/gatekeeper/verify"
	"github.com/bureau-foundation/gatekeeper/wire"
)

// Request kinds. Kind 0 is the connect/query exchange; all other
// kinds are reserved and close the connection without a reply.
const kindConnectQuery = 0

// Listener accepts game server connections and relays them to the
// Authority as conversations.
type Listener struct {
	ingress  *verify.Ingress
	logger   *slog.Logger
	listener net.Listener
}

// NewListener binds the TCP address (e.g., "127.0.0.1:25687"; use
// ":0" for a random port in tests).
func NewListener(address string, ingress *verify.Ingress, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("gameserver: binding %s: %w", address, err)
	}
	return &Listener{ingress: ingress, logger: logger, listener: listener}, nil
}

// Address returns the bound address in "host:port" form.
func (l *Listener) Address() string {
	return l.listener.Addr().String()
}

// Serve accepts connections until ctx is cancelled, spawning one
// goroutine per connection. There is no connection limit and no
// backpressure — admission control is deliberately absent, matching
// the unbounded ingress queue behind it.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	l.logger.Info("game server listener started", "address", l.Address())

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gameserver: accept: %w", err)
		}
		go func() {
			if err := l.handle(ctx, conn); err != nil {
				l.logger.Warn("error handling game server connection",
					"remote", conn.RemoteAddr().String(),
					"error", err,
				)
			}
		}()
	}
}

// handle serves one connection: one frame in, at most one frame out.
// Errors abort only this connection.
func (l *Listener) handle(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	buffer := wire.NewBuffer()
	if err := buffer.ReadFrame(conn); err != nil {
		return err
	}
	kind, err := buffer.NextU8()
	if err != nil {
		return err
	}
	if kind != kindConnectQuery {
		// Reserved kind: close without replying.
		return nil
	}

	identity, err := buffer.NextString()
	if err != nil {
		return err
	}
	name, err := buffer.NextString()
	if err != nil {
		return err
	}

	conversation, err := l.ingress.Open()
	if err != nil {
		return err
	}
	defer conversation.Close()

	if err := conversation.Send(verify.ConnectQuery{Name: name, Identity: identity}); err != nil {
		return err
	}
	reply, err := conversation.Receive(ctx)
	if err != nil {
		return fmt.Errorf("gameserver: authority did not respond: %w", err)
	}
	response, ok := reply.(verify.ConnectResponse)
	if !ok {
		return errors.New("gameserver: unexpected packet in connect conversation")
	}

	buffer.Reset()
	if err := buffer.PutU8(kindConnectQuery); err != nil {
		return err
	}
	if err := buffer.PutString(response.Message); err != nil {
		return err
	}
	return buffer.WriteFrame(conn)
}
