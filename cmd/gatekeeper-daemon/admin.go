// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/codec"
	"github.com/bureau-foundation/gatekeeper/lib/ipc"
	"github.com/bureau-foundation/gatekeeper/verify"
)

// adminConnTimeout bounds one request/response exchange on the admin
// socket.
const adminConnTimeout = 10 * time.Second

// adminServer answers gatekeeper CLI requests over a Unix socket. It
// is read-only: every answer comes from a StatusQuery conversation
// through the same ingress queue the front ends use.
type adminServer struct {
	ingress   *verify.Ingress
	logger    *slog.Logger
	listener  net.Listener
	startedAt time.Time
}

// newAdminServer binds the Unix socket, removing a stale socket file
// from a previous run first.
func newAdminServer(path string, ingress *verify.Ingress, logger *slog.Logger) (*adminServer, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale admin socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("binding admin socket %s: %w", path, err)
	}
	return &adminServer{
		ingress:   ingress,
		logger:    logger,
		listener:  listener,
		startedAt: time.Now(),
	}, nil
}

// Serve accepts connections until ctx is cancelled. One request, one
// response per connection.
func (s *adminServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.logger.Info("admin socket listening", "path", s.listener.Addr().String())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("admin socket accept: %w", err)
		}
		go func() {
			if err := s.handle(ctx, conn); err != nil {
				s.logger.Warn("error handling admin request", "error", err)
			}
		}()
	}
}

func (s *adminServer) handle(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(adminConnTimeout))

	var request ipc.Request
	if err := codec.NewDecoder(conn).Decode(&request); err != nil {
		return fmt.Errorf("decoding admin request: %w", err)
	}

	response := s.answer(ctx, request)
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		return fmt.Errorf("encoding admin response: %w", err)
	}
	return nil
}

func (s *adminServer) answer(ctx context.Context, request ipc.Request) ipc.Response {
	switch request.Action {
	case ipc.ActionStatus, ipc.ActionRecords:
	default:
		return ipc.Response{Error: fmt.Sprintf("unknown action %q", request.Action)}
	}

	report, err := s.queryAuthority(ctx)
	if err != nil {
		return ipc.Response{Error: err.Error()}
	}

	if request.Action == ipc.ActionStatus {
		return ipc.Response{Status: &ipc.Status{
			New:           report.New,
			Pending:       report.Pending,
			Approved:      report.Approved,
			UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		}}
	}

	records := make([]ipc.RecordInfo, len(report.Records))
	for i, record := range report.Records {
		records[i] = ipc.RecordInfo{
			Identity:    record.Identity,
			DisplayName: record.DisplayName,
			State:       record.State.String(),
			UserID:      record.UserID,
		}
	}
	return ipc.Response{Records: records}
}

func (s *adminServer) queryAuthority(ctx context.Context) (verify.StatusReport, error) {
	ctx, cancel := context.WithTimeout(ctx, adminConnTimeout)
	defer cancel()

	conversation, err := s.ingress.Open()
	if err != nil {
		return verify.StatusReport{}, err
	}
	defer conversation.Close()

	if err := conversation.Send(verify.StatusQuery{}); err != nil {
		return verify.StatusReport{}, err
	}
	reply, err := conversation.Receive(ctx)
	if err != nil {
		return verify.StatusReport{}, fmt.Errorf("authority did not answer status query: %w", err)
	}
	report, ok := reply.(verify.StatusReport)
	if !ok {
		return verify.StatusReport{}, errors.New("unexpected reply to status query")
	}
	return report, nil
}
